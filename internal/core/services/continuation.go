// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

import (
	"bytes"
	"context"
	"log/slog"
	"text/template"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// ContinuationPromptGenerator writes the prompt of segment k+1 from the prompt of the
// first segment. It never fails: a generation error or an answer without the
// required labeled fields yields model.FallbackContinuationPrompt.
type ContinuationPromptGenerator struct {
	Generator TextGenerator
	Template  *template.Template
}

func NewContinuationPromptGenerator(generator TextGenerator, prompt *template.Template) *ContinuationPromptGenerator {
	return &ContinuationPromptGenerator{Generator: generator, Template: prompt}
}

// Continue returns the prompt for in.SegmentIndex (0-based).
func (c *ContinuationPromptGenerator) Continue(ctx context.Context, in *model.ContinuationInput) string {
	out, _ := c.ContinueWithFallback(ctx, in)
	return out
}

// ContinueWithFallback also reports whether the fallback was used.
func (c *ContinuationPromptGenerator) ContinueWithFallback(ctx context.Context, in *model.ContinuationInput) (string, bool) {
	log := slog.With("segment", in.SegmentIndex, "total", in.TotalSegments)
	prompt, err := RenderTemplate(c.Template, map[string]interface{}{
		"SEGMENT_NUMBER":    in.SegmentIndex + 1,
		"TOTAL_SEGMENTS":    in.TotalSegments,
		"ORIGINAL_PROMPT":   in.OriginalPrompt,
		"USER_INSTRUCTIONS": in.UserInstructions,
	})
	if err != nil {
		log.Warn("continuation template failed, using fallback", "error", err)
		return model.FallbackContinuationPrompt, true
	}
	text, err := c.Generator.GenerateText(ctx, prompt)
	if err != nil {
		log.Warn("continuation generation failed, using fallback", "error", err)
		return model.FallbackContinuationPrompt, true
	}
	text = model.StripCodeFence(text)
	if !model.HasLabeledFields(text, model.ContinuationPromptFields...) {
		log.Warn("continuation prompt missing labeled fields, using fallback")
		return model.FallbackContinuationPrompt, true
	}
	return text, false
}

// RenderTemplate executes t with data.
func RenderTemplate(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
