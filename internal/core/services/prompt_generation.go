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
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// PromptTemplates are the parsed prompt bodies of the text stages.
type PromptTemplates struct {
	ImageAnalysis *template.Template
	ImagePrompt   *template.Template
	VideoPrompt   *template.Template
	Continuation  *template.Template
}

// ParsePromptTemplates parses every body, substituting the built-in default for an
// empty one.
func ParsePromptTemplates(imageAnalysis, imagePrompt, videoPrompt, continuation string) (*PromptTemplates, error) {
	parse := func(name, body, fallback string) (*template.Template, error) {
		if strings.TrimSpace(body) == "" {
			body = fallback
		}
		t, err := template.New(name).Parse(body)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		return t, nil
	}
	out := &PromptTemplates{}
	var err error
	if out.ImageAnalysis, err = parse("image_analysis", imageAnalysis, model.DefaultImageAnalysisTemplate); err != nil {
		return nil, err
	}
	if out.ImagePrompt, err = parse("image_prompt", imagePrompt, model.DefaultImagePromptTemplate); err != nil {
		return nil, err
	}
	if out.VideoPrompt, err = parse("video_prompt", videoPrompt, model.DefaultVideoPromptTemplate); err != nil {
		return nil, err
	}
	if out.Continuation, err = parse("continuation", continuation, model.DefaultContinuationTemplate); err != nil {
		return nil, err
	}
	return out, nil
}

// PromptGenerator runs the text stages that precede segment generation. Narrative
// output is best-effort: each stage degrades to a fixed fallback rather than failing
// the run.
type PromptGenerator struct {
	Analyzer  ImageAnalyzer
	Text      TextGenerator
	Templates *PromptTemplates
}

func NewPromptGenerator(analyzer ImageAnalyzer, text TextGenerator, templates *PromptTemplates) *PromptGenerator {
	return &PromptGenerator{Analyzer: analyzer, Text: text, Templates: templates}
}

// AnalyzeImage describes the product or character in image. The reply is stripped
// of any code fence; an error or an empty reply yields model.FallbackImageAnalysis.
func (p *PromptGenerator) AnalyzeImage(ctx context.Context, image []byte, mimeType string) string {
	prompt, err := RenderTemplate(p.Templates.ImageAnalysis, nil)
	if err != nil {
		slog.Warn("image analysis template failed", "error", err)
		return model.FallbackImageAnalysis
	}
	text, err := p.Analyzer.AnalyzeImage(ctx, prompt, image, mimeType)
	if err != nil {
		slog.Warn("image analysis failed, using fallback", "error", err)
		return model.FallbackImageAnalysis
	}
	text = model.StripCodeFence(text)
	if strings.TrimSpace(text) == "" {
		return model.FallbackImageAnalysis
	}
	return text
}

// GenerateImagePrompt writes the prompt of the reference image. The model answers
// with a JSON object holding image_prompt and aspect_ratio_image; see
// model.ParseImagePrompt for how partial answers are recovered.
func (p *PromptGenerator) GenerateImagePrompt(ctx context.Context, userInstructions string, analysis string) *model.ImagePrompt {
	prompt, err := RenderTemplate(p.Templates.ImagePrompt, map[string]interface{}{
		"USER_INSTRUCTIONS": userInstructions,
		"IMAGE_ANALYSIS":    analysis,
	})
	if err == nil {
		var text string
		if text, err = p.Text.GenerateText(ctx, prompt); err == nil {
			out, fallback := model.ParseImagePrompt(text)
			if fallback {
				slog.Warn("image prompt could not be parsed, using fallback")
			}
			return out
		}
	}
	slog.Warn("image prompt generation failed, using fallback", "error", err)
	return &model.ImagePrompt{ImagePrompt: model.FallbackImagePrompt, AspectRatioImage: model.FallbackImageAspectRatio}
}

// GenerateVideoPrompt writes the labeled prompt of the first segment. The answer
// must carry every field of model.BaseVideoPromptFields, otherwise
// model.FallbackBaseVideoPrompt is returned.
func (p *PromptGenerator) GenerateVideoPrompt(ctx context.Context, userInstructions, analysis, imageURL string, aspectRatio model.AspectRatio) string {
	prompt, err := RenderTemplate(p.Templates.VideoPrompt, map[string]interface{}{
		"USER_INSTRUCTIONS":   userInstructions,
		"IMAGE_ANALYSIS":      analysis,
		"GENERATED_IMAGE_URL": imageURL,
		"ASPECT_RATIO":        string(aspectRatio),
	})
	if err != nil {
		slog.Warn("video prompt template failed, using fallback", "error", err)
		return model.FallbackBaseVideoPrompt
	}
	text, err := p.Text.GenerateText(ctx, prompt)
	if err != nil {
		slog.Warn("video prompt generation failed, using fallback", "error", err)
		return model.FallbackBaseVideoPrompt
	}
	text = model.StripCodeFence(text)
	if !model.HasLabeledFields(text, model.BaseVideoPromptFields...) {
		slog.Warn("video prompt missing labeled fields, using fallback")
		return model.FallbackBaseVideoPrompt
	}
	return text
}
