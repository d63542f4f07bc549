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

package cloud

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// QuotaAwareGenerativeAIModel decorates a Gemini model with a rate limiter and
// token accounting. It serves text generation, image analysis and image generation.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             *genai.Models
	RateLimit               *rate.Limiter

	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	retries      metric.Int64Counter
}

// NewQuotaAwareModel wraps a model. requestsPerSecond is both the refill rate and the
// burst size; values below one are treated as one.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, handle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	meter := otel.Meter(cor.MeterName)
	in, _ := meter.Int64Counter(fmt.Sprintf("%s.tokens.input", name))
	out, _ := meter.Int64Counter(fmt.Sprintf("%s.tokens.output", name))
	retries, _ := meter.Int64Counter(fmt.Sprintf("%s.retries", name))
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             handle,
		RateLimit:               rate.NewLimiter(rate.Every(time.Second/time.Duration(requestsPerSecond)), requestsPerSecond),
		inputTokens:             in,
		outputTokens:            out,
		retries:                 retries,
	}
}

// GenerateContent waits for a rate limiter token and calls the model.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, contents, q.GenerativeContentConfig)
}

// GenerateText sends a text-only prompt and returns the response text.
func (q *QuotaAwareGenerativeAIModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	return GenerateMultiModalResponse(ctx, q.inputTokens, q.outputTokens, q.retries, 0, q, NewTextPart(prompt))
}

// AnalyzeImage sends a prompt with an inline image and returns the response text.
func (q *QuotaAwareGenerativeAIModel) AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	return GenerateMultiModalResponse(ctx, q.inputTokens, q.outputTokens, q.retries, 0, q, NewImageContent(prompt, image, mimeType))
}

// GenerateImage asks an image-capable model for a new image. The reference image is
// optional.
func (q *QuotaAwareGenerativeAIModel) GenerateImage(ctx context.Context, prompt string, reference []byte, mimeType string) ([]byte, string, error) {
	contents := NewTextPart(prompt)
	if len(reference) > 0 {
		contents = NewImageContent(prompt, reference, mimeType)
	}
	var resp *genai.GenerateContentResponse
	var err error
	for try := 0; try <= MaxRetries; try++ {
		resp, err = q.GenerateContent(ctx, contents)
		if err == nil || ctx.Err() != nil {
			break
		}
		q.retries.Add(ctx, 1)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: image generation with %s: %w", model.ErrGenerationFailed, q.ModelName, err)
	}
	recordUsage(ctx, q.inputTokens, q.outputTokens, resp)
	return ResponseImage(resp)
}
