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
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// QuotaAwareVideoModel submits Veo long-running operations and reads their state.
// Only submission is rate limited; polls are cheap reads.
type QuotaAwareVideoModel struct {
	Config      VertexAiVideoModel
	ModelHandle *genai.Models
	Operations  *genai.Operations
	RateLimit   *rate.Limiter
}

func NewQuotaAwareVideoModel(config VertexAiVideoModel, client *genai.Client) *QuotaAwareVideoModel {
	perMinute := config.RateLimit
	if perMinute < 1 {
		perMinute = 1
	}
	return &QuotaAwareVideoModel{
		Config:      config,
		ModelHandle: client.Models,
		Operations:  client.Operations,
		RateLimit:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
}

// ModelName returns the Veo model identifier.
func (v *QuotaAwareVideoModel) ModelName() string {
	return v.Config.Model
}

// SubmitVideo starts an image-to-video generation and returns the operation handle.
func (v *QuotaAwareVideoModel) SubmitVideo(ctx context.Context, req *model.VideoGenerationRequest) (*model.GenerationOperation, error) {
	if err := v.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	var image *genai.Image
	if len(req.SeedImage) > 0 {
		image = &genai.Image{ImageBytes: req.SeedImage, MIMEType: req.SeedMIMEType}
	}
	cfg := &genai.GenerateVideosConfig{
		AspectRatio:      string(req.AspectRatio),
		PersonGeneration: v.Config.PersonGeneration,
		NumberOfVideos:   1,
		OutputGCSURI:     v.Config.OutputGCSURI,
	}
	op, err := v.ModelHandle.GenerateVideos(ctx, v.Config.Model, req.Prompt, image, cfg)
	if err != nil {
		return nil, err
	}
	if op == nil || op.Name == "" {
		return nil, fmt.Errorf("%w: %s returned no operation name", model.ErrGenerationFailed, v.Config.Model)
	}
	return model.NewGenerationOperation(op.Name, v.Config.Model, time.Now()), nil
}

// PollVideo reads the current state of an operation.
func (v *QuotaAwareVideoModel) PollVideo(ctx context.Context, operationID string) (*model.OperationStatus, error) {
	op, err := v.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: operationID}, nil)
	if err != nil {
		return nil, err
	}
	return ToOperationStatus(op), nil
}

// ToOperationStatus converts a Veo operation into the provider-neutral status.
func ToOperationStatus(op *genai.GenerateVideosOperation) *model.OperationStatus {
	out := &model.OperationStatus{}
	if op == nil {
		return out
	}
	out.Done = op.Done
	if len(op.Error) > 0 {
		out.ErrorMessage = fmt.Sprint(op.Error["message"])
	}
	if op.Response == nil {
		out.ResponseShape = "response=<nil>"
		return out
	}
	if len(op.Response.GeneratedVideos) > 0 && op.Response.GeneratedVideos[0].Video != nil {
		video := op.Response.GeneratedVideos[0].Video
		if video.URI != "" || len(video.VideoBytes) > 0 {
			out.Video = &model.GeneratedVideo{URI: video.URI, Bytes: video.VideoBytes, MIMEType: video.MIMEType}
			return out
		}
	}
	out.ResponseShape = responseShape(op.Response)
	return out
}

func responseShape(resp *genai.GenerateVideosResponse) string {
	keys := []string{fmt.Sprintf("generatedVideos[%d]", len(resp.GeneratedVideos))}
	if resp.RAIMediaFilteredCount > 0 {
		keys = append(keys, fmt.Sprintf("raiMediaFilteredCount=%d", resp.RAIMediaFilteredCount))
	}
	if len(resp.RAIMediaFilteredReasons) > 0 {
		reasons := append([]string(nil), resp.RAIMediaFilteredReasons...)
		sort.Strings(reasons)
		keys = append(keys, "raiMediaFilteredReasons="+strings.Join(reasons, "|"))
	}
	return strings.Join(keys, ", ")
}
