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

package commands

import (
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/services"
)

// SegmentGenerator produces the segments of a run one after another. Segment 1 is
// seeded with the reference image and prompted with the base prompt. Every later
// segment is seeded with the last frame of its predecessor and prompted with a
// continuation of the base prompt. Segments are never generated concurrently.
//
// Input: the base prompt string, with the run under ParamRun and the reference image
// under ParamReferenceImage.
// Output: the []*model.Segment in index order, also under ParamSegments. The first
// failing segment fails the run and the segments before it are discarded.
type SegmentGenerator struct {
	cor.BaseCommand
	generator   services.SegmentGenerator
	frames      services.FrameSource
	continuer   services.ContinuationWriter
	store       services.ArtifactStore
	status      *StatusReporter
	frameFormat model.FrameFormat
}

func NewSegmentGenerator(
	name string,
	generator services.SegmentGenerator,
	frames services.FrameSource,
	continuer services.ContinuationWriter,
	store services.ArtifactStore,
	status *StatusReporter,
	frameFormat model.FrameFormat) *SegmentGenerator {
	if frameFormat == "" {
		frameFormat = model.FrameFormatJPEG
	}
	return &SegmentGenerator{
		BaseCommand: *cor.NewBaseCommand(name),
		generator:   generator,
		frames:      frames,
		continuer:   continuer,
		store:       store,
		status:      status,
		frameFormat: frameFormat,
	}
}

func (c *SegmentGenerator) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) &&
		runRequest(context) != nil &&
		context.Get(ParamRun) != nil &&
		context.Get(ParamReferenceImage) != nil
}

func (c *SegmentGenerator) Execute(context cor.Context) {
	ctx := context.GetContext()
	basePrompt := context.Get(c.GetInputParam()).(string)
	req := runRequest(context)
	run := context.Get(ParamRun).(*model.PipelineRun)
	reference := context.Get(ParamReferenceImage).(*model.Image)

	total := run.SegmentCount()
	seedData, seedMIME, seedRef := reference.Data, reference.MIMEType, reference.Ref
	segments := make([]*model.Segment, 0, total)

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			c.Fail(context, fmt.Errorf("segment %d of %d: %w", i+1, total, err))
			return
		}
		c.status.Report(ctx, run.RunID, services.RunningStatus(services.SegmentStage(i, total)))
		log := slog.With("run_id", run.RunID, "segment", i+1, "total", total)

		segment := model.NewSegment(i, seedRef)
		segment.VideoPrompt = basePrompt
		if i > 0 {
			segment.VideoPrompt = c.continuer.Continue(ctx, &model.ContinuationInput{
				OriginalPrompt:   basePrompt,
				UserInstructions: req.UserPrompt,
				SegmentIndex:     i,
				TotalSegments:    total,
			})
		}

		segment.Status = model.SegmentGenerating
		ref, err := c.generator.Generate(ctx, &model.VideoGenerationRequest{
			Prompt:       segment.VideoPrompt,
			SeedImage:    seedData,
			SeedMIMEType: seedMIME,
			AspectRatio:  req.AspectRatio,
			SegmentIndex: i,
			RunID:        run.RunID,
		})
		if err != nil {
			segment.Status = model.SegmentFailed
			c.Fail(context, fmt.Errorf("segment %d of %d: %w", i+1, total, err))
			return
		}
		segment.VideoRef = ref

		if !segment.IsLast(total) {
			segment.Status = model.SegmentExtracting
			frame, err := c.frames.Extract(ctx, ref.URL, model.LastFrame, c.frameFormat)
			if err != nil {
				segment.Status = model.SegmentFailed
				c.Fail(context, fmt.Errorf("segment %d of %d: %w", i+1, total, err))
				return
			}
			segment.ExtractedFrameRef = frame
			if seedData, err = c.store.Download(ctx, frame.URL); err != nil {
				c.Fail(context, fmt.Errorf("segment %d of %d: load continuity frame: %w", i+1, total, err))
				return
			}
			seedMIME, seedRef = c.frameFormat.MIMEType(), frame
		}

		segment.Status = model.SegmentDone
		segments = append(segments, segment)
		log.Info("segment generated", "url", ref.URL)
	}

	context.Add(ParamSegments, segments)
	c.Succeed(context, segments)
}
