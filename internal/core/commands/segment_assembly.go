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
	"errors"
	"fmt"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/services"
)

// SegmentAssembly joins the generated segments, in index order, into the final
// video. The request's assembly mode wins over the configured default.
//
// Input: the []*model.Segment written by SegmentGenerator, plus the run request
// stored under ParamRequest. Output: the *model.ArtifactRef of the assembled
// video, also stored under ParamFinalVideo. Every failure, including a crossfade
// the stored segments are too short for, is reported as model.ErrAssemblyFailed.
type SegmentAssembly struct {
	cor.BaseCommand
	assembler   services.Assembler
	status      *StatusReporter
	defaultMode model.AssemblyMode
	crossfade   float64
}

func NewSegmentAssembly(name string, assembler services.Assembler, status *StatusReporter, defaultMode model.AssemblyMode, crossfade float64) *SegmentAssembly {
	if !defaultMode.IsValid() {
		defaultMode = model.AssemblyModeCut
	}
	return &SegmentAssembly{
		BaseCommand: *cor.NewBaseCommand(name),
		assembler:   assembler,
		status:      status,
		defaultMode: defaultMode,
		crossfade:   crossfade,
	}
}

func (c *SegmentAssembly) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && runRequest(context) != nil
}

func (c *SegmentAssembly) Execute(context cor.Context) {
	segments := context.Get(c.GetInputParam()).([]*model.Segment)
	req := runRequest(context)
	c.status.Stage(context, "assemble")

	inputs := make([]string, 0, len(segments))
	for _, s := range segments {
		if s.VideoRef == nil {
			c.Fail(context, fmt.Errorf("%w: segment %d has no video", model.ErrAssemblyFailed, s.Index+1))
			return
		}
		inputs = append(inputs, s.VideoRef.URL)
	}
	mode := req.AssemblyMode
	if mode == "" {
		mode = c.defaultMode
	}

	final, err := c.assembler.Assemble(context.GetContext(), &model.AssemblyRequest{
		Inputs:                   inputs,
		Mode:                     mode,
		CrossfadeDurationSeconds: c.crossfade,
		AspectRatio:              req.AspectRatio,
	})
	if err != nil {
		// The segments came from this run, so a request the assembler rejects is
		// an assembly failure, not a caller error.
		if errors.Is(err, model.ErrValidation) {
			err = fmt.Errorf("%w: %v", model.ErrAssemblyFailed, err)
		}
		c.Fail(context, err)
		return
	}
	context.Add(ParamFinalVideo, final)
	c.Succeed(context, final)
}
