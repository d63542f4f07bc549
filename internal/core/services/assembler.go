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
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// Probed output lengths further than this from the computed length are logged.
const durationTolerance = 0.5

// SegmentAssembler joins segment videos into one file, either with hard cuts or with
// crossfades, after normalizing every input to the target resolution.
//
// Inputs are downloaded concurrently, at most Workers at a time, into a scratch
// directory under the run directory carried by the context, or under ScratchBase.
// The result is stored under combined-videos/ with its expected length: the sum of
// the inputs for cuts, less one crossfade per transition otherwise.
type SegmentAssembler struct {
	Store       ArtifactStore
	Media       MediaProcessor
	ScratchBase string
	Workers     int
}

func NewSegmentAssembler(store ArtifactStore, media MediaProcessor, scratchBase string, workers int) *SegmentAssembler {
	if workers < 1 {
		workers = 1
	}
	return &SegmentAssembler{Store: store, Media: media, ScratchBase: scratchBase, Workers: workers}
}

// Assemble downloads the inputs to scratch, renders the final video and stores it.
// A single input is stored as is. Failures other than invalid requests are reported
// as model.ErrAssemblyFailed.
func (a *SegmentAssembler) Assemble(ctx context.Context, req *model.AssemblyRequest) (*model.ArtifactRef, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: assembly request is required", model.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return RunIsolated(ctx, "assemble", func(ctx context.Context) (*model.ArtifactRef, error) {
		ref, err := a.assemble(ctx, req)
		if err != nil && !errors.Is(err, model.ErrValidation) {
			return nil, fmt.Errorf("%w: %d inputs (%s): %w", model.ErrAssemblyFailed, len(req.Inputs), req.Mode, err)
		}
		return ref, err
	})
}

func (a *SegmentAssembler) assemble(ctx context.Context, req *model.AssemblyRequest) (*model.ArtifactRef, error) {
	dir, cleanup, err := NewScratchDirFor(ctx, a.ScratchBase, "assemble")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	paths, err := a.download(ctx, dir, req.Inputs)
	if err != nil {
		return nil, err
	}
	metadata := map[string]string{
		"mode":        string(req.Mode),
		"segments":    strconv.Itoa(len(req.Inputs)),
		"aspectRatio": string(req.AspectRatio),
	}

	if len(paths) == 1 {
		ref, err := a.Store.UploadFile(ctx, CombinedVideoKey(), paths[0], model.DefaultVideoMIMEType, metadata)
		if err != nil {
			return nil, err
		}
		ref.Format = "mp4"
		return ref, nil
	}

	inputs := make([]AssemblyInput, len(paths))
	for i, p := range paths {
		info, err := a.Media.Probe(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("probe input %d: %w", i, err)
		}
		inputs[i] = AssemblyInput{Path: p, DurationSeconds: info.DurationSeconds, HasAudio: info.HasAudio}
	}

	width, height := req.AspectRatio.Dimensions()
	durations := make([]float64, len(inputs))
	for i, in := range inputs {
		durations[i] = in.DurationSeconds
	}
	var graph string
	expected := CrossfadeDuration(durations, 0)
	if req.Mode == model.AssemblyModeCrossfade {
		expected = CrossfadeDuration(durations, req.CrossfadeDurationSeconds)
		if graph, err = CrossfadeFilterGraph(inputs, width, height, req.CrossfadeDurationSeconds); err != nil {
			return nil, err
		}
	} else {
		graph = CutFilterGraph(inputs, width, height)
	}

	output := filepath.Join(dir, "combined.mp4")
	if err = a.Media.Run(ctx, AssemblyArgs(inputs, graph, output)...); err != nil {
		return nil, err
	}

	ref, err := a.Store.UploadFile(ctx, CombinedVideoKey(), output, model.DefaultVideoMIMEType, metadata)
	if err != nil {
		return nil, err
	}
	ref.Format = "mp4"
	ref.Width, ref.Height = width, height
	ref.DurationSeconds = expected
	if info, perr := a.Media.Probe(ctx, output); perr == nil {
		if math.Abs(info.DurationSeconds-expected) > durationTolerance {
			slog.Warn("assembled video length differs from its inputs",
				"mode", req.Mode, "expected_seconds", expected, "probed_seconds", info.DurationSeconds)
		}
		ref.DurationSeconds = info.DurationSeconds
		ref.FPS = info.FPS
	} else {
		slog.Warn("could not probe assembled video", "error", perr)
	}
	return ref, nil
}

// download fetches the inputs concurrently, preserving their order on disk.
func (a *SegmentAssembler) download(ctx context.Context, dir string, urls []string) ([]string, error) {
	paths := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Workers)
	for i, u := range urls {
		paths[i] = filepath.Join(dir, fmt.Sprintf("input-%03d.mp4", i))
		g.Go(func() error {
			if _, err := a.Store.DownloadToFile(gctx, u, paths[i]); err != nil {
				return fmt.Errorf("download input %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
