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
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// FrameExtractor pulls a single still out of a stored video. The last frame of a
// segment seeds the next one.
//
// Every extraction downloads the video into its own scratch directory, probes it
// when the last frame is wanted, has ffmpeg write exactly one frame and uploads
// that frame under extracted-frames/. The scratch directory is created under the
// run directory carried by the context when there is one, otherwise under
// ScratchBase.
type FrameExtractor struct {
	Store       ArtifactStore
	Media       MediaProcessor
	ScratchBase string
}

func NewFrameExtractor(store ArtifactStore, media MediaProcessor, scratchBase string) *FrameExtractor {
	return &FrameExtractor{Store: store, Media: media, ScratchBase: scratchBase}
}

// SeekSeconds resolves a frame position against a video of the given duration.
// The last frame is read slightly before the end, because seeking to the exact
// duration yields no frame on most encodes.
func SeekSeconds(position model.FramePosition, durationSeconds float64) float64 {
	switch position.Kind {
	case model.FramePositionFirst:
		return 0
	case model.FramePositionLast:
		return math.Max(0, durationSeconds-model.FrameEndOffsetSeconds)
	default:
		return math.Max(0, position.Seconds)
	}
}

// FrameArgs builds the ffmpeg arguments that write the single frame at seek.
func FrameArgs(input string, seek float64, output string) []string {
	return []string{"-y", "-ss", strconv.FormatFloat(seek, 'f', 3, 64), "-i", input, "-frames:v", "1", output}
}

// Extract writes the frame at position of videoURL to storage. Any failure is
// reported as model.ErrFrameExtractionFailed and the scratch directory is always
// removed.
func (e *FrameExtractor) Extract(ctx context.Context, videoURL string, position model.FramePosition, format model.FrameFormat) (*model.ArtifactRef, error) {
	if format == "" {
		format = model.FrameFormatJPEG
	}
	return RunIsolated(ctx, "frame-extract", func(ctx context.Context) (*model.ArtifactRef, error) {
		ref, err := e.extract(ctx, videoURL, position, format)
		if err != nil {
			return nil, fmt.Errorf("%w: %s at %s: %w", model.ErrFrameExtractionFailed, videoURL, position, err)
		}
		return ref, nil
	})
}

func (e *FrameExtractor) extract(ctx context.Context, videoURL string, position model.FramePosition, format model.FrameFormat) (*model.ArtifactRef, error) {
	dir, cleanup, err := NewScratchDirFor(ctx, e.ScratchBase, "frame")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	input := filepath.Join(dir, "input.mp4")
	if _, err = e.Store.DownloadToFile(ctx, videoURL, input); err != nil {
		return nil, err
	}

	var duration float64
	if position.Kind == model.FramePositionLast {
		info, err := e.Media.Probe(ctx, input)
		if err != nil {
			return nil, err
		}
		if info.DurationSeconds <= 0 {
			return nil, fmt.Errorf("probe reported no duration (%s), cannot locate the last frame", seconds(info.DurationSeconds))
		}
		duration = info.DurationSeconds
	}
	seek := SeekSeconds(position, duration)

	output := filepath.Join(dir, "frame."+string(format))
	if err = e.Media.Run(ctx, FrameArgs(input, seek, output)...); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(output)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode extracted frame: %w", err)
	}

	ref, err := e.Store.Upload(ctx, FrameKey(format), data, format.MIMEType(), map[string]string{
		"sourceVideo": videoURL,
		"position":    position.String(),
	})
	if err != nil {
		return nil, err
	}
	ref.Format = string(format)
	ref.Width = img.Bounds().Dx()
	ref.Height = img.Bounds().Dy()
	slog.Debug("frame extracted", "video", videoURL, "seek", seek, "url", ref.URL)
	return ref, nil
}
