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

// Package model holds the data structures shared by the video pipeline: the run
// request and result, the run and segment state, generation operation handles and
// artifact references.
package model

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// SegmentSeconds is the fixed length of one generated segment.
	SegmentSeconds = 8
	// MinDurationSeconds and MaxDurationSeconds bound the requested total duration.
	MinDurationSeconds = 8
	MaxDurationSeconds = 64
)

// AspectRatio is the requested frame shape of the final video.
type AspectRatio string

const (
	AspectRatioLandscape AspectRatio = "16:9"
	AspectRatioPortrait  AspectRatio = "9:16"
	AspectRatioSquare    AspectRatio = "1:1"
	AspectRatioClassic   AspectRatio = "4:3"
)

// Dimensions returns the normalized output resolution for the aspect ratio.
// Unknown ratios fall back to landscape.
func (a AspectRatio) Dimensions() (width int, height int) {
	switch a {
	case AspectRatioPortrait:
		return 720, 1280
	case AspectRatioSquare:
		return 720, 720
	case AspectRatioClassic:
		return 960, 720
	default:
		return 1280, 720
	}
}

// IsPipelineRatio reports whether the ratio can be requested for a full pipeline run.
func (a AspectRatio) IsPipelineRatio() bool {
	return a == AspectRatioLandscape || a == AspectRatioPortrait
}

// AssemblyMode selects how segments are joined.
type AssemblyMode string

const (
	AssemblyModeCut       AssemblyMode = "cut"
	AssemblyModeCrossfade AssemblyMode = "crossfade"
)

// IsValid reports whether the mode is one of the known assembly modes.
func (m AssemblyMode) IsValid() bool {
	return m == AssemblyModeCut || m == AssemblyModeCrossfade
}

// RunRequest is the request consumed by the pipeline orchestrator.
type RunRequest struct {
	SourceImageURL       string       `json:"sourceImageUrl"`
	UserPrompt           string       `json:"userPrompt"`
	TotalDurationSeconds int          `json:"totalDurationSeconds"`
	AspectRatio          AspectRatio  `json:"aspectRatio"`
	OwnerID              string       `json:"ownerId"`
	AssemblyMode         AssemblyMode `json:"assemblyMode,omitempty"`
}

// Validate checks the request before any collaborator is touched. A missing aspect
// ratio defaults to 16:9.
func (r *RunRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: request is required", ErrValidation)
	}
	if strings.TrimSpace(r.SourceImageURL) == "" {
		return fmt.Errorf("%w: sourceImageUrl is required", ErrValidation)
	}
	u, err := url.Parse(r.SourceImageURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "gs") {
		return fmt.Errorf("%w: sourceImageUrl must be an absolute http(s) or gs url, got %q", ErrValidation, r.SourceImageURL)
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		return fmt.Errorf("%w: ownerId is required", ErrValidation)
	}
	if r.TotalDurationSeconds < MinDurationSeconds || r.TotalDurationSeconds > MaxDurationSeconds {
		return fmt.Errorf("%w: totalDurationSeconds must be in [%d, %d], got %d",
			ErrValidation, MinDurationSeconds, MaxDurationSeconds, r.TotalDurationSeconds)
	}
	if r.AspectRatio == "" {
		r.AspectRatio = AspectRatioLandscape
	}
	if !r.AspectRatio.IsPipelineRatio() {
		return fmt.Errorf("%w: aspectRatio must be 16:9 or 9:16, got %q", ErrValidation, r.AspectRatio)
	}
	if r.AssemblyMode != "" && !r.AssemblyMode.IsValid() {
		return fmt.Errorf("%w: assemblyMode must be cut or crossfade, got %q", ErrValidation, r.AssemblyMode)
	}
	return nil
}

// SegmentCount is the number of fixed-length segments needed to cover the duration.
func SegmentCount(totalDurationSeconds int) int {
	if totalDurationSeconds <= 0 {
		return 0
	}
	return (totalDurationSeconds + SegmentSeconds - 1) / SegmentSeconds
}

// SegmentResult is the caller-visible view of one finished segment.
type SegmentResult struct {
	Index           int    `json:"index"`
	VideoURL        string `json:"videoUrl"`
	DurationSeconds int    `json:"durationSeconds"`
}

// PipelineResult is the terminal result of a run. It never claims success with a
// partially filled segment list.
type PipelineResult struct {
	Success       bool             `json:"success"`
	RunID         string           `json:"runId,omitempty"`
	FinalVideoURL string           `json:"finalVideoUrl,omitempty"`
	Segments      []*SegmentResult `json:"segments"`
	Error         string           `json:"error,omitempty"`
	ErrorKind     string           `json:"errorKind,omitempty"`
}

// NewFailedResult builds a failure result. Partial progress is discarded.
func NewFailedResult(runID string, err error) *PipelineResult {
	return &PipelineResult{
		Success:   false,
		RunID:     runID,
		Segments:  make([]*SegmentResult, 0),
		Error:     err.Error(),
		ErrorKind: ErrorKind(err),
	}
}
