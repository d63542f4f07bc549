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

package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Storage key prefixes for pipeline artifacts.
const (
	GeneratedImagesPrefix  = "generated-images"
	SegmentVideosPrefix    = "sequential-videos"
	ExtractedFramesPrefix  = "extracted-frames"
	CombinedVideosPrefix   = "combined-videos"
	DefaultVideoMIMEType   = "video/mp4"
	DefaultImageMIMEType   = "image/png"
	FrameEndOffsetSeconds  = 0.1
	DefaultCrossfadeSecond = 0.5
)

// ArtifactRef points at an immutable stored image or video.
type ArtifactRef struct {
	URL             string  `json:"url"`
	Key             string  `json:"key,omitempty"`
	MIMEType        string  `json:"mimeType,omitempty"`
	Format          string  `json:"format,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	SizeBytes       int64   `json:"sizeBytes,omitempty"`
	FPS             float64 `json:"fps,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

// MediaInfo is what a probe reports about a local media file.
type MediaInfo struct {
	DurationSeconds float64
	Width           int
	Height          int
	FPS             float64
	HasAudio        bool
	FormatName      string
	SizeBytes       int64
}

// FrameFormat is the encoding of an extracted frame.
type FrameFormat string

const (
	FrameFormatPNG  FrameFormat = "png"
	FrameFormatJPEG FrameFormat = "jpg"
)

// ParseFrameFormat accepts png, jpg and jpeg. Empty selects jpg.
func ParseFrameFormat(in string) (FrameFormat, error) {
	switch strings.ToLower(strings.TrimSpace(in)) {
	case "", "jpg", "jpeg":
		return FrameFormatJPEG, nil
	case "png":
		return FrameFormatPNG, nil
	}
	return "", fmt.Errorf("%w: frame format must be png or jpg, got %q", ErrValidation, in)
}

// MIMEType returns the content type used when uploading the frame.
func (f FrameFormat) MIMEType() string {
	if f == FrameFormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// FramePositionKind selects where in a video a frame is taken.
type FramePositionKind string

const (
	FramePositionFirst     FramePositionKind = "first"
	FramePositionLast      FramePositionKind = "last"
	FramePositionTimestamp FramePositionKind = "timestamp"
)

// FramePosition is first, last, or an explicit timestamp in seconds.
type FramePosition struct {
	Kind    FramePositionKind
	Seconds float64
}

var (
	FirstFrame = FramePosition{Kind: FramePositionFirst}
	LastFrame  = FramePosition{Kind: FramePositionLast}
)

// AtSeconds builds a timestamp position.
func AtSeconds(seconds float64) FramePosition {
	return FramePosition{Kind: FramePositionTimestamp, Seconds: seconds}
}

// ParseFramePosition accepts "first", "last" or a non-negative number of seconds.
// Empty selects last.
func ParseFramePosition(in string) (FramePosition, error) {
	switch v := strings.ToLower(strings.TrimSpace(in)); v {
	case "", "last":
		return LastFrame, nil
	case "first":
		return FirstFrame, nil
	default:
		s, err := strconv.ParseFloat(v, 64)
		if err != nil || s < 0 {
			return FramePosition{}, fmt.Errorf("%w: frame position must be first, last or seconds, got %q", ErrValidation, in)
		}
		return AtSeconds(s), nil
	}
}

func (p FramePosition) String() string {
	if p.Kind == FramePositionTimestamp {
		return strconv.FormatFloat(p.Seconds, 'f', -1, 64)
	}
	return string(p.Kind)
}

// AssemblyRequest is the input of the segment assembler.
type AssemblyRequest struct {
	Inputs                   []string     `json:"inputs"`
	Mode                     AssemblyMode `json:"mode"`
	CrossfadeDurationSeconds float64      `json:"crossfadeDurationSeconds,omitempty"`
	AspectRatio              AspectRatio  `json:"aspectRatio"`
}

// Validate fills defaults and rejects malformed assembly requests.
func (r *AssemblyRequest) Validate() error {
	if len(r.Inputs) == 0 {
		return fmt.Errorf("%w: at least one input is required", ErrValidation)
	}
	if r.Mode == "" {
		r.Mode = AssemblyModeCut
	}
	if !r.Mode.IsValid() {
		return fmt.Errorf("%w: mode must be cut or crossfade, got %q", ErrValidation, r.Mode)
	}
	if r.CrossfadeDurationSeconds < 0 {
		return fmt.Errorf("%w: crossfadeDurationSeconds must not be negative", ErrValidation)
	}
	if r.CrossfadeDurationSeconds == 0 {
		r.CrossfadeDurationSeconds = DefaultCrossfadeSecond
	}
	if r.AspectRatio == "" {
		r.AspectRatio = AspectRatioLandscape
	}
	return nil
}

// Image is decoded image content passed between pipeline stages.
type Image struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	Ref      *ArtifactRef // set once the image is stored
}
