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

// SegmentStatus tracks one segment through generation.
type SegmentStatus string

const (
	SegmentPending    SegmentStatus = "pending"
	SegmentGenerating SegmentStatus = "generating"
	SegmentExtracting SegmentStatus = "extracting"
	SegmentDone       SegmentStatus = "done"
	SegmentFailed     SegmentStatus = "failed"
)

// Segment is one fixed-length unit of generated video within a run.
type Segment struct {
	Index             int           `json:"index"`
	VideoPrompt       string        `json:"videoPrompt"`
	SeedImageRef      *ArtifactRef  `json:"seedImageRef"`
	Status            SegmentStatus `json:"status"`
	VideoRef          *ArtifactRef  `json:"videoRef,omitempty"`
	ExtractedFrameRef *ArtifactRef  `json:"extractedFrameRef,omitempty"`
}

// NewSegment creates a pending segment seeded with the given image.
func NewSegment(index int, seed *ArtifactRef) *Segment {
	return &Segment{Index: index, SeedImageRef: seed, Status: SegmentPending}
}

// IsLast reports whether the segment is the final one of a run of total segments.
func (s *Segment) IsLast(total int) bool {
	return s.Index == total-1
}

// ToResult converts a finished segment to its caller-visible form.
func (s *Segment) ToResult() *SegmentResult {
	out := &SegmentResult{Index: s.Index, DurationSeconds: SegmentSeconds}
	if s.VideoRef != nil {
		out.VideoURL = s.VideoRef.URL
	}
	return out
}
