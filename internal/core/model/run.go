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
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// NewRunID builds a globally unique run id that still sorts by owner and time.
func NewRunID(ownerID string, now time.Time) string {
	return fmt.Sprintf("video_%s_%d_%s", ownerID, now.UnixMilli(), uuid.NewString()[:8])
}

// PipelineRun is one end-to-end invocation. Only the orchestrator mutates it.
type PipelineRun struct {
	RunID                    string
	OwnerID                  string
	CreatedAt                time.Time
	Status                   RunStatus
	RequestedDurationSeconds int
	AspectRatio              AspectRatio
	Error                    string
	ErrorKind                string
	Request                  *RunRequest
	Segments                 []*Segment
	FinalVideoRef            *ArtifactRef
	CompletedAt              time.Time
}

// NewPipelineRun creates a running run for a validated request.
func NewPipelineRun(req *RunRequest, now time.Time) *PipelineRun {
	return &PipelineRun{
		RunID:                    NewRunID(req.OwnerID, now),
		OwnerID:                  req.OwnerID,
		CreatedAt:                now,
		Status:                   RunRunning,
		RequestedDurationSeconds: req.TotalDurationSeconds,
		AspectRatio:              req.AspectRatio,
		Request:                  req,
		Segments:                 make([]*Segment, 0),
	}
}

// SegmentCount is the number of segments this run generates.
func (r *PipelineRun) SegmentCount() int {
	return SegmentCount(r.RequestedDurationSeconds)
}

// Fail moves the run to failed. A nil error is replaced so that a failed run always
// carries a message.
func (r *PipelineRun) Fail(err error, now time.Time) {
	if r.Status != RunRunning {
		return
	}
	if err == nil {
		err = fmt.Errorf("run %s failed without an error", r.RunID)
	}
	r.Status = RunFailed
	r.Error = err.Error()
	r.ErrorKind = ErrorKind(err)
	r.CompletedAt = now
}

// Complete moves the run to completed with the assembled video.
func (r *PipelineRun) Complete(final *ArtifactRef, segments []*Segment, now time.Time) {
	if r.Status != RunRunning {
		return
	}
	r.Status = RunCompleted
	r.FinalVideoRef = final
	r.Segments = segments
	r.CompletedAt = now
}

// Result converts the terminal run into the caller-visible result.
func (r *PipelineRun) Result() *PipelineResult {
	if r.Status != RunCompleted {
		out := &PipelineResult{
			RunID:     r.RunID,
			Segments:  make([]*SegmentResult, 0),
			Error:     r.Error,
			ErrorKind: r.ErrorKind,
		}
		if out.Error == "" {
			out.Error = fmt.Sprintf("run %s did not complete", r.RunID)
		}
		return out
	}
	out := &PipelineResult{
		Success:  true,
		RunID:    r.RunID,
		Segments: make([]*SegmentResult, 0, len(r.Segments)),
	}
	if r.FinalVideoRef != nil {
		out.FinalVideoURL = r.FinalVideoRef.URL
	}
	for _, s := range r.Segments {
		out.Segments = append(out.Segments, s.ToResult())
	}
	return out
}

// SegmentRecord is the persisted form of one segment.
type SegmentRecord struct {
	Index           int    `json:"index" bigquery:"index"`
	VideoURL        string `json:"video_url" bigquery:"video_url"`
	DurationSeconds int    `json:"duration_seconds" bigquery:"duration_seconds"`
	Prompt          string `json:"prompt" bigquery:"prompt"`
}

// RunRecord is the row written once per run to the run-metadata store.
type RunRecord struct {
	RunID            string          `json:"run_id" bigquery:"run_id"`
	OwnerID          string          `json:"owner_id" bigquery:"owner_id"`
	UserPrompt       string          `json:"user_prompt" bigquery:"user_prompt"`
	ImageURL         string          `json:"image_url" bigquery:"image_url"`
	AspectRatio      string          `json:"aspect_ratio" bigquery:"aspect_ratio"`
	DurationSeconds  int             `json:"duration_seconds" bigquery:"duration_seconds"`
	NumberOfSegments int             `json:"number_of_segments" bigquery:"number_of_segments"`
	ProcessingTimeMs int64           `json:"processing_time_ms" bigquery:"processing_time_ms"`
	FinalVideoURL    string          `json:"final_video_url" bigquery:"final_video_url"`
	FinalVideoKey    string          `json:"final_video_key" bigquery:"final_video_key"`
	Status           string          `json:"status" bigquery:"status"`
	Error            string          `json:"error" bigquery:"error"`
	ErrorKind        string          `json:"error_kind" bigquery:"error_kind"`
	CreatedAt        time.Time       `json:"created_at" bigquery:"created_at"`
	Segments         []SegmentRecord `json:"segments" bigquery:"segments"`
}

// Record builds the persisted form of the run.
func (r *PipelineRun) Record() *RunRecord {
	out := &RunRecord{
		RunID:            r.RunID,
		OwnerID:          r.OwnerID,
		AspectRatio:      string(r.AspectRatio),
		Status:           string(r.Status),
		Error:            r.Error,
		ErrorKind:        r.ErrorKind,
		CreatedAt:        r.CreatedAt,
		NumberOfSegments: len(r.Segments),
		Segments:         make([]SegmentRecord, 0, len(r.Segments)),
	}
	if r.Request != nil {
		out.UserPrompt = r.Request.UserPrompt
		out.ImageURL = r.Request.SourceImageURL
	}
	if !r.CompletedAt.IsZero() {
		out.ProcessingTimeMs = r.CompletedAt.Sub(r.CreatedAt).Milliseconds()
	}
	if r.Status == RunCompleted {
		out.DurationSeconds = len(r.Segments) * SegmentSeconds
	}
	if r.FinalVideoRef != nil {
		out.FinalVideoURL = r.FinalVideoRef.URL
		out.FinalVideoKey = r.FinalVideoRef.Key
	}
	for _, s := range r.Segments {
		rec := SegmentRecord{Index: s.Index, DurationSeconds: SegmentSeconds, Prompt: s.VideoPrompt}
		if s.VideoRef != nil {
			rec.VideoURL = s.VideoRef.URL
		}
		out.Segments = append(out.Segments, rec)
	}
	return out
}
