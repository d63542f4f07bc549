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
	goctx "context"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/services"
)

// Context keys shared by the pipeline commands.
const (
	ParamRun            = "__run__"
	ParamRequest        = "__request__"
	ParamSourceImage    = "__source_image__"
	ParamImageAnalysis  = "__image_analysis__"
	ParamImagePrompt    = "__image_prompt__"
	ParamReferenceImage = "__reference_image__"
	ParamBasePrompt     = "__base_video_prompt__"
	ParamSegments       = "__segments__"
	ParamFinalVideo     = "__final_video__"
)

// StatusReporter writes stage transitions of the current run to the live status
// tracker. A nil reporter or tracker does nothing, and write failures are only logged.
type StatusReporter struct {
	Tracker services.RunStatusTracker
}

func NewStatusReporter(tracker services.RunStatusTracker) *StatusReporter {
	return &StatusReporter{Tracker: tracker}
}

func (r *StatusReporter) Report(ctx goctx.Context, runID string, status string) {
	if r == nil || r.Tracker == nil || runID == "" {
		return
	}
	if err := r.Tracker.SetRunStatus(ctx, runID, status); err != nil {
		slog.Warn("failed to write run status", "run_id", runID, "status", status, "error", err)
	}
}

// Stage reports "running:<stage>" for the run held in context, if any.
func (r *StatusReporter) Stage(context cor.Context, stage string) {
	if run, ok := context.Get(ParamRun).(*model.PipelineRun); ok {
		r.Report(context.GetContext(), run.RunID, services.RunningStatus(stage))
	}
}

func runRequest(context cor.Context) *model.RunRequest {
	req, _ := context.Get(ParamRequest).(*model.RunRequest)
	return req
}

func runID(context cor.Context) string {
	if run, ok := context.Get(ParamRun).(*model.PipelineRun); ok {
		return run.RunID
	}
	return ""
}
