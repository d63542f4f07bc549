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

package workflow

import (
	"log/slog"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// ParamPipelineResult holds the terminal result of a triggered run.
const ParamPipelineResult = "__pipeline_result__"

// PipelineTriggerWorkflow executes the run request carried by a Pub/Sub message.
// Only a malformed or invalid message records an error, so the listener acks every
// message whose run reached a terminal state, successful or not.
type PipelineTriggerWorkflow struct {
	cor.BaseCommand
	pipeline *VideoPipelineWorkflow
	chain    cor.Chain
}

func NewPipelineTriggerWorkflow(pipeline *VideoPipelineWorkflow) *PipelineTriggerWorkflow {
	w := &PipelineTriggerWorkflow{BaseCommand: *cor.NewBaseCommand("pipeline-trigger"), pipeline: pipeline}
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewRunRequestReader("read-run-request"))
	out.AddCommand(&runPipeline{BaseCommand: *cor.NewBaseCommand("run-pipeline"), pipeline: pipeline})
	w.chain = out
	return w
}

func (w *PipelineTriggerWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

type runPipeline struct {
	cor.BaseCommand
	pipeline *VideoPipelineWorkflow
}

func (c *runPipeline) Execute(context cor.Context) {
	req := context.Get(c.GetInputParam()).(*model.RunRequest)
	result := c.pipeline.Run(context.GetContext(), req)
	if !result.Success {
		slog.Warn("triggered run failed", "run_id", result.RunID, "error", result.Error, "error_kind", result.ErrorKind)
	}
	context.Add(ParamPipelineResult, result)
	c.Succeed(context, result)
}
