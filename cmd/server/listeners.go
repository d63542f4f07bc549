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

package main

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/cloud"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/workflow"
)

// SetupListeners attaches the pipeline trigger to its Pub/Sub subscription and starts
// receiving.
func SetupListeners(ctx context.Context, cloudClients *cloud.ServiceClients, pipeline *workflow.VideoPipelineWorkflow) {
	listener, ok := cloudClients.PubSubListeners[cloud.PipelineTriggerKey]
	if !ok {
		slog.Warn("no pipeline trigger subscription configured", "key", cloud.PipelineTriggerKey)
		return
	}
	listener.SetCommand(workflow.NewPipelineTriggerWorkflow(pipeline))
	listener.Listen(ctx)
}
