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
	"log"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/cloud"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/workflow"
)

type StateManager struct {
	config   *cloud.Config
	cloud    *cloud.ServiceClients
	pipeline *workflow.VideoPipelineWorkflow
	api      *VideoAPI
}

var state = &StateManager{}

// SetupOS points the configuration loader at ./configs unless the environment
// already says otherwise.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return err
}

func GetConfig() *cloud.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup os for configuration: %v\n", err)
		}
		config := cloud.NewConfig()
		cloud.LoadConfig(config)
		state.config = config
	}
	return state.config
}

func InitState(ctx context.Context) error {
	config := GetConfig()

	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	deps, opts, err := workflow.NewPipelineDependencies(config, cloudClients)
	if err != nil {
		return err
	}
	state.pipeline = workflow.NewVideoPipelineWorkflow(deps, opts)
	state.api = NewVideoAPI(state.pipeline, deps, opts, cloudClients.ArtifactStore,
		time.Duration(config.Storage.SignedURLMinutes)*time.Minute)

	SetupListeners(ctx, cloudClients, state.pipeline)
	return nil
}
