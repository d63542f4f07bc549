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

// Package test provides utility functions and mock data to support the application's
// test suite. It helps in setting up a consistent test environment, loading
// test-specific configurations, and providing sample data for workflows and services.
package test

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/cloud"
)

var (
	configOnce sync.Once
	config     *cloud.Config
)

// HandleErr fails the test when err is not nil.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// ConfigDir is the absolute path of the repository's configs directory.
func ConfigDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "configs")
}

// SetupOS points the configuration loader at the test configuration
// (configs/.env.toml overlaid with configs/.env.test.toml).
func SetupOS() (err error) {
	if err = os.Setenv(cloud.EnvConfigFilePrefix, ConfigDir()); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig loads the test configuration once and returns the cached copy.
func GetConfig() *cloud.Config {
	configOnce.Do(func() {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config = cloud.NewConfig()
		cloud.LoadConfig(config)
	})
	return config
}

// GetTestRunRequestText is a pipeline trigger message as published to the request
// topic.
func GetTestRunRequestText() string {
	return `{
  "sourceImageUrl": "https://storage.googleapis.com/test-bucket/uploads/bottle.png",
  "userPrompt": "a runner shows the bottle after a morning jog",
  "totalDurationSeconds": 16,
  "aspectRatio": "9:16",
  "ownerId": "user-42"
}`
}
