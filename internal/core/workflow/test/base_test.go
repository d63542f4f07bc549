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

package workflow_test

import (
	"os"
	"testing"

	"go.opentelemetry.io/contrib/bridges/otelslog"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/cloud"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/telemetry"
	test "github.com/jaycherian/gcp-go-video-pipeline/internal/testutil"
)

const tName = "github.com/jaycherian/gcp-go-video-pipeline/tests/workflow"

var (
	config *cloud.Config
	logger = otelslog.NewLogger(tName)
)

func TestMain(m *testing.M) {
	config = test.GetConfig()
	telemetry.SetupLogging(telemetry.LoggingOptions{Level: "WARN"})
	logger.Info("completed test setup", "project", config.Application.GoogleProjectId)
	os.Exit(m.Run())
}
