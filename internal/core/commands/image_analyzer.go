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
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/services"
)

// ImageAnalyzer describes the source image. It never fails the run: when the
// analysis model errors or returns nothing, the default analysis text is used.
//
// Input: the *model.Image written by SourceImageReader.
// Output: the analysis string, also stored under ParamImageAnalysis.
type ImageAnalyzer struct {
	cor.BaseCommand
	prompts *services.PromptGenerator
	status  *StatusReporter
}

func NewImageAnalyzer(name string, prompts *services.PromptGenerator, status *StatusReporter) *ImageAnalyzer {
	return &ImageAnalyzer{BaseCommand: *cor.NewBaseCommand(name), prompts: prompts, status: status}
}

func (c *ImageAnalyzer) Execute(context cor.Context) {
	img := context.Get(c.GetInputParam()).(*model.Image)
	c.status.Stage(context, "analyze-image")
	analysis := c.prompts.AnalyzeImage(context.GetContext(), img.Data, img.MIMEType)
	context.Add(ParamImageAnalysis, analysis)
	c.Succeed(context, analysis)
}
