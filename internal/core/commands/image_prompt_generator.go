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
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/services"
)

// ImagePromptGenerator writes the prompt of the reference image from the user's
// instructions and the image analysis. A failed call or a reply without a usable
// image_prompt falls back to the fixed reference prompt.
//
// Input: the analysis string written by ImageAnalyzer.
// Output: a *model.ImagePrompt, also stored under ParamImagePrompt.
type ImagePromptGenerator struct {
	cor.BaseCommand
	prompts *services.PromptGenerator
	status  *StatusReporter
}

func NewImagePromptGenerator(name string, prompts *services.PromptGenerator, status *StatusReporter) *ImagePromptGenerator {
	return &ImagePromptGenerator{BaseCommand: *cor.NewBaseCommand(name), prompts: prompts, status: status}
}

func (c *ImagePromptGenerator) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && runRequest(context) != nil
}

func (c *ImagePromptGenerator) Execute(context cor.Context) {
	analysis := context.Get(c.GetInputParam()).(string)
	c.status.Stage(context, "image-prompt")
	prompt := c.prompts.GenerateImagePrompt(context.GetContext(), runRequest(context).UserPrompt, analysis)
	context.Add(ParamImagePrompt, prompt)
	c.Succeed(context, prompt)
}
