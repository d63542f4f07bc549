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

// VideoPromptGenerator writes the labeled prompt of the first segment. A reply
// missing any of the dialogue, action, camera, emotion and type lines is replaced
// by the fixed base prompt.
//
// Input: the reference *model.Image, plus the analysis under ParamImageAnalysis.
// Output: the base prompt string, also under ParamBasePrompt.
type VideoPromptGenerator struct {
	cor.BaseCommand
	prompts *services.PromptGenerator
	status  *StatusReporter
}

func NewVideoPromptGenerator(name string, prompts *services.PromptGenerator, status *StatusReporter) *VideoPromptGenerator {
	return &VideoPromptGenerator{BaseCommand: *cor.NewBaseCommand(name), prompts: prompts, status: status}
}

func (c *VideoPromptGenerator) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && runRequest(context) != nil
}

func (c *VideoPromptGenerator) Execute(context cor.Context) {
	reference := context.Get(c.GetInputParam()).(*model.Image)
	req := runRequest(context)
	analysis, _ := context.Get(ParamImageAnalysis).(string)
	c.status.Stage(context, "video-prompt")

	imageURL := ""
	if reference.Ref != nil {
		imageURL = reference.Ref.URL
	}
	prompt := c.prompts.GenerateVideoPrompt(context.GetContext(), req.UserPrompt, analysis, imageURL, req.AspectRatio)
	context.Add(ParamBasePrompt, prompt)
	c.Succeed(context, prompt)
}
