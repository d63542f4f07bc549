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
	"errors"
	"fmt"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/services"
)

// ReferenceImageGenerator renders the first frame of the video: the product placed in
// a casual scene. The stored image seeds segment 1.
//
// Input: the *model.ImagePrompt written by ImagePromptGenerator and the source image
// under ParamSourceImage, which is sent along as the visual reference.
// Output: the stored reference *model.Image, also under ParamReferenceImage.
// A generator error or an unusable image fails the run as model.ErrGenerationFailed.
type ReferenceImageGenerator struct {
	cor.BaseCommand
	generator services.ImageGenerator
	store     services.ArtifactStore
	status    *StatusReporter
}

func NewReferenceImageGenerator(name string, generator services.ImageGenerator, store services.ArtifactStore, status *StatusReporter) *ReferenceImageGenerator {
	return &ReferenceImageGenerator{BaseCommand: *cor.NewBaseCommand(name), generator: generator, store: store, status: status}
}

func (c *ReferenceImageGenerator) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(ParamSourceImage) != nil
}

func (c *ReferenceImageGenerator) Execute(context cor.Context) {
	prompt := context.Get(c.GetInputParam()).(*model.ImagePrompt)
	source := context.Get(ParamSourceImage).(*model.Image)
	c.status.Stage(context, "reference-image")

	data, _, err := c.generator.GenerateImage(context.GetContext(), prompt.ImagePrompt, source.Data, source.MIMEType)
	if err != nil {
		if !errors.Is(err, model.ErrGenerationFailed) {
			err = fmt.Errorf("%w: %w", model.ErrGenerationFailed, err)
		}
		c.Fail(context, fmt.Errorf("reference image: %w", err))
		return
	}
	img, err := services.PrepareImage(data, 0)
	if err != nil {
		c.Fail(context, fmt.Errorf("%w: reference image is not usable: %v", model.ErrGenerationFailed, err))
		return
	}

	ref, err := c.store.Upload(context.GetContext(), services.GeneratedImageKey(runID(context)), img.Data, img.MIMEType, map[string]string{
		"runId":       runID(context),
		"aspectRatio": prompt.AspectRatioImage,
	})
	if err != nil {
		c.Fail(context, fmt.Errorf("store reference image: %w", err))
		return
	}
	ref.Width, ref.Height = img.Width, img.Height
	img.Ref = ref
	context.Add(ParamReferenceImage, img)
	c.Succeed(context, img)
}
