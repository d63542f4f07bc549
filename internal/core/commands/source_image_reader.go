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
	"fmt"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/services"
)

// SourceImageReader downloads the product image of the request, checks that it is
// an image and fits it to maxEdge.
//
// Input: the *model.RunRequest.
// Output: the prepared *model.Image, also under ParamSourceImage. Its Ref points at
// the original URL; the resized bytes are not stored.
type SourceImageReader struct {
	cor.BaseCommand
	store   services.ArtifactStore
	status  *StatusReporter
	maxEdge int
}

func NewSourceImageReader(name string, store services.ArtifactStore, status *StatusReporter, maxEdge int) *SourceImageReader {
	if maxEdge <= 0 {
		maxEdge = services.DefaultMaxImageEdge
	}
	return &SourceImageReader{BaseCommand: *cor.NewBaseCommand(name), store: store, status: status, maxEdge: maxEdge}
}

func (c *SourceImageReader) Execute(context cor.Context) {
	req := context.Get(c.GetInputParam()).(*model.RunRequest)
	c.status.Stage(context, "source-image")

	data, err := c.store.Download(context.GetContext(), req.SourceImageURL)
	if err != nil {
		c.Fail(context, fmt.Errorf("download source image: %w", err))
		return
	}
	img, err := services.PrepareImage(data, c.maxEdge)
	if err != nil {
		c.Fail(context, fmt.Errorf("source image %s: %w", req.SourceImageURL, err))
		return
	}
	img.Ref = &model.ArtifactRef{
		URL:       req.SourceImageURL,
		MIMEType:  img.MIMEType,
		Width:     img.Width,
		Height:    img.Height,
		SizeBytes: int64(len(img.Data)),
	}
	context.Add(ParamSourceImage, img)
	c.Succeed(context, img)
}
