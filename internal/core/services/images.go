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

package services

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// DefaultMaxImageEdge bounds the long edge of images sent to the models.
const DefaultMaxImageEdge = 2048

// PrepareImage sniffs, decodes and measures data. An image whose long edge exceeds
// maxEdge is fitted inside maxEdge x maxEdge and re-encoded in its own format (PNG
// for anything imaging cannot write back).
func PrepareImage(data []byte, maxEdge int) (*model.Image, error) {
	if !filetype.IsImage(data) {
		kind, _ := filetype.Match(data)
		return nil, fmt.Errorf("%w: expected an image, got %s", model.ErrUnsupportedMediaFormat, describeKind(kind.MIME.Value))
	}
	kind, _ := filetype.Match(data)
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode %s: %w", model.ErrUnsupportedMediaFormat, kind.MIME.Value, err)
	}
	out := &model.Image{Data: data, MIMEType: kind.MIME.Value}
	b := img.Bounds()
	out.Width, out.Height = b.Dx(), b.Dy()

	if maxEdge > 0 && max(out.Width, out.Height) > maxEdge {
		var fitted image.Image = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
		format := imaging.PNG
		mimeType := "image/png"
		if kind.MIME.Value == "image/jpeg" {
			format, mimeType = imaging.JPEG, "image/jpeg"
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, fitted, format); err != nil {
			return nil, fmt.Errorf("re-encode fitted image: %w", err)
		}
		out.Data, out.MIMEType = buf.Bytes(), mimeType
		out.Width, out.Height = fitted.Bounds().Dx(), fitted.Bounds().Dy()
	}
	return out, nil
}

func describeKind(mime string) string {
	if mime == "" {
		return "unknown content"
	}
	return mime
}
