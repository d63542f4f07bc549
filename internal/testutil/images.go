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
	"bytes"
	"image/color"

	"github.com/disintegration/imaging"
)

// PNGBytes encodes a solid width x height image as PNG.
func PNGBytes(width, height int) []byte {
	var buf bytes.Buffer
	img := imaging.New(width, height, color.NRGBA{R: 30, G: 120, B: 200, A: 255})
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
