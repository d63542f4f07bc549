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
	"fmt"

	"github.com/google/uuid"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// SegmentVideoKey names the object of a generated segment. index is 0-based; the key
// uses the 1-based segment number.
func SegmentVideoKey(index int) string {
	return fmt.Sprintf("%s/segment-%d-%s.mp4", model.SegmentVideosPrefix, index+1, uuid.NewString())
}

func FrameKey(format model.FrameFormat) string {
	return fmt.Sprintf("%s/frame-%s.%s", model.ExtractedFramesPrefix, uuid.NewString(), format)
}

func CombinedVideoKey() string {
	return fmt.Sprintf("%s/combined-video-%s.mp4", model.CombinedVideosPrefix, uuid.NewString())
}

func GeneratedImageKey(runID string) string {
	return fmt.Sprintf("%s/%s-%s.png", model.GeneratedImagesPrefix, runID, uuid.NewString())
}
