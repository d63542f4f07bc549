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

package services_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/services"
	test "github.com/jaycherian/gcp-go-video-pipeline/internal/testutil"
)

const segmentURL = "https://storage.test/bucket/sequential-videos/segment-1.mp4"

func TestSeekSeconds(t *testing.T) {
	assert.Equal(t, 0.0, services.SeekSeconds(model.FirstFrame, 8))
	assert.InDelta(t, 7.9, services.SeekSeconds(model.LastFrame, 8), 1e-9)
	assert.Equal(t, 0.0, services.SeekSeconds(model.LastFrame, 0.05))
	assert.Equal(t, 3.5, services.SeekSeconds(model.AtSeconds(3.5), 8))
	assert.Equal(t, 0.0, services.SeekSeconds(model.AtSeconds(-2), 8))
}

func TestFrameArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"-y", "-ss", "7.900", "-i", "in.mp4", "-frames:v", "1", "out.jpg"},
		services.FrameArgs("in.mp4", 7.9, "out.jpg"))
}

func scratchEntries(t *testing.T, dir string) int {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestExtractLastFrame(t *testing.T) {
	store := test.NewFakeStore()
	store.Put(segmentURL, []byte("video"))
	media := test.NewFakeMedia()
	scratch := t.TempDir()

	ref, err := services.NewFrameExtractor(store, media, scratch).
		Extract(context.Background(), segmentURL, model.LastFrame, model.FrameFormatJPEG)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ref.Key, "extracted-frames/frame-"), ref.Key)
	assert.True(t, strings.HasSuffix(ref.Key, ".jpg"))
	assert.Equal(t, "image/jpeg", ref.MIMEType)
	assert.Equal(t, 16, ref.Width)
	assert.Equal(t, 9, ref.Height)
	require.Len(t, media.Runs, 1)
	assert.Equal(t, "7.900", media.Runs[0][2])
	assert.Len(t, media.Probes, 1)
	assert.Equal(t, 0, scratchEntries(t, scratch))
}

func TestExtractFirstFrameSkipsProbe(t *testing.T) {
	store := test.NewFakeStore()
	store.Put(segmentURL, []byte("video"))
	media := test.NewFakeMedia()

	ref, err := services.NewFrameExtractor(store, media, t.TempDir()).
		Extract(context.Background(), segmentURL, model.FirstFrame, model.FrameFormatPNG)
	require.NoError(t, err)
	assert.Equal(t, "png", ref.Format)
	assert.Empty(t, media.Probes)
	assert.Equal(t, "0.000", media.Runs[0][2])
}

func TestExtractFailures(t *testing.T) {
	t.Run("tool failure", func(t *testing.T) {
		store := test.NewFakeStore()
		store.Put(segmentURL, []byte("video"))
		media := test.NewFakeMedia()
		media.RunErr = assert.AnError
		scratch := t.TempDir()

		_, err := services.NewFrameExtractor(store, media, scratch).
			Extract(context.Background(), segmentURL, model.LastFrame, model.FrameFormatJPEG)
		require.ErrorIs(t, err, model.ErrFrameExtractionFailed)
		assert.Equal(t, 0, scratchEntries(t, scratch))
		assert.Empty(t, store.Uploads)
	})
	t.Run("unknown duration", func(t *testing.T) {
		store := test.NewFakeStore()
		store.Put(segmentURL, []byte("video"))
		media := test.NewFakeMedia()
		media.Info.DurationSeconds = 0
		scratch := t.TempDir()

		_, err := services.NewFrameExtractor(store, media, scratch).
			Extract(context.Background(), segmentURL, model.LastFrame, model.FrameFormatJPEG)
		require.ErrorIs(t, err, model.ErrFrameExtractionFailed)
		assert.Contains(t, err.Error(), "no duration")
		assert.Empty(t, media.Runs)
		assert.Empty(t, store.Uploads)
		assert.Equal(t, 0, scratchEntries(t, scratch))
	})
	t.Run("missing video", func(t *testing.T) {
		scratch := t.TempDir()
		_, err := services.NewFrameExtractor(test.NewFakeStore(), test.NewFakeMedia(), scratch).
			Extract(context.Background(), segmentURL, model.LastFrame, model.FrameFormatJPEG)
		require.ErrorIs(t, err, model.ErrFrameExtractionFailed)
		assert.Equal(t, 0, scratchEntries(t, scratch))
	})
}
