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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/services"
	test "github.com/jaycherian/gcp-go-video-pipeline/internal/testutil"
)

func newPoller(gen *test.FakeVideoGenerator, store *test.FakeStore, clock *test.FakeClock) *services.GenerationPoller {
	return services.NewGenerationPoller(gen, store, clock, 10*time.Second, 60)
}

func segmentRequest(index int) *model.VideoGenerationRequest {
	return &model.VideoGenerationRequest{
		Prompt:       "dialogue: hey\naction: shows bottle\ncamera: selfie",
		SeedImage:    test.PNGBytes(8, 8),
		SeedMIMEType: "image/png",
		AspectRatio:  model.AspectRatioPortrait,
		SegmentIndex: index,
		RunID:        "run-1",
	}
}

func TestPollerPersistsCompletedVideo(t *testing.T) {
	gen := test.NewFakeVideoGenerator()
	gen.DoneAfter = 3
	store := test.NewFakeStore()
	clock := test.NewFakeClock()

	ref, err := newPoller(gen, store, clock).Generate(context.Background(), segmentRequest(1))
	require.NoError(t, err)

	assert.Equal(t, 3, clock.Sleeps)
	assert.True(t, strings.HasPrefix(ref.Key, "sequential-videos/segment-2-"), ref.Key)
	assert.True(t, strings.HasSuffix(ref.Key, ".mp4"))
	assert.Equal(t, float64(model.SegmentSeconds), ref.DurationSeconds)

	require.Len(t, store.Uploads, 1)
	meta := store.Uploads[0].Metadata
	assert.Equal(t, "2", meta["segmentIndex"])
	assert.Equal(t, "fake-veo", meta["model"])
	assert.Equal(t, "9:16", meta["aspectRatio"])
	assert.NotEmpty(t, meta["generatedAt"])

	data, ok := store.Object(ref.URL)
	require.True(t, ok)
	assert.Equal(t, []byte("mp4-bytes"), data)
}

func TestPollerTimesOutAtCeiling(t *testing.T) {
	gen := test.NewFakeVideoGenerator()
	gen.DoneAfter = -1
	store := test.NewFakeStore()
	clock := test.NewFakeClock()
	poller := newPoller(gen, store, clock)

	_, err := poller.Generate(context.Background(), segmentRequest(0))
	require.ErrorIs(t, err, model.ErrGenerationTimeout)
	assert.Contains(t, err.Error(), "timed out after 600 seconds")
	assert.Equal(t, 60, gen.Polls)
	assert.Equal(t, 60, clock.Sleeps)
	assert.Equal(t, 600, poller.TimeoutSeconds())
	assert.Empty(t, store.Uploads)
}

func TestPollerFailsWhenDoneWithoutVideo(t *testing.T) {
	gen := test.NewFakeVideoGenerator()
	gen.NoVideo = true
	store := test.NewFakeStore()

	_, err := newPoller(gen, store, test.NewFakeClock()).Generate(context.Background(), segmentRequest(0))
	require.ErrorIs(t, err, model.ErrGenerationFailed)
	assert.Contains(t, err.Error(), "filtered by safety policy")
	assert.Contains(t, err.Error(), "raiMediaFilteredCount=1")
	assert.Empty(t, store.Uploads)
}

func TestPollerRetriesTransientPollErrors(t *testing.T) {
	gen := test.NewFakeVideoGenerator()
	gen.PollErrs = 2
	store := test.NewFakeStore()
	clock := test.NewFakeClock()

	_, err := newPoller(gen, store, clock).Generate(context.Background(), segmentRequest(0))
	require.NoError(t, err)
	assert.Equal(t, 3, gen.Polls)
	assert.Equal(t, 3, clock.Sleeps)
}

func TestPollerFetchesResultByURI(t *testing.T) {
	gen := test.NewFakeVideoGenerator()
	gen.VideoBytes = nil
	gen.VideoURI = "gs://veo-output/run-1/sample_0.mp4"
	store := test.NewFakeStore()
	store.Put(gen.VideoURI, []byte("from-uri"))

	ref, err := newPoller(gen, store, test.NewFakeClock()).Generate(context.Background(), segmentRequest(0))
	require.NoError(t, err)
	data, _ := store.Object(ref.URL)
	assert.Equal(t, []byte("from-uri"), data)
}

func TestPollerSubmitFailure(t *testing.T) {
	gen := test.NewFakeVideoGenerator()
	gen.SubmitErr = assert.AnError
	clock := test.NewFakeClock()

	_, err := newPoller(gen, test.NewFakeStore(), clock).Generate(context.Background(), segmentRequest(0))
	require.ErrorIs(t, err, model.ErrGenerationFailed)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, clock.Sleeps)
}

func TestPollerStopsOnCancel(t *testing.T) {
	gen := test.NewFakeVideoGenerator()
	gen.DoneAfter = -1
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newPoller(gen, test.NewFakeStore(), test.NewFakeClock()).Generate(ctx, segmentRequest(0))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, gen.Polls)
}

func TestPollerDefaults(t *testing.T) {
	p := services.NewGenerationPoller(test.NewFakeVideoGenerator(), test.NewFakeStore(), nil, 0, 0)
	assert.Equal(t, services.DefaultPollInterval, p.Interval)
	assert.Equal(t, services.DefaultPollCeiling, p.Ceiling)
	assert.Equal(t, services.SystemClock, p.Clock)
}
