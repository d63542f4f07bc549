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

package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/services"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-video-pipeline/internal/testutil"
)

const (
	sourceURL = "https://storage.googleapis.com/test-bucket/uploads/bottle.png"

	basePrompt = "dialogue: hey everyone... look what I found\n" +
		"action: holds the bottle up to the camera\n" +
		"camera: amateur iphone selfie video\n" +
		"emotion: excited\n" +
		"type: veo3_fast"

	continuationPrompt = "dialogue: and it keeps drinks cold all day\n" +
		"action: tilts the bottle to show the label\n" +
		"camera: amateur iphone selfie video\n" +
		"emotion: enthusiastic\n" +
		"type: veo3_fast"
)

type harness struct {
	store    *test.FakeStore
	records  *test.FakeRunStore
	status   *services.MemoryStatusTracker
	gen      *test.FakeVideoGenerator
	media    *test.FakeMedia
	text     *test.FakeText
	analyzer *test.FakeAnalyzer
	images   *test.FakeImageGenerator
	clock    *test.FakeClock
	scratch  string
	pipeline *workflow.VideoPipelineWorkflow
}

// respond answers each text stage by recognising its prompt.
func respond(prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "continuation video prompt"):
		return continuationPrompt, nil
	case strings.Contains(prompt, "Create 1 image prompt"):
		return `{"image_prompt": "action: holds bottle\nsetting: park bench", "aspect_ratio_image": "2:3"}`, nil
	default:
		return basePrompt, nil
	}
}

func newHarness(t *testing.T, opts workflow.PipelineOptions) *harness {
	t.Helper()
	h := &harness{
		store:    test.NewFakeStore(),
		records:  &test.FakeRunStore{},
		status:   services.NewMemoryStatusTracker(),
		gen:      test.NewFakeVideoGenerator(),
		media:    test.NewFakeMedia(),
		text:     &test.FakeText{Respond: respond},
		analyzer: &test.FakeAnalyzer{Response: "brand_name: Acme\nvisual_description: steel bottle"},
		images:   &test.FakeImageGenerator{},
		clock:    test.NewFakeClock(),
		scratch:  t.TempDir(),
	}
	h.store.Put(sourceURL, test.PNGBytes(64, 96))
	if opts.ScratchDir == "" {
		opts.ScratchDir = h.scratch
	}

	templates, err := services.ParsePromptTemplates("", "", "", "")
	require.NoError(t, err)
	h.pipeline = workflow.NewVideoPipelineWorkflow(&workflow.PipelineDependencies{
		Store:     h.store,
		Records:   h.records,
		Status:    h.status,
		Prompts:   services.NewPromptGenerator(h.analyzer, h.text, templates),
		Images:    h.images,
		Segments:  services.NewGenerationPoller(h.gen, h.store, h.clock, 10*time.Second, 60),
		Frames:    services.NewFrameExtractor(h.store, h.media, h.scratch),
		Continuer: services.NewContinuationPromptGenerator(h.text, templates.Continuation),
		Assembler: services.NewSegmentAssembler(h.store, h.media, h.scratch, 2),
		Clock:     h.clock,
	}, opts)
	return h
}

func request(duration int) *model.RunRequest {
	return &model.RunRequest{
		SourceImageURL:       sourceURL,
		UserPrompt:           "a runner shows the bottle after a jog",
		TotalDurationSeconds: duration,
		AspectRatio:          model.AspectRatioPortrait,
		OwnerID:              "user-42",
	}
}

func (h *harness) frameRuns() int {
	n := 0
	for _, args := range h.media.Runs {
		for _, a := range args {
			if a == "-frames:v" {
				n++
			}
		}
	}
	return n
}

func (h *harness) continuationCalls() int {
	n := 0
	for _, p := range h.text.Prompts {
		if strings.Contains(p, "continuation video prompt") {
			n++
		}
	}
	return n
}

func TestSingleSegmentRun(t *testing.T) {
	h := newHarness(t, workflow.PipelineOptions{})
	result := h.pipeline.Run(context.Background(), request(8))

	require.True(t, result.Success, result.Error)
	require.Len(t, result.Segments, 1)
	assert.Equal(t, 0, result.Segments[0].Index)
	assert.Equal(t, 8, result.Segments[0].DurationSeconds)
	assert.True(t, strings.HasPrefix(result.FinalVideoURL, test.FakeBaseURL+"combined-videos/combined-video-"))

	require.Len(t, h.gen.Requests, 1)
	assert.Equal(t, basePrompt, h.gen.Requests[0].Prompt)
	assert.Equal(t, test.PNGBytes(32, 48), h.gen.Requests[0].SeedImage)
	assert.Equal(t, model.AspectRatioPortrait, h.gen.Requests[0].AspectRatio)
	assert.Equal(t, 0, h.frameRuns())
	assert.Equal(t, 0, h.continuationCalls())
	// A single segment is stored as the final video without re-encoding.
	assert.Empty(t, h.media.Runs)

	require.Len(t, h.records.Records, 1)
	record := h.records.Records[0]
	assert.Equal(t, result.RunID, record.RunID)
	assert.Equal(t, "completed", record.Status)
	assert.Equal(t, 8, record.DurationSeconds)
	assert.Equal(t, 1, record.NumberOfSegments)
	assert.Equal(t, sourceURL, record.ImageURL)

	status, ok, _ := h.status.GetRunStatus(context.Background(), result.RunID)
	assert.True(t, ok)
	assert.Equal(t, services.StatusCompleted, status)
}

func TestTwoSegmentRunCarriesContinuity(t *testing.T) {
	h := newHarness(t, workflow.PipelineOptions{})
	result := h.pipeline.Run(context.Background(), request(16))

	require.True(t, result.Success, result.Error)
	require.Len(t, result.Segments, 2)
	assert.Equal(t, []int{0, 1}, []int{result.Segments[0].Index, result.Segments[1].Index})

	require.Len(t, h.gen.Requests, 2)
	assert.Equal(t, basePrompt, h.gen.Requests[0].Prompt)
	assert.Equal(t, continuationPrompt, h.gen.Requests[1].Prompt)
	assert.Equal(t, 1, h.frameRuns())
	assert.Equal(t, 1, h.continuationCalls())

	// Segment 2 is seeded with the stored last frame of segment 1.
	var frameKey string
	for _, k := range h.store.UploadedKeys() {
		if strings.HasPrefix(k, model.ExtractedFramesPrefix) {
			frameKey = k
		}
	}
	require.NotEmpty(t, frameKey)
	frame, ok := h.store.Object(test.FakeBaseURL + frameKey)
	require.True(t, ok)
	assert.Equal(t, frame, h.gen.Requests[1].SeedImage)
	assert.Equal(t, "image/jpeg", h.gen.Requests[1].SeedMIMEType)

	continuation := h.text.Prompts[len(h.text.Prompts)-1]
	assert.Contains(t, continuation, "video segment 2 of 2")
	assert.Contains(t, continuation, basePrompt)

	// Frame extraction then assembly with a cut graph.
	require.Len(t, h.media.Runs, 2)
	assert.Contains(t, strings.Join(h.media.Runs[1], " "), "concat=n=2:v=1:a=1[outv][outa]")
	assert.Equal(t, 2, h.records.Records[0].NumberOfSegments)
	assert.Equal(t, 16, h.records.Records[0].DurationSeconds)
}

func TestSegmentCountDrivesGeneration(t *testing.T) {
	for _, duration := range []int{8, 9, 24, 64} {
		h := newHarness(t, workflow.PipelineOptions{})
		result := h.pipeline.Run(context.Background(), request(duration))
		require.True(t, result.Success, result.Error)

		n := model.SegmentCount(duration)
		assert.Len(t, result.Segments, n, "duration %d", duration)
		assert.Len(t, h.gen.Requests, n)
		assert.Equal(t, n-1, h.frameRuns())
		assert.Equal(t, n-1, h.continuationCalls())
		for i, req := range h.gen.Requests {
			assert.Equal(t, i, req.SegmentIndex)
		}
	}
}

func TestRunTimesOut(t *testing.T) {
	h := newHarness(t, workflow.PipelineOptions{})
	h.gen.DoneAfter = -1
	result := h.pipeline.Run(context.Background(), request(16))

	assert.False(t, result.Success)
	assert.Equal(t, model.ErrorKindGenerationTimeout, result.ErrorKind)
	assert.Contains(t, result.Error, "timed out after 600 seconds")
	assert.Empty(t, result.Segments)
	assert.Empty(t, result.FinalVideoURL)
	assert.Len(t, h.gen.Requests, 1)
	assert.Equal(t, 60, h.gen.Polls)

	require.Len(t, h.records.Records, 1)
	assert.Equal(t, "failed", h.records.Records[0].Status)
	assert.NotEmpty(t, h.records.Records[0].Error)
	status, _, _ := h.status.GetRunStatus(context.Background(), result.RunID)
	assert.Equal(t, services.StatusFailed, status)
}

func TestFrameExtractionFailureIsFatal(t *testing.T) {
	h := newHarness(t, workflow.PipelineOptions{})
	h.media.RunErr = assert.AnError
	result := h.pipeline.Run(context.Background(), request(16))

	assert.False(t, result.Success)
	assert.Equal(t, model.ErrorKindFrameExtraction, result.ErrorKind)
	assert.Len(t, h.gen.Requests, 1)
	assert.Len(t, h.records.Records, 1)
}

func TestValidationTouchesNothing(t *testing.T) {
	h := newHarness(t, workflow.PipelineOptions{})
	h.store.Downloads = nil
	for _, req := range []*model.RunRequest{
		request(7),
		request(65),
		{SourceImageURL: "not a url", TotalDurationSeconds: 8, OwnerID: "user-42"},
		{SourceImageURL: sourceURL, TotalDurationSeconds: 8},
		nil,
	} {
		result := h.pipeline.Run(context.Background(), req)
		assert.False(t, result.Success)
		assert.Equal(t, model.ErrorKindValidation, result.ErrorKind)
		assert.NotNil(t, result.Segments)
	}
	assert.Empty(t, h.store.Downloads)
	assert.Empty(t, h.store.Uploads)
	assert.Empty(t, h.records.Records)
	assert.Empty(t, h.gen.Requests)
	assert.Empty(t, h.text.Prompts)
	assert.Equal(t, 0, h.analyzer.Calls)
}

func TestSourceImageMustBeAnImage(t *testing.T) {
	h := newHarness(t, workflow.PipelineOptions{})
	h.store.Put(sourceURL, []byte("%PDF-1.4 not an image"))
	result := h.pipeline.Run(context.Background(), request(8))

	assert.False(t, result.Success)
	assert.Equal(t, model.ErrorKindValidation, result.ErrorKind)
	assert.Equal(t, 0, h.analyzer.Calls)
	require.Len(t, h.records.Records, 1)
	assert.Equal(t, "failed", h.records.Records[0].Status)
}

func TestReferenceImageFailureIsFatal(t *testing.T) {
	h := newHarness(t, workflow.PipelineOptions{})
	h.images.Err = assert.AnError
	result := h.pipeline.Run(context.Background(), request(8))

	assert.False(t, result.Success)
	assert.Equal(t, model.ErrorKindGenerationFailed, result.ErrorKind)
	assert.Empty(t, h.gen.Requests)
}

func TestTextStagesFallBack(t *testing.T) {
	h := newHarness(t, workflow.PipelineOptions{})
	h.text.Respond = nil
	h.text.Err = assert.AnError
	h.analyzer.Err = assert.AnError
	result := h.pipeline.Run(context.Background(), request(16))

	require.True(t, result.Success, result.Error)
	require.Len(t, h.gen.Requests, 2)
	assert.Equal(t, model.FallbackBaseVideoPrompt, h.gen.Requests[0].Prompt)
	assert.Equal(t, model.FallbackContinuationPrompt, h.gen.Requests[1].Prompt)
	assert.Equal(t, model.FallbackImagePrompt, h.images.Prompts[0])
}

func TestRecordFailureDoesNotChangeResult(t *testing.T) {
	h := newHarness(t, workflow.PipelineOptions{})
	h.records.PutErr = assert.AnError
	result := h.pipeline.Run(context.Background(), request(8))
	assert.True(t, result.Success, result.Error)
	assert.Len(t, h.records.Records, 1)
}

func TestCancelledRunStillWritesRecord(t *testing.T) {
	h := newHarness(t, workflow.PipelineOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := h.pipeline.Run(ctx, request(8))

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "cancelled")
	require.Len(t, h.records.Records, 1)
	assert.Equal(t, "failed", h.records.Records[0].Status)
}

func TestCrossfadeAssembly(t *testing.T) {
	h := newHarness(t, workflow.PipelineOptions{CrossfadeSeconds: 0.5})
	req := request(16)
	req.AssemblyMode = model.AssemblyModeCrossfade
	result := h.pipeline.Run(context.Background(), req)

	require.True(t, result.Success, result.Error)
	last := strings.Join(h.media.Runs[len(h.media.Runs)-1], " ")
	assert.Contains(t, last, "xfade=transition=fade:duration=0.5:offset=7.5[outv]")
	assert.Contains(t, last, "acrossfade=d=0.5[outa]")
}

func TestCrossfadeLongerThanSegmentsFailsAssembly(t *testing.T) {
	h := newHarness(t, workflow.PipelineOptions{CrossfadeSeconds: 0.5})
	h.media.Info.DurationSeconds = 0.4
	req := request(16)
	req.AssemblyMode = model.AssemblyModeCrossfade
	result := h.pipeline.Run(context.Background(), req)

	assert.False(t, result.Success)
	assert.Equal(t, model.ErrorKindAssembly, result.ErrorKind)
	require.Len(t, h.records.Records, 1)
	assert.Equal(t, model.ErrorKindAssembly, h.records.Records[0].ErrorKind)
}

func TestRunScratchIsRemoved(t *testing.T) {
	h := newHarness(t, workflow.PipelineOptions{})
	result := h.pipeline.Run(context.Background(), request(16))
	require.True(t, result.Success, result.Error)

	var input string
	for _, args := range h.media.Runs {
		if len(args) > 4 && args[1] == "-ss" {
			input = args[4]
			break
		}
	}
	require.NotEmpty(t, input)
	runDir := filepath.Dir(filepath.Dir(input))
	assert.True(t, strings.HasPrefix(filepath.Base(runDir), "run-"), input)
	assert.Equal(t, h.scratch, filepath.Dir(runDir))

	entries, err := os.ReadDir(h.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPrepareDoesNotStartTheRun(t *testing.T) {
	h := newHarness(t, workflow.PipelineOptions{})
	run, err := h.pipeline.Prepare(request(16))
	require.NoError(t, err)
	assert.Equal(t, model.RunRunning, run.Status)
	assert.Empty(t, h.store.Uploads)

	result := h.pipeline.ExecuteRun(context.Background(), run)
	assert.True(t, result.Success, result.Error)
	assert.Equal(t, run.RunID, result.RunID)

	_, err = h.pipeline.Prepare(request(100))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestPipelineTrigger(t *testing.T) {
	t.Run("well formed", func(t *testing.T) {
		h := newHarness(t, workflow.PipelineOptions{})
		trigger := workflow.NewPipelineTriggerWorkflow(h.pipeline)
		chCtx := cor.NewContext(context.Background(), test.GetTestRunRequestText())
		defer chCtx.Close()
		h.store.Put("https://storage.googleapis.com/test-bucket/uploads/bottle.png", test.PNGBytes(64, 96))

		trigger.Execute(chCtx)
		require.False(t, chCtx.HasErrors(), chCtx.Err())
		result := chCtx.Get(workflow.ParamPipelineResult).(*model.PipelineResult)
		assert.True(t, result.Success, result.Error)
		assert.Len(t, result.Segments, 2)
	})
	t.Run("failed run is still acknowledged", func(t *testing.T) {
		h := newHarness(t, workflow.PipelineOptions{})
		h.images.Err = assert.AnError
		trigger := workflow.NewPipelineTriggerWorkflow(h.pipeline)
		chCtx := cor.NewContext(context.Background(), test.GetTestRunRequestText())
		defer chCtx.Close()

		trigger.Execute(chCtx)
		assert.False(t, chCtx.HasErrors())
		result := chCtx.Get(workflow.ParamPipelineResult).(*model.PipelineResult)
		assert.False(t, result.Success)
	})
	t.Run("malformed", func(t *testing.T) {
		h := newHarness(t, workflow.PipelineOptions{})
		trigger := workflow.NewPipelineTriggerWorkflow(h.pipeline)
		for _, msg := range []string{"{", `{"sourceImageUrl": "https://x/y.png", "totalDurationSeconds": 3, "ownerId": "u"}`} {
			chCtx := cor.NewContext(context.Background(), msg)
			trigger.Execute(chCtx)
			assert.True(t, chCtx.HasErrors())
			assert.ErrorIs(t, chCtx.Err(), model.ErrValidation)
			chCtx.Close()
		}
		assert.Empty(t, h.records.Records)
	})
}

func TestConfiguredPollingBudget(t *testing.T) {
	gen := test.NewFakeVideoGenerator()
	gen.DoneAfter = -1
	poller := services.NewGenerationPoller(gen, test.NewFakeStore(), test.NewFakeClock(), config.PollInterval(), config.Pipeline.PollCeiling)

	_, err := poller.Generate(context.Background(), &model.VideoGenerationRequest{
		Prompt:       basePrompt,
		SeedImage:    test.PNGBytes(2, 2),
		SeedMIMEType: "image/png",
		AspectRatio:  model.AspectRatioLandscape,
	})
	assert.ErrorIs(t, err, model.ErrGenerationTimeout)
	assert.Contains(t, err.Error(), "timed out after 5 seconds")
	assert.Equal(t, 5, gen.Polls)
}
