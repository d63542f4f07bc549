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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/services"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-video-pipeline/internal/testutil"
)

const sourceURL = "https://storage.googleapis.com/test-bucket/uploads/bottle.png"

type apiFixture struct {
	router  *gin.Engine
	store   *test.FakeStore
	records *test.FakeRunStore
	status  *services.MemoryStatusTracker
	images  *test.FakeImageGenerator
	deps    *workflow.PipelineDependencies
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &apiFixture{
		store:   test.NewFakeStore(),
		records: &test.FakeRunStore{},
		status:  services.NewMemoryStatusTracker(),
		images:  &test.FakeImageGenerator{},
	}
	f.store.Put(sourceURL, test.PNGBytes(64, 96))

	templates, err := services.ParsePromptTemplates("", "", "", "")
	require.NoError(t, err)
	text := &test.FakeText{Response: "dialogue: hi\naction: waves\ncamera: selfie\nemotion: happy\ntype: veo3_fast"}
	media := test.NewFakeMedia()
	scratch := t.TempDir()
	deps := &workflow.PipelineDependencies{
		Store:     f.store,
		Records:   f.records,
		Status:    f.status,
		Prompts:   services.NewPromptGenerator(&test.FakeAnalyzer{Response: "brand_name: Acme"}, text, templates),
		Images:    f.images,
		Segments:  services.NewGenerationPoller(test.NewFakeVideoGenerator(), f.store, test.NewFakeClock(), time.Second, 5),
		Frames:    services.NewFrameExtractor(f.store, media, scratch),
		Continuer: services.NewContinuationPromptGenerator(text, templates.Continuation),
		Assembler: services.NewSegmentAssembler(f.store, media, scratch, 2),
		Clock:     test.NewFakeClock(),
	}
	f.deps = deps
	opts := workflow.PipelineOptions{FrameFormat: model.FrameFormatJPEG, ScratchDir: scratch}
	api := NewVideoAPI(workflow.NewVideoPipelineWorkflow(deps, opts), deps, opts, f.store, time.Minute)

	f.router = gin.New()
	VideoRouter(f.router.Group("/api/v1"), api)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		var err error
		payload, err = json.Marshal(b)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, "/api/v1/videos"+path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func runBody(duration int) map[string]interface{} {
	return map[string]interface{}{
		"sourceImageUrl":       sourceURL,
		"userPrompt":           "show the bottle",
		"totalDurationSeconds": duration,
		"aspectRatio":          "9:16",
		"ownerId":              "user-42",
	}
}

func TestCreateComplete(t *testing.T) {
	f := newAPIFixture(t)

	w, out := f.do(t, http.MethodPost, "/create-complete", runBody(16))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, out["success"])
	assert.Len(t, out["segments"], 2)
	assert.NotEmpty(t, out["finalVideoUrl"])

	w, out = f.do(t, http.MethodPost, "/create-complete", runBody(4))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.ErrorKindValidation, out["errorKind"])

	w, _ = f.do(t, http.MethodPost, "/create-complete", "{")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, f.records.Records, 1)
}

func TestCreateCompleteReportsFailureInBody(t *testing.T) {
	f := newAPIFixture(t)
	f.images.Err = assert.AnError

	w, out := f.do(t, http.MethodPost, "/create-complete", runBody(8))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, model.ErrorKindGenerationFailed, out["errorKind"])
}

func TestGenerateSequentialAndStatus(t *testing.T) {
	f := newAPIFixture(t)

	w, out := f.do(t, http.MethodPost, "/generate-sequential", runBody(8))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	runID, _ := out["runId"].(string)
	require.NotEmpty(t, runID)

	assert.Eventually(t, func() bool {
		status, _, _ := f.status.GetRunStatus(context.Background(), runID)
		return status == services.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	w, out = f.do(t, http.MethodGet, "/status/"+runID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.StatusCompleted, out["status"])

	// Without a cached status the record answers.
	require.NoError(t, f.status.DeleteRunStatus(context.Background(), runID))
	w, out = f.do(t, http.MethodGet, "/status/"+runID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", out["status"])
	assert.NotNil(t, out["record"])

	w, _ = f.do(t, http.MethodGet, "/status/video_nobody_1_deadbeef", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListStreamAndDelete(t *testing.T) {
	f := newAPIFixture(t)
	_, out := f.do(t, http.MethodPost, "/create-complete", runBody(8))
	runID := out["runId"].(string)
	record, err := f.records.Get(context.Background(), runID)
	require.NoError(t, err)

	w, _ := f.do(t, http.MethodGet, "/list", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodGet, "/list?ownerId=user-42", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []*model.RunRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, runID, listed[0].RunID)

	w, out = f.do(t, http.MethodGet, "/"+runID+"/stream", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, test.FakeBaseURL+record.FinalVideoKey+"?expires=60", out["url"])

	w, _ = f.do(t, http.MethodDelete, "/"+runID+"?ownerId=someone-else", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = f.do(t, http.MethodDelete, "/unknown-run?ownerId=user-42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, http.MethodDelete, "/"+runID+"?ownerId=user-42", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{record.FinalVideoKey}, f.store.Deleted)
	assert.Empty(t, f.records.Records)
}

type unavailableStatus struct {
	*services.MemoryStatusTracker
}

func (unavailableStatus) DeleteRunStatus(context.Context, string) error {
	return errors.New("status cache unavailable")
}

func TestDeleteLogsStatusFailure(t *testing.T) {
	var logs bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	defer slog.SetDefault(previous)

	f := newAPIFixture(t)
	_, out := f.do(t, http.MethodPost, "/create-complete", runBody(8))
	runID := out["runId"].(string)
	f.deps.Status = unavailableStatus{f.status}

	w, _ := f.do(t, http.MethodDelete, "/"+runID+"?ownerId=user-42", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.records.Records)
	assert.Contains(t, logs.String(), "failed to delete run status")
	assert.Contains(t, logs.String(), "status cache unavailable")
}

func TestStageEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	w, out := f.do(t, http.MethodPost, "/analyze-image", map[string]string{"imageUrl": sourceURL})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "brand_name: Acme", out["analysis"])

	w, out = f.do(t, http.MethodPost, "/generate-prompt", map[string]string{"userPrompt": "x", "analysis": "y"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.FallbackImagePrompt, out["image_prompt"])

	w, out = f.do(t, http.MethodPost, "/generate-video-prompt", map[string]string{"userPrompt": "x", "imageUrl": sourceURL})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, out["prompt"], "dialogue: hi")

	w, out = f.do(t, http.MethodPost, "/generate-image", map[string]string{"prompt": "holds bottle", "imageUrl": sourceURL})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(out["url"].(string), test.FakeBaseURL+model.GeneratedImagesPrefix+"/"))
	assert.EqualValues(t, 32, out["width"])

	w, out = f.do(t, http.MethodPost, "/analyze-image", map[string]string{"imageUrl": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.ErrorKindValidation, out["errorKind"])
}

func TestMediaEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	videoURL := test.FakeBaseURL + "sequential-videos/segment-1.mp4"
	f.store.Put(videoURL, []byte("mp4"))

	w, out := f.do(t, http.MethodPost, "/extract-frames", map[string]string{"videoUrl": videoURL, "position": "last"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(out["url"].(string), test.FakeBaseURL+model.ExtractedFramesPrefix+"/"))

	w, _ = f.do(t, http.MethodPost, "/extract-frames", map[string]string{"videoUrl": videoURL, "position": "middle"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out = f.do(t, http.MethodPost, "/combine", map[string]interface{}{"inputs": []string{videoURL}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(out["url"].(string), test.FakeBaseURL+model.CombinedVideosPrefix+"/"))

	w, _ = f.do(t, http.MethodPost, "/combine", map[string]interface{}{"inputs": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A caller asking for a crossfade longer than its inputs made a bad request.
	w, out = f.do(t, http.MethodPost, "/combine", map[string]interface{}{
		"inputs":                   []string{videoURL, videoURL},
		"mode":                     "crossfade",
		"crossfadeDurationSeconds": 9,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.ErrorKindValidation, out["errorKind"])
}
