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
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// FakeBaseURL prefixes the URLs handed out by FakeStore.
const FakeBaseURL = "https://storage.test/bucket/"

// Upload is one recorded call to FakeStore.Upload or UploadFile.
type Upload struct {
	Key         string
	ContentType string
	Metadata    map[string]string
	Size        int
}

// FakeStore is an in-memory artifact store keyed by URL.
type FakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	Uploads   []Upload
	Downloads []string
	Deleted   []string
	UploadErr error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{objects: make(map[string][]byte)}
}

// Put seeds an object at url.
func (s *FakeStore) Put(url string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[url] = data
}

// Object returns the object stored at url.
func (s *FakeStore) Object(url string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[url]
	return data, ok
}

// UploadedKeys lists the keys written so far, in order.
func (s *FakeStore) UploadedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.Uploads))
	for _, u := range s.Uploads {
		out = append(out, u.Key)
	}
	return out
}

func (s *FakeStore) Upload(_ context.Context, key string, data []byte, contentType string, metadata map[string]string) (*model.ArtifactRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UploadErr != nil {
		return nil, s.UploadErr
	}
	url := FakeBaseURL + key
	s.objects[url] = append([]byte(nil), data...)
	s.Uploads = append(s.Uploads, Upload{Key: key, ContentType: contentType, Metadata: metadata, Size: len(data)})
	return &model.ArtifactRef{URL: url, Key: key, MIMEType: contentType, SizeBytes: int64(len(data))}, nil
}

func (s *FakeStore) UploadFile(ctx context.Context, key string, path string, contentType string, metadata map[string]string) (*model.ArtifactRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	return s.Upload(ctx, key, data, contentType, metadata)
}

func (s *FakeStore) Download(_ context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Downloads = append(s.Downloads, url)
	data, ok := s.objects[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s not found", model.ErrStorage, url)
	}
	return data, nil
}

func (s *FakeStore) DownloadToFile(ctx context.Context, url string, path string) (int64, error) {
	data, err := s.Download(ctx, url)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (s *FakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, FakeBaseURL+key)
	s.Deleted = append(s.Deleted, key)
	return nil
}

func (s *FakeStore) SignedURL(_ context.Context, key string, expires time.Duration) (string, error) {
	return fmt.Sprintf("%s%s?expires=%d", FakeBaseURL, key, int(expires.Seconds())), nil
}

// FakeClock advances only when slept on.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	Sleeps int
}

func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sleeps++
	c.now = c.now.Add(d)
	return nil
}

// FakeVideoGenerator completes every job after DoneAfter polls. A negative DoneAfter
// never completes.
type FakeVideoGenerator struct {
	mu         sync.Mutex
	DoneAfter  int
	VideoBytes []byte
	VideoURI   string
	NoVideo    bool
	SubmitErr  error
	PollErrs   int // the first PollErrs polls fail
	Requests   []*model.VideoGenerationRequest
	Polls      int
	polls      map[string]int
}

func NewFakeVideoGenerator() *FakeVideoGenerator {
	return &FakeVideoGenerator{DoneAfter: 1, VideoBytes: []byte("mp4-bytes"), polls: make(map[string]int)}
}

func (g *FakeVideoGenerator) ModelName() string {
	return "fake-veo"
}

func (g *FakeVideoGenerator) SubmitVideo(_ context.Context, req *model.VideoGenerationRequest) (*model.GenerationOperation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SubmitErr != nil {
		return nil, g.SubmitErr
	}
	g.Requests = append(g.Requests, req)
	id := fmt.Sprintf("operations/op-%d", len(g.Requests))
	return model.NewGenerationOperation(id, g.ModelName(), time.Time{}), nil
}

func (g *FakeVideoGenerator) PollVideo(_ context.Context, operationID string) (*model.OperationStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Polls++
	if g.Polls <= g.PollErrs {
		return nil, errors.New("transient poll failure")
	}
	g.polls[operationID]++
	if g.DoneAfter < 0 || g.polls[operationID] < g.DoneAfter {
		return &model.OperationStatus{}, nil
	}
	if g.NoVideo {
		return &model.OperationStatus{Done: true, ErrorMessage: "filtered by safety policy", ResponseShape: "raiMediaFilteredCount=1"}, nil
	}
	return &model.OperationStatus{Done: true, Video: &model.GeneratedVideo{
		URI:      g.VideoURI,
		Bytes:    g.VideoBytes,
		MIMEType: model.DefaultVideoMIMEType,
	}}, nil
}

// FakeMedia stands in for ffmpeg and ffprobe. Run writes a small image when the
// output ends in an image extension and placeholder bytes otherwise.
type FakeMedia struct {
	mu        sync.Mutex
	Info      model.MediaInfo
	Runs      [][]string
	Probes    []string
	RunErr    error
	ProbeErr  error
	FailProbe map[string]bool // probes of these file names fail
}

func NewFakeMedia() *FakeMedia {
	return &FakeMedia{Info: model.MediaInfo{DurationSeconds: 8, Width: 1280, Height: 720, FPS: 24, HasAudio: true}}
}

func (m *FakeMedia) Probe(_ context.Context, path string) (*model.MediaInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Probes = append(m.Probes, path)
	if m.ProbeErr != nil {
		return nil, m.ProbeErr
	}
	if m.FailProbe[filepath.Base(path)] {
		return nil, fmt.Errorf("probe %s: no streams", path)
	}
	info := m.Info
	return &info, nil
}

func (m *FakeMedia) Run(_ context.Context, args ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Runs = append(m.Runs, args)
	if m.RunErr != nil {
		return m.RunErr
	}
	output := args[len(args)-1]
	switch strings.ToLower(filepath.Ext(output)) {
	case ".png", ".jpg", ".jpeg":
		return imaging.Save(imaging.New(16, 9, color.NRGBA{R: 200, G: 80, B: 40, A: 255}), output)
	default:
		return os.WriteFile(output, []byte("assembled-video"), 0o600)
	}
}

// FakeText answers every prompt through Respond, or with Response when Respond is
// nil.
type FakeText struct {
	mu       sync.Mutex
	Response string
	Err      error
	Respond  func(prompt string) (string, error)
	Prompts  []string
}

func (f *FakeText) GenerateText(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, prompt)
	if f.Respond != nil {
		return f.Respond(prompt)
	}
	return f.Response, f.Err
}

type FakeAnalyzer struct {
	Response string
	Err      error
	Calls    int
}

func (f *FakeAnalyzer) AnalyzeImage(_ context.Context, _ string, _ []byte, _ string) (string, error) {
	f.Calls++
	return f.Response, f.Err
}

// FakeImageGenerator returns a small PNG for every prompt.
type FakeImageGenerator struct {
	Err     error
	Prompts []string
}

func (f *FakeImageGenerator) GenerateImage(_ context.Context, prompt string, _ []byte, _ string) ([]byte, string, error) {
	f.Prompts = append(f.Prompts, prompt)
	if f.Err != nil {
		return nil, "", f.Err
	}
	return PNGBytes(32, 48), "image/png", nil
}

// FakeRunStore keeps run records in memory.
type FakeRunStore struct {
	mu      sync.Mutex
	Records []*model.RunRecord
	PutErr  error
}

func (f *FakeRunStore) Put(_ context.Context, record *model.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Records = append(f.Records, record)
	return f.PutErr
}

func (f *FakeRunStore) Get(_ context.Context, runID string) (*model.RunRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.Records {
		if r.RunID == runID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", model.ErrRunNotFound, runID)
}

func (f *FakeRunStore) ListByOwner(_ context.Context, ownerID string, limit int) ([]*model.RunRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.RunRecord, 0)
	for i := len(f.Records) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if f.Records[i].OwnerID == ownerID {
			out = append(out, f.Records[i])
		}
	}
	return out, nil
}

func (f *FakeRunStore) Delete(_ context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.Records {
		if r.RunID == runID {
			f.Records = append(f.Records[:i], f.Records[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", model.ErrRunNotFound, runID)
}
