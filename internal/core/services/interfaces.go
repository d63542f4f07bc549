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

// Package services holds the pipeline components that sit between the chain commands
// and the cloud clients: the generation poller, the continuity frame extractor, the
// segment assembler, the prompt generators and the run record store.
//
// Each component depends only on the small interfaces below, so the cloud clients can
// be swapped for fakes in tests.
package services

import (
	"context"
	"time"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// ArtifactStore persists media and hands back durable references.
type ArtifactStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (*model.ArtifactRef, error)
	UploadFile(ctx context.Context, key string, path string, contentType string, metadata map[string]string) (*model.ArtifactRef, error)
	Download(ctx context.Context, url string) ([]byte, error)
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
	Delete(ctx context.Context, key string) error
}

// URLSigner issues time-limited read URLs.
type URLSigner interface {
	SignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, reference []byte, mimeType string) ([]byte, string, error)
}

// VideoGenerator is an asynchronous video job API: a submission returns immediately
// and the job is observed by polling.
type VideoGenerator interface {
	ModelName() string
	SubmitVideo(ctx context.Context, req *model.VideoGenerationRequest) (*model.GenerationOperation, error)
	PollVideo(ctx context.Context, operationID string) (*model.OperationStatus, error)
}

// MediaProcessor runs the external media tool.
type MediaProcessor interface {
	Probe(ctx context.Context, path string) (*model.MediaInfo, error)
	Run(ctx context.Context, args ...string) error
}

// RunRecordStore persists terminal run records.
type RunRecordStore interface {
	Put(ctx context.Context, record *model.RunRecord) error
	Get(ctx context.Context, runID string) (*model.RunRecord, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.RunRecord, error)
	Delete(ctx context.Context, runID string) error
}

// RunStatusTracker holds the live status of in-flight runs.
type RunStatusTracker interface {
	SetRunStatus(ctx context.Context, runID string, status string) error
	GetRunStatus(ctx context.Context, runID string) (string, bool, error)
	DeleteRunStatus(ctx context.Context, runID string) error
}

// SegmentGenerator produces one stored segment video. GenerationPoller implements it.
type SegmentGenerator interface {
	Generate(ctx context.Context, req *model.VideoGenerationRequest) (*model.ArtifactRef, error)
}

// FrameSource extracts a stored still from a stored video. FrameExtractor implements it.
type FrameSource interface {
	Extract(ctx context.Context, videoURL string, position model.FramePosition, format model.FrameFormat) (*model.ArtifactRef, error)
}

type ContinuationWriter interface {
	Continue(ctx context.Context, in *model.ContinuationInput) string
}

type Assembler interface {
	Assemble(ctx context.Context, req *model.AssemblyRequest) (*model.ArtifactRef, error)
}
