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
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultPollCeiling  = 60
)

// GenerationPoller turns an asynchronous video job into a blocking call: it submits
// the job, polls at a fixed interval up to a ceiling, and persists the result.
//
// The wait budget of one job is Interval x Ceiling. Exhausting it reports
// model.ErrGenerationTimeout; a job that finishes without a video, for example
// because a safety filter removed it, reports model.ErrGenerationFailed with the
// provider's message. The finished video is stored under sequential-videos/ unless
// the request names a key; a result returned by URI is downloaded first.
type GenerationPoller struct {
	Generator VideoGenerator
	Store     ArtifactStore
	Clock     Clock
	Interval  time.Duration
	Ceiling   int

	attempts metric.Int64Counter
}

func NewGenerationPoller(generator VideoGenerator, store ArtifactStore, clock Clock, interval time.Duration, ceiling int) *GenerationPoller {
	if clock == nil {
		clock = SystemClock
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if ceiling <= 0 {
		ceiling = DefaultPollCeiling
	}
	attempts, _ := otel.Meter(cor.MeterName).Int64Counter("poll.attempts")
	return &GenerationPoller{
		Generator: generator,
		Store:     store,
		Clock:     clock,
		Interval:  interval,
		Ceiling:   ceiling,
		attempts:  attempts,
	}
}

// TimeoutSeconds is the total wait budget of one job.
func (p *GenerationPoller) TimeoutSeconds() int {
	return int((time.Duration(p.Ceiling) * p.Interval).Seconds())
}

// Generate submits req and blocks until the video is persisted, the ceiling is
// exhausted, or ctx is cancelled. Transient poll errors are logged and count as an
// attempt. The provider job is not cancelled when this call gives up.
func (p *GenerationPoller) Generate(ctx context.Context, req *model.VideoGenerationRequest) (*model.ArtifactRef, error) {
	op, err := p.Generator.SubmitVideo(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: submit segment %d: %w", model.ErrGenerationFailed, req.SegmentIndex, err)
	}
	log := slog.With("run_id", req.RunID, "segment", req.SegmentIndex, "operation", op.ID)
	log.Info("video generation submitted", "model", op.Model)

	var last *model.OperationStatus
	for attempt := 1; attempt <= p.Ceiling; attempt++ {
		if err := p.Clock.Sleep(ctx, p.Interval); err != nil {
			return nil, fmt.Errorf("polling %s cancelled: %w", op.ID, err)
		}
		p.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("model", op.Model)))
		status, err := p.Generator.PollVideo(ctx, op.ID)
		if err != nil {
			op.Apply(nil)
			log.Warn("poll failed, will retry", "attempt", attempt, "error", err)
			continue
		}
		last = status
		op.Apply(status)
		if op.Done {
			break
		}
		log.Debug("video generation in progress", "attempt", attempt)
	}

	if !op.Done {
		op.Fail(true)
		return nil, fmt.Errorf("%w: video generation %s timed out after %d seconds", model.ErrGenerationTimeout, op.ID, p.TimeoutSeconds())
	}
	if op.Result == nil {
		op.Fail(false)
		reason := last.ErrorMessage
		if reason == "" {
			reason = "no video in response"
		}
		return nil, fmt.Errorf("%w: operation %s finished without a video: %s (response: %s)",
			model.ErrGenerationFailed, op.ID, reason, last.ResponseShape)
	}

	ref, err := p.persist(ctx, req, op)
	if err != nil {
		return nil, err
	}
	op.ResultRef = ref
	log.Info("video generation persisted", "attempts", op.PollAttempt, "url", ref.URL)
	return ref, nil
}

func (p *GenerationPoller) persist(ctx context.Context, req *model.VideoGenerationRequest, op *model.GenerationOperation) (*model.ArtifactRef, error) {
	data := op.Result.Bytes
	if len(data) == 0 {
		var err error
		if data, err = p.Store.Download(ctx, op.Result.URI); err != nil {
			return nil, fmt.Errorf("%w: fetch result of %s: %w", model.ErrStorage, op.ID, err)
		}
	}
	mimeType := op.Result.MIMEType
	if mimeType == "" {
		mimeType = model.DefaultVideoMIMEType
	}
	key := req.StorageKey
	if key == "" {
		key = SegmentVideoKey(req.SegmentIndex)
	}
	ref, err := p.Store.Upload(ctx, key, data, mimeType, map[string]string{
		"segmentIndex": strconv.Itoa(req.SegmentIndex + 1),
		"prompt":       truncate(req.Prompt, 1024),
		"aspectRatio":  string(req.AspectRatio),
		"generatedAt":  p.Clock.Now().UTC().Format(time.RFC3339),
		"model":        op.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: persist segment %d: %w", model.ErrStorage, req.SegmentIndex, err)
	}
	ref.Format = "mp4"
	ref.DurationSeconds = model.SegmentSeconds
	return ref, nil
}

func truncate(in string, n int) string {
	if len(in) <= n {
		return in
	}
	return in[:n]
}
