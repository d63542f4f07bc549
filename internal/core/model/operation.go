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

package model

import (
	"fmt"
	"time"
)

// VideoGenerationRequest is submitted to the external video generation service.
type VideoGenerationRequest struct {
	Prompt       string
	SeedImage    []byte
	SeedMIMEType string
	AspectRatio  AspectRatio
	SegmentIndex int
	RunID        string
	StorageKey   string // optional override of the destination object key
}

// GeneratedVideo is the payload of a finished generation job. Either Bytes or URI is set.
type GeneratedVideo struct {
	URI      string
	Bytes    []byte
	MIMEType string
}

// OperationStatus is the result of fetching an operation once.
type OperationStatus struct {
	Done          bool
	Video         *GeneratedVideo
	ErrorMessage  string
	ResponseShape string // keys present on the response, for diagnostics
}

// OperationState is the poller state machine.
type OperationState string

const (
	OperationSubmitted OperationState = "submitted"
	OperationPolling   OperationState = "polling"
	OperationDone      OperationState = "done"
	OperationTimeout   OperationState = "timeout"
	OperationFailed    OperationState = "failed"
)

// GenerationOperation is a handle to a long-running external job. It lives only for
// the duration of one poller call.
type GenerationOperation struct {
	ID          string
	Model       string
	State       OperationState
	Done        bool
	PollAttempt int
	Result      *GeneratedVideo
	ResultRef   *ArtifactRef
	SubmittedAt time.Time
}

// NewGenerationOperation creates a handle in the submitted state.
func NewGenerationOperation(id string, modelName string, submittedAt time.Time) *GenerationOperation {
	return &GenerationOperation{
		ID:          id,
		Model:       modelName,
		State:       OperationSubmitted,
		SubmittedAt: submittedAt,
	}
}

// Apply records one poll result. Done flips to true at most once and later
// results are ignored.
func (o *GenerationOperation) Apply(status *OperationStatus) {
	o.PollAttempt++
	if o.Done {
		return
	}
	o.State = OperationPolling
	if status != nil && status.Done {
		o.Done = true
		o.State = OperationDone
		o.Result = status.Video
	}
}

// Fail moves the operation into a terminal failure state.
func (o *GenerationOperation) Fail(timeout bool) {
	if timeout {
		o.State = OperationTimeout
		return
	}
	o.State = OperationFailed
}

func (o *GenerationOperation) String() string {
	return fmt.Sprintf("operation %s (%s, attempt %d)", o.ID, o.State, o.PollAttempt)
}
