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
	"sync"
)

// Live status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunningStatus is the live status while a stage is in progress, for example
// "running:segment-2-of-4".
func RunningStatus(stage string) string {
	return "running:" + stage
}

// SegmentStage names the stage of segment index (0-based) out of total.
func SegmentStage(index int, total int) string {
	return fmt.Sprintf("segment-%d-of-%d", index+1, total)
}

// MemoryStatusTracker keeps live status in process memory. It backs the server when
// no Redis URL is configured. Statuses are lost on restart and are not shared
// between instances, so it only suits a single-instance deployment.
type MemoryStatusTracker struct {
	mu       sync.RWMutex
	statuses map[string]string
}

func NewMemoryStatusTracker() *MemoryStatusTracker {
	return &MemoryStatusTracker{statuses: make(map[string]string)}
}

func (m *MemoryStatusTracker) SetRunStatus(_ context.Context, runID string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[runID] = status
	return nil
}

func (m *MemoryStatusTracker) GetRunStatus(_ context.Context, runID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[runID]
	return s, ok, nil
}

func (m *MemoryStatusTracker) DeleteRunStatus(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, runID)
	return nil
}
