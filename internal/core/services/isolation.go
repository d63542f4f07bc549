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
	"os"
	"runtime/debug"
)

type isolatedResult[T any] struct {
	value T
	err   error
}

// RunIsolated runs fn on its own goroutine and converts a panic into an error, so a
// crashing media job never takes down the caller. It returns when fn returns or when
// ctx is done; in the latter case fn keeps running until its own ctx check fires.
func RunIsolated[T any](ctx context.Context, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	results := make(chan isolatedResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("isolated job panicked", "job", name, "panic", r, "stack", string(debug.Stack()))
				var zero T
				results <- isolatedResult[T]{value: zero, err: fmt.Errorf("%s panicked: %v", name, r)}
			}
		}()
		v, err := fn(ctx)
		results <- isolatedResult[T]{value: v, err: err}
	}()

	select {
	case r := <-results:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%s: %w", name, ctx.Err())
	}
}

type scratchDirKey struct{}

// WithScratchDir returns a context under which NewScratchDirFor places every
// scratch directory inside dir.
func WithScratchDir(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, scratchDirKey{}, dir)
}

// ScratchDirFrom returns the directory set by WithScratchDir, or fallback.
func ScratchDirFrom(ctx context.Context, fallback string) string {
	if dir, ok := ctx.Value(scratchDirKey{}).(string); ok && dir != "" {
		return dir
	}
	return fallback
}

// NewScratchDirFor is NewScratchDir rooted at the directory carried by ctx, if any.
func NewScratchDirFor(ctx context.Context, fallback string, prefix string) (string, func(), error) {
	return NewScratchDir(ScratchDirFrom(ctx, fallback), prefix)
}

// NewScratchDir creates a uniquely named directory under base (or the OS temp dir)
// and returns a cleanup function that removes it with everything inside.
func NewScratchDir(base string, prefix string) (string, func(), error) {
	dir, err := os.MkdirTemp(base, prefix+"-*")
	if err != nil {
		return "", func() {}, err
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to remove scratch directory", "dir", dir, "error", err)
		}
	}, nil
}
