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

// Package cor (Chain of Responsibility) provides the building blocks the video
// pipeline is assembled from. Every pipeline stage is a Command, stages are
// sequenced by a Chain, and stages exchange data through a shared Context.
//
// The Context carries the Go context used for cancellation and tracing, a
// key/value bag for stage outputs, the errors recorded by failing stages (in
// the order they were recorded), and the scratch paths that must be removed
// once the run is finished.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// CtxIn holds the primary input of the running command. The chain fills it
	// with the previous command's CtxOut.
	CtxIn = "__IN__"
	// CtxOut is where a command places its primary output.
	CtxOut = "__OUT__"
)

// Context is the state shared by the commands of one chain execution.
type Context interface {
	// SetContext replaces the Go context, e.g. with a child span's context.
	SetContext(context context.Context)

	// GetContext returns the Go context for cancellation and tracing.
	GetContext() context.Context

	// Add stores a value and returns the Context for chaining.
	Add(key string, value interface{}) Context

	// AddError records an error, keyed by the name of the command that failed.
	AddError(key string, err error)

	// GetErrors returns all recorded errors keyed by command name.
	GetErrors() map[string]error

	// Err returns the first recorded error, or nil.
	Err() error

	// Get returns a stored value, or nil.
	Get(key string) interface{}

	// Remove deletes a stored value.
	Remove(key string)

	// HasErrors reports whether any error was recorded.
	HasErrors() bool

	// AddTempFile registers a scratch file or directory for removal on Close.
	AddTempFile(file string)

	// GetTempFiles lists the registered scratch paths.
	GetTempFiles() []string

	// Close removes every registered scratch path.
	Close()
}

// Executable is anything that runs against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is one named, instrumented unit of work.
type Command interface {
	Executable

	GetName() string

	// GetInputParam is the Context key the command reads its primary input from.
	GetInputParam() string

	// GetOutputParam is the Context key the command writes its primary output to.
	GetOutputParam() string

	// IsExecutable checks the command's preconditions against the Context.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is a Command that runs other commands in order.
type Chain interface {
	Command

	// ContinueOnFailure makes the chain keep going after a command records an error.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command to the sequence.
	AddCommand(command Command) Chain
}
