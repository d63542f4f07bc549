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

package cor

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BaseChain runs its commands strictly in the order they were added. Each command
// gets its own child span. After a command runs, its CtxOut value becomes the next
// command's CtxIn. A command that leaves no output, for example because it failed
// under ContinueOnFailure, hands its own input on unchanged.
//
// The chain stops at the first recorded error unless ContinueOnFailure(true) was set.
// It also stops when the Go context is cancelled, and a command whose preconditions
// are not met is recorded as an error rather than skipped silently.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool
	commands          []Command
}

// NewBaseChain creates an empty chain.
func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

// Commands returns the commands in execution order.
func (c *BaseChain) Commands() []Command {
	return c.commands
}

func (c *BaseChain) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil
}

func (c *BaseChain) Execute(chCtx Context) {
	parentCtx := chCtx.GetContext()
	outerCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()
	defer chCtx.SetContext(parentCtx)
	chCtx.SetContext(outerCtx)

	for i, command := range c.commands {
		if chCtx.HasErrors() && !c.continueOnFailure {
			break
		}
		if err := outerCtx.Err(); err != nil {
			chCtx.AddError(c.GetName(), fmt.Errorf("chain cancelled before %s: %w", command.GetName(), err))
			break
		}

		commandCtx, commandSpan := c.Tracer.Start(outerCtx, command.GetName())
		commandSpan.SetAttributes(attribute.Int("step", i))

		if command.IsExecutable(chCtx) {
			chCtx.SetContext(commandCtx)
			command.Execute(chCtx)
			chCtx.SetContext(outerCtx)
		} else {
			command.GetErrorCounter().Add(outerCtx, 1)
			chCtx.AddError(command.GetName(), fmt.Errorf("command %s is not executable: missing input %q", command.GetName(), command.GetInputParam()))
		}

		if err := chCtx.GetErrors()[command.GetName()]; err != nil {
			commandSpan.RecordError(err)
			commandSpan.SetStatus(codes.Error, err.Error())
		} else {
			commandSpan.SetStatus(codes.Ok, "completed")
		}
		commandSpan.End()

		if out := chCtx.Get(CtxOut); out != nil {
			chCtx.Add(CtxIn, out)
			chCtx.Remove(CtxOut)
		}
	}

	if chCtx.HasErrors() {
		c.GetErrorCounter().Add(outerCtx, 1)
		chainSpan.SetStatus(codes.Error, "chain failed")
		return
	}
	c.GetSuccessCounter().Add(outerCtx, 1)
	chainSpan.SetStatus(codes.Ok, "chain completed")
}
