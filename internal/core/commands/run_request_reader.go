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

package commands

import (
	"encoding/json"
	"fmt"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// RunRequestReader decodes and validates a JSON run request, e.g. the body of a
// Pub/Sub trigger message.
//
// Input: the raw payload as a string or []byte.
// Output: the validated *model.RunRequest, also under ParamRequest. Malformed JSON
// and invalid fields are both reported as model.ErrValidation.
type RunRequestReader struct {
	cor.BaseCommand
}

func NewRunRequestReader(name string) *RunRequestReader {
	return &RunRequestReader{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *RunRequestReader) Execute(context cor.Context) {
	var data []byte
	switch in := context.Get(c.GetInputParam()).(type) {
	case string:
		data = []byte(in)
	case []byte:
		data = in
	default:
		c.Fail(context, fmt.Errorf("%w: unsupported run request payload %T", model.ErrValidation, in))
		return
	}

	req := &model.RunRequest{}
	if err := json.Unmarshal(data, req); err != nil {
		c.Fail(context, fmt.Errorf("%w: malformed run request: %w", model.ErrValidation, err))
		return
	}
	if err := req.Validate(); err != nil {
		c.Fail(context, err)
		return
	}
	context.Add(ParamRequest, req)
	c.Succeed(context, req)
}
