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

package cloud

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

const (
	ConfigFileBaseName  = ".env"
	ConfigFileExtension = ".toml"
	ConfigSeparator     = "."
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // Directory holding the configuration files.
	EnvConfigRuntime    = "GCP_RUNTIME"       // Runtime name, e.g. "local", "test", "prod".
	MaxRetries          = 3
)

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// ConfigFiles returns the base and runtime configuration paths derived from the
// environment.
func ConfigFiles() (base string, runtime string) {
	prefix := os.Getenv(EnvConfigFilePrefix)
	if len(prefix) > 0 && !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix = prefix + string(os.PathSeparator)
	}
	env := os.Getenv(EnvConfigRuntime)
	if env == "" {
		env = "test"
	}
	base = prefix + ConfigFileBaseName + ConfigFileExtension
	runtime = prefix + ConfigFileBaseName + ConfigSeparator + env + ConfigFileExtension
	return base, runtime
}

// LoadConfig decodes the base configuration file and then the runtime override into
// baseConfig. Missing files are skipped. A malformed file is fatal.
func LoadConfig(baseConfig interface{}) {
	base, runtime := ConfigFiles()
	for _, name := range []string{base, runtime} {
		if !fileExists(name) {
			slog.Debug("configuration file not found", "file", name)
			continue
		}
		if _, err := toml.DecodeFile(name, baseConfig); err != nil {
			log.Fatalf("failed to decode configuration file %s with error: %s", name, err)
		}
		slog.Info("loaded configuration", "file", name)
	}
}

// GenerateMultiModalResponse sends contents to the model and returns the concatenated
// text of the response with any code fence removed. Failed calls are retried up to
// MaxRetries times.
func GenerateMultiModalResponse(
	ctx context.Context,
	inputTokenCounter metric.Int64Counter,
	outputTokenCounter metric.Int64Counter,
	retryCounter metric.Int64Counter,
	tryCount int,
	model *QuotaAwareGenerativeAIModel,
	contents []*genai.Content) (value string, err error) {
	resp, err := model.GenerateContent(ctx, contents)
	if err != nil {
		if tryCount < MaxRetries && ctx.Err() == nil {
			retryCounter.Add(ctx, 1)
			return GenerateMultiModalResponse(ctx, inputTokenCounter, outputTokenCounter, retryCounter, tryCount+1, model, contents)
		}
		return "", err
	}
	recordUsage(ctx, inputTokenCounter, outputTokenCounter, resp)
	return ResponseText(resp), nil
}

// ResponseText concatenates the text parts of every candidate.
func ResponseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return model.StripCodeFence(sb.String())
}

// ResponseImage returns the first inline image part of the response.
func ResponseImage(resp *genai.GenerateContentResponse) (data []byte, mimeType string, err error) {
	if resp == nil {
		return nil, "", fmt.Errorf("%w: empty image response", model.ErrGenerationFailed)
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, part.InlineData.MIMEType, nil
			}
		}
	}
	return nil, "", fmt.Errorf("%w: no image data in response (%d candidates)", model.ErrGenerationFailed, len(resp.Candidates))
}

func recordUsage(ctx context.Context, in metric.Int64Counter, out metric.Int64Counter, resp *genai.GenerateContentResponse) {
	if resp == nil || resp.UsageMetadata == nil {
		return
	}
	in.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
	out.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
}

// NewTextPart wraps text in a user content.
func NewTextPart(in string) []*genai.Content {
	return genai.Text(in)
}

// NewImageContent builds a user content holding a prompt followed by an inline image.
func NewImageContent(prompt string, image []byte, mimeType string) []*genai.Content {
	return []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}
}
