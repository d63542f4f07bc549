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

// Package cloud holds the configuration of the video pipeline and the clients that
// talk to Google Cloud: Cloud Storage, BigQuery, Pub/Sub, Vertex AI (Gemini and Veo)
// and the Redis status cache.
//
// Configuration is read from layered TOML files (see LoadConfig). The structs below
// mirror the file sections:
//   - [application]: project, location and signing identity.
//   - [storage]: the artifact bucket and public URL settings.
//   - [big_query_data_source]: where run records are kept.
//   - [prompt_templates]: text/template bodies for every Gemini call.
//   - [pipeline]: polling, assembly and ffmpeg settings.
//   - [cache]: the Redis status cache.
//   - [topic_subscriptions], [agent_models], [video_models]: keyed maps.
package cloud

import (
	"time"

	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// Logical names used to look up models and subscriptions in the keyed sections.
const (
	AnalysisModelKey       = "analysis"
	TextModelKey           = "text"
	ImageModelKey          = "image"
	VideoModelKey          = "veo"
	PipelineTriggerKey     = "pipeline-trigger"
	DefaultVideoModelName  = "veo-3.0-fast-generate-preview"
	DefaultPersonGenerate  = "allow_adult"
	DefaultPublicURLPrefix = "https://storage.googleapis.com"
)

// DefaultSafetySettings lets every harm category through. Product copy is trusted input.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// BigQueryDataSource locates the run record table.
type BigQueryDataSource struct {
	DatasetName string `toml:"dataset"`
	RunTable    string `toml:"run_table"`
}

// PromptTemplates are text/template bodies. Empty values fall back to the built-in defaults.
type PromptTemplates struct {
	ImageAnalysis string `toml:"image_analysis"`
	ImagePrompt   string `toml:"image_prompt"`
	VideoPrompt   string `toml:"video_prompt"`
	Continuation  string `toml:"continuation"`
}

// VertexAiLLMModel configures one Gemini model.
type VertexAiLLMModel struct {
	Model              string   `toml:"model"`               // The name of the Vertex AI model.
	SystemInstructions string   `toml:"system_instructions"` // The system instructions for the model.
	Temperature        float32  `toml:"temperature"`
	TopP               float32  `toml:"top_p"`
	TopK               float32  `toml:"top_k"`
	MaxTokens          int32    `toml:"max_tokens"`
	OutputFormat       string   `toml:"output_format"`       // Response MIME type, e.g. application/json.
	RateLimit          int      `toml:"rate_limit"`          // Requests per second, also the burst size.
	ResponseModalities []string `toml:"response_modalities"` // e.g. ["IMAGE", "TEXT"] for image generation.
}

// VertexAiVideoModel configures the Veo model used for segment generation.
type VertexAiVideoModel struct {
	Model            string `toml:"model"`
	PersonGeneration string `toml:"person_generation"`
	RateLimit        int    `toml:"rate_limit"`
	OutputGCSURI     string `toml:"output_gcs_uri"` // When set, Veo writes results here instead of returning bytes.
}

// TopicSubscription configures a Pub/Sub subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`
	DeadLetterTopic  string `toml:"dead_letter_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

// Storage configures the artifact bucket.
type Storage struct {
	Bucket             string `toml:"bucket"`
	PublicBaseURL      string `toml:"public_base_url"`
	MakePublic         bool   `toml:"make_public"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
	ScratchDir         string `toml:"scratch_dir"`
	SignedURLMinutes   int    `toml:"signed_url_minutes"`
}

// Pipeline holds the tunables of the generation loop and the media tooling.
type Pipeline struct {
	PollIntervalSeconds int     `toml:"poll_interval_seconds"`
	PollCeiling         int     `toml:"poll_ceiling"`
	AssemblyMode        string  `toml:"assembly_mode"`
	CrossfadeSeconds    float64 `toml:"crossfade_seconds"`
	FrameFormat         string  `toml:"frame_format"`
	FFMpegCommand       string  `toml:"ffmpeg_command"`
	FFProbeCommand      string  `toml:"ffprobe_command"`
	MaxSourceImageEdge  int     `toml:"max_source_image_edge"`
}

// Cache configures the Redis live status cache. An empty URL disables it.
type Cache struct {
	RedisURL         string `toml:"redis_url"`
	StatusTTLSeconds int    `toml:"status_ttl_seconds"`
}

// Config is the root of the TOML configuration.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		ThreadPoolSize            int    `toml:"thread_pool_size"` // Workers used for concurrent downloads.
		SignerServiceAccountEmail string `toml:"signer_service_account_email"`
	} `toml:"application"`
	Storage            Storage                       `toml:"storage"`
	BigQueryDataSource BigQueryDataSource            `toml:"big_query_data_source"`
	PromptTemplates    PromptTemplates               `toml:"prompt_templates"`
	Pipeline           Pipeline                      `toml:"pipeline"`
	Cache              Cache                         `toml:"cache"`
	TopicSubscriptions map[string]TopicSubscription  `toml:"topic_subscriptions"`
	AgentModels        map[string]VertexAiLLMModel   `toml:"agent_models"`
	VideoModels        map[string]VertexAiVideoModel `toml:"video_models"`
}

// NewConfig returns a Config with initialised maps and the pipeline defaults. Values
// decoded by LoadConfig overwrite the defaults.
func NewConfig() *Config {
	c := &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
		VideoModels:        make(map[string]VertexAiVideoModel),
	}
	c.Application.Name = "video-pipeline"
	c.Application.ThreadPoolSize = 4
	c.Storage.MakePublic = true
	c.Storage.HTTPTimeoutSeconds = 120
	c.Storage.SignedURLMinutes = 60
	c.PromptTemplates = PromptTemplates{
		ImageAnalysis: model.DefaultImageAnalysisTemplate,
		ImagePrompt:   model.DefaultImagePromptTemplate,
		VideoPrompt:   model.DefaultVideoPromptTemplate,
		Continuation:  model.DefaultContinuationTemplate,
	}
	c.Pipeline = Pipeline{
		PollIntervalSeconds: 10,
		PollCeiling:         60,
		AssemblyMode:        string(model.AssemblyModeCut),
		CrossfadeSeconds:    model.DefaultCrossfadeSecond,
		FrameFormat:         string(model.FrameFormatJPEG),
		FFMpegCommand:       "ffmpeg",
		FFProbeCommand:      "ffprobe",
		MaxSourceImageEdge:  2048,
	}
	c.Cache.StatusTTLSeconds = 86400
	return c
}

// VideoModel returns the configured Veo model, or the default one.
func (c *Config) VideoModel() VertexAiVideoModel {
	if m, ok := c.VideoModels[VideoModelKey]; ok && m.Model != "" {
		if m.PersonGeneration == "" {
			m.PersonGeneration = DefaultPersonGenerate
		}
		return m
	}
	return VertexAiVideoModel{Model: DefaultVideoModelName, PersonGeneration: DefaultPersonGenerate, RateLimit: 1}
}

// runStageMargin covers the text, image, frame and assembly stages of a run.
const runStageMargin = 15 * time.Minute

// MaxRunDuration bounds how long one pipeline run can take: every segment of the
// longest allowed video polled up to the ceiling, plus the other stages. A trigger
// message must stay leased for at least this long or it is redelivered mid-run.
func (c *Config) MaxRunDuration() time.Duration {
	ceiling := c.Pipeline.PollCeiling
	if ceiling <= 0 {
		ceiling = 60
	}
	segments := model.SegmentCount(model.MaxDurationSeconds)
	return c.PollInterval()*time.Duration(ceiling*segments) + runStageMargin
}

// PollInterval is the wait between two polls of a video job.
func (c *Config) PollInterval() time.Duration {
	if c.Pipeline.PollIntervalSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Pipeline.PollIntervalSeconds) * time.Second
}
