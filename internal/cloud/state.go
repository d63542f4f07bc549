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
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

// ServiceClients holds every external client the server needs. It is created once at
// startup and shared by handlers, listeners and workflows.
type ServiceClients struct {
	StorageClient   *storage.Client
	PubsubClient    *pubsub.Client
	GenAIClient     *genai.Client
	BiqQueryClient  *bigquery.Client
	IAMClient       *credentials.IamCredentialsClient
	PubSubListeners map[string]*PubSubListener
	AgentModels     map[string]*QuotaAwareGenerativeAIModel
	VideoModel      *QuotaAwareVideoModel
	ArtifactStore   *GCSArtifactStore
	StatusCache     *RedisStatusCache // nil when [cache] redis_url is empty
}

// Close releases the client connections. The genai client has nothing to close.
func (c *ServiceClients) Close() {
	_ = c.StorageClient.Close()
	_ = c.PubsubClient.Close()
	_ = c.BiqQueryClient.Close()
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
	if c.StatusCache != nil {
		_ = c.StatusCache.Close()
	}
}

// NewGenerateContentConfig maps a model section onto the genai request config.
func NewGenerateContentConfig(values VertexAiLLMModel) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:        genai.Ptr[float32](values.Temperature),
		TopP:               genai.Ptr[float32](values.TopP),
		MaxOutputTokens:    values.MaxTokens,
		SafetySettings:     DefaultSafetySettings,
		ResponseMIMEType:   values.OutputFormat,
		ResponseModalities: values.ResponseModalities,
	}
	if values.TopK > 0 {
		cfg.TopK = genai.Ptr[float32](values.TopK)
	}
	if values.SystemInstructions != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}}
	}
	return cfg
}

// NewCloudServiceClients connects to every service named in config.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	sc, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	pc, err := pubsub.NewClient(ctx, config.Application.GoogleProjectId)
	if err != nil {
		return nil, err
	}

	slog.Info("creating genai client", "project", config.Application.GoogleProjectId, "location", config.Application.GoogleLocation)
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		slog.Error("error creating genai client", "error", err)
		return nil, err
	}

	bc, err := bigquery.NewClient(ctx, config.Application.GoogleProjectId)
	if err != nil {
		return nil, err
	}

	ic, err := credentials.NewIamCredentialsClient(ctx)
	if err != nil {
		return nil, err
	}

	// Commands are attached once the workflows are built.
	subscriptions := make(map[string]*PubSubListener)
	for subKey, values := range config.TopicSubscriptions {
		actual, err := NewPubSubListener(pc, values.Name, nil)
		if err != nil {
			return nil, err
		}
		actual.SetMaxExtension(config.MaxRunDuration())
		subscriptions[subKey] = actual
	}

	agentModels := make(map[string]*QuotaAwareGenerativeAIModel)
	for amKey, values := range config.AgentModels {
		slog.Debug("configuring agent model", "key", amKey, "model", values.Model)
		agentModels[amKey] = NewQuotaAwareModel(NewGenerateContentConfig(values), values.Model, gc.Models, values.RateLimit)
	}

	var statusCache *RedisStatusCache
	if config.Cache.RedisURL != "" {
		statusCache, err = NewRedisStatusCache(config.Cache.RedisURL, time.Duration(config.Cache.StatusTTLSeconds)*time.Second)
		if err != nil {
			return nil, err
		}
		if perr := statusCache.Ping(ctx); perr != nil {
			slog.Warn("redis status cache unreachable, live status will be degraded", "error", perr)
		}
	}

	cloud = &ServiceClients{
		StorageClient:   sc,
		PubsubClient:    pc,
		GenAIClient:     gc,
		BiqQueryClient:  bc,
		IAMClient:       ic,
		PubSubListeners: subscriptions,
		AgentModels:     agentModels,
		VideoModel:      NewQuotaAwareVideoModel(config.VideoModel(), gc),
		StatusCache:     statusCache,
	}
	cloud.ArtifactStore = NewGCSArtifactStore(sc, ic, config)
	return cloud, nil
}
