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

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/cloud"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/services"
)

// PipelineDependencies are the collaborators of a pipeline run.
type PipelineDependencies struct {
	Store     services.ArtifactStore
	Records   services.RunRecordStore
	Status    services.RunStatusTracker
	Prompts   *services.PromptGenerator
	Images    services.ImageGenerator
	Segments  services.SegmentGenerator
	Frames    services.FrameSource
	Continuer services.ContinuationWriter
	Assembler services.Assembler
	Clock     services.Clock
}

// PipelineOptions tune a pipeline without changing its collaborators.
type PipelineOptions struct {
	AssemblyMode       model.AssemblyMode
	CrossfadeSeconds   float64
	FrameFormat        model.FrameFormat
	MaxSourceImageEdge int
	ScratchDir         string
}

// VideoPipelineWorkflow turns a product image into a narrated video. The stages run
// strictly in order as one chain: source image, image analysis, image prompt,
// reference image, video prompt, segment loop, assembly. A run is terminal when the
// chain returns; its record is written exactly once, and a failure anywhere discards
// the partial progress.
type VideoPipelineWorkflow struct {
	cor.BaseCommand
	records services.RunRecordStore
	status  *commands.StatusReporter
	clock   services.Clock
	scratch string
	chain   cor.Chain
}

func NewVideoPipelineWorkflow(deps *PipelineDependencies, opts PipelineOptions) *VideoPipelineWorkflow {
	clock := deps.Clock
	if clock == nil {
		clock = services.SystemClock
	}
	w := &VideoPipelineWorkflow{
		BaseCommand: *cor.NewBaseCommand("video-pipeline"),
		records:     deps.Records,
		status:      commands.NewStatusReporter(deps.Status),
		clock:       clock,
		scratch:     opts.ScratchDir,
	}
	w.initializeChain(deps, opts)
	return w
}

func (w *VideoPipelineWorkflow) initializeChain(deps *PipelineDependencies, opts PipelineOptions) {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewSourceImageReader("read-source-image", deps.Store, w.status, opts.MaxSourceImageEdge))
	out.AddCommand(commands.NewImageAnalyzer("analyze-image", deps.Prompts, w.status))
	out.AddCommand(commands.NewImagePromptGenerator("generate-image-prompt", deps.Prompts, w.status))
	out.AddCommand(commands.NewReferenceImageGenerator("generate-reference-image", deps.Images, deps.Store, w.status))
	out.AddCommand(commands.NewVideoPromptGenerator("generate-video-prompt", deps.Prompts, w.status))
	out.AddCommand(commands.NewSegmentGenerator("generate-segments", deps.Segments, deps.Frames, deps.Continuer, deps.Store, w.status, opts.FrameFormat))
	out.AddCommand(commands.NewSegmentAssembly("assemble-segments", deps.Assembler, w.status, opts.AssemblyMode, opts.CrossfadeSeconds))
	w.chain = out
}

// Execute runs the stage chain against an already prepared context. Run is the
// entry point for callers.
func (w *VideoPipelineWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// Run validates req, executes the whole pipeline and returns its terminal result. An
// invalid request is rejected before any collaborator is touched and leaves no record.
func (w *VideoPipelineWorkflow) Run(ctx context.Context, req *model.RunRequest) *model.PipelineResult {
	run, err := w.Prepare(req)
	if err != nil {
		return model.NewFailedResult("", err)
	}
	return w.ExecuteRun(ctx, run)
}

// Prepare validates req and creates its run without starting it.
func (w *VideoPipelineWorkflow) Prepare(req *model.RunRequest) (*model.PipelineRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return model.NewPipelineRun(req, w.clock.Now()), nil
}

// ExecuteRun drives a prepared run to its terminal state.
func (w *VideoPipelineWorkflow) ExecuteRun(ctx context.Context, run *model.PipelineRun) *model.PipelineResult {
	log := slog.With("run_id", run.RunID, "owner_id", run.OwnerID)
	log.Info("pipeline run started", "duration_seconds", run.RequestedDurationSeconds, "segments", run.SegmentCount(), "aspect_ratio", run.AspectRatio)
	w.status.Report(ctx, run.RunID, services.RunningStatus("started"))

	chCtx := cor.NewContext(ctx, run.Request)
	defer chCtx.Close()
	// Frame and assembly scratch space of the run is removed with the context.
	if dir, err := os.MkdirTemp(w.scratch, "run-*"); err != nil {
		log.Warn("failed to create run scratch directory", "error", err)
	} else {
		chCtx.AddTempFile(dir)
		chCtx.SetContext(services.WithScratchDir(ctx, dir))
	}
	chCtx.Add(commands.ParamRun, run)
	chCtx.Add(commands.ParamRequest, run.Request)

	w.Execute(chCtx)
	w.finish(chCtx, run)

	// The record and terminal status outlive a cancelled caller.
	persistCtx := context.WithoutCancel(ctx)
	if err := w.records.Put(persistCtx, run.Record()); err != nil {
		log.Error("failed to persist run record", "error", err)
	}
	if run.Status == model.RunCompleted {
		w.status.Report(persistCtx, run.RunID, services.StatusCompleted)
		log.Info("pipeline run completed", "final_video", run.FinalVideoRef.URL, "elapsed", run.CompletedAt.Sub(run.CreatedAt))
	} else {
		w.status.Report(persistCtx, run.RunID, services.StatusFailed)
		log.Error("pipeline run failed", "error", run.Error, "error_kind", run.ErrorKind)
	}
	return run.Result()
}

func (w *VideoPipelineWorkflow) finish(chCtx cor.Context, run *model.PipelineRun) {
	now := w.clock.Now()
	if err := chCtx.Err(); err != nil {
		run.Fail(err, now)
		return
	}
	final, _ := chCtx.Get(commands.ParamFinalVideo).(*model.ArtifactRef)
	segments, _ := chCtx.Get(commands.ParamSegments).([]*model.Segment)
	if final == nil || len(segments) != run.SegmentCount() {
		run.Fail(fmt.Errorf("pipeline ended without a final video (%d of %d segments)", len(segments), run.SegmentCount()), now)
		return
	}
	run.Complete(final, segments, now)
}

// NewVideoPipeline wires the pipeline to the cloud clients: Gemini for the text and
// image stages, Veo behind the generation poller, ffmpeg for frames and assembly,
// GCS for artifacts, BigQuery for run records and Redis (or memory) for live status.
func NewVideoPipeline(config *cloud.Config, clients *cloud.ServiceClients) (*VideoPipelineWorkflow, error) {
	deps, opts, err := NewPipelineDependencies(config, clients)
	if err != nil {
		return nil, err
	}
	return NewVideoPipelineWorkflow(deps, opts), nil
}

// NewPipelineDependencies builds the production collaborators from config.
func NewPipelineDependencies(config *cloud.Config, clients *cloud.ServiceClients) (*PipelineDependencies, PipelineOptions, error) {
	templates, err := services.ParsePromptTemplates(
		config.PromptTemplates.ImageAnalysis,
		config.PromptTemplates.ImagePrompt,
		config.PromptTemplates.VideoPrompt,
		config.PromptTemplates.Continuation)
	if err != nil {
		return nil, PipelineOptions{}, err
	}
	for _, key := range []string{cloud.AnalysisModelKey, cloud.TextModelKey, cloud.ImageModelKey} {
		if clients.AgentModels[key] == nil {
			return nil, PipelineOptions{}, fmt.Errorf("agent model %q is not configured", key)
		}
	}
	frameFormat, err := model.ParseFrameFormat(config.Pipeline.FrameFormat)
	if err != nil {
		return nil, PipelineOptions{}, err
	}

	media := services.NewFFMpegProcessor(config.Pipeline.FFMpegCommand, config.Pipeline.FFProbeCommand)
	store := clients.ArtifactStore
	var status services.RunStatusTracker = services.NewMemoryStatusTracker()
	if clients.StatusCache != nil {
		status = clients.StatusCache
	}

	poller := services.NewGenerationPoller(clients.VideoModel, store, services.SystemClock, config.PollInterval(), config.Pipeline.PollCeiling)
	records := services.NewBigQueryRunStore(clients.BiqQueryClient, config.BigQueryDataSource.DatasetName, config.BigQueryDataSource.RunTable)

	deps := &PipelineDependencies{
		Store:     store,
		Records:   records,
		Status:    status,
		Prompts:   services.NewPromptGenerator(clients.AgentModels[cloud.AnalysisModelKey], clients.AgentModels[cloud.TextModelKey], templates),
		Images:    clients.AgentModels[cloud.ImageModelKey],
		Segments:  poller,
		Frames:    services.NewFrameExtractor(store, media, config.Storage.ScratchDir),
		Continuer: services.NewContinuationPromptGenerator(clients.AgentModels[cloud.TextModelKey], templates.Continuation),
		Assembler: services.NewSegmentAssembler(store, media, config.Storage.ScratchDir, config.Application.ThreadPoolSize),
		Clock:     services.SystemClock,
	}
	opts := PipelineOptions{
		AssemblyMode:       model.AssemblyMode(config.Pipeline.AssemblyMode),
		CrossfadeSeconds:   config.Pipeline.CrossfadeSeconds,
		FrameFormat:        frameFormat,
		MaxSourceImageEdge: config.Pipeline.MaxSourceImageEdge,
		ScratchDir:         config.Storage.ScratchDir,
	}
	return deps, opts, nil
}
