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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/services"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/workflow"
)

const defaultListLimit = 50

// VideoAPI serves the pipeline and its individual stages over HTTP.
type VideoAPI struct {
	pipeline     *workflow.VideoPipelineWorkflow
	deps         *workflow.PipelineDependencies
	opts         workflow.PipelineOptions
	signer       services.URLSigner
	signedURLTTL time.Duration
}

func NewVideoAPI(
	pipeline *workflow.VideoPipelineWorkflow,
	deps *workflow.PipelineDependencies,
	opts workflow.PipelineOptions,
	signer services.URLSigner,
	signedURLTTL time.Duration) *VideoAPI {
	if signedURLTTL <= 0 {
		signedURLTTL = 15 * time.Minute
	}
	return &VideoAPI{pipeline: pipeline, deps: deps, opts: opts, signer: signer, signedURLTTL: signedURLTTL}
}

type extractFramesRequest struct {
	VideoURL string `json:"videoUrl"`
	Position string `json:"position"`
	Format   string `json:"format"`
}

type analyzeImageRequest struct {
	ImageURL string `json:"imageUrl"`
}

type generatePromptRequest struct {
	UserPrompt string `json:"userPrompt"`
	Analysis   string `json:"analysis"`
}

type generateVideoPromptRequest struct {
	UserPrompt  string            `json:"userPrompt"`
	Analysis    string            `json:"analysis"`
	ImageURL    string            `json:"imageUrl"`
	AspectRatio model.AspectRatio `json:"aspectRatio"`
}

type generateImageRequest struct {
	Prompt   string `json:"prompt"`
	ImageURL string `json:"imageUrl"`
}

// VideoRouter registers the /videos routes on r.
func VideoRouter(r *gin.RouterGroup, api *VideoAPI) {
	videos := r.Group("/videos")
	{
		videos.POST("/create-complete", api.createComplete)
		videos.POST("/generate-sequential", api.generateSequential)
		videos.GET("/status/:runId", api.status)
		videos.GET("/list", api.list)
		videos.GET("/:runId/stream", api.stream)
		videos.DELETE("/:runId", api.delete)

		videos.POST("/extract-frames", api.extractFrames)
		videos.POST("/combine", api.combine)
		videos.POST("/analyze-image", api.analyzeImage)
		videos.POST("/generate-prompt", api.generatePrompt)
		videos.POST("/generate-video-prompt", api.generateVideoPrompt)
		videos.POST("/generate-image", api.generateImage)
	}
}

// abortWithError writes err with the status its kind maps to.
func abortWithError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrRunNotFound):
		code = http.StatusNotFound
	case errors.Is(err, model.ErrPermissionDenied):
		code = http.StatusForbidden
	case model.ErrorKind(err) == model.ErrorKindValidation:
		code = http.StatusBadRequest
	}
	if code == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error(), "errorKind": model.ErrorKind(err)})
}

func bindJSON(c *gin.Context, out interface{}) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		abortWithError(c, fmt.Errorf("%w: malformed request body: %w", model.ErrValidation, err))
		return false
	}
	return true
}

func (a *VideoAPI) createComplete(c *gin.Context) {
	req := &model.RunRequest{}
	if !bindJSON(c, req) {
		return
	}
	run, err := a.pipeline.Prepare(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.NewFailedResult("", err))
		return
	}
	c.JSON(http.StatusOK, a.pipeline.ExecuteRun(c.Request.Context(), run))
}

func (a *VideoAPI) generateSequential(c *gin.Context) {
	req := &model.RunRequest{}
	if !bindJSON(c, req) {
		return
	}
	run, err := a.pipeline.Prepare(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.NewFailedResult("", err))
		return
	}
	status := services.RunningStatus("queued")
	if a.deps.Status != nil {
		if err := a.deps.Status.SetRunStatus(c.Request.Context(), run.RunID, status); err != nil {
			slog.Warn("failed to write run status", "run_id", run.RunID, "error", err)
		}
	}
	go a.pipeline.ExecuteRun(context.WithoutCancel(c.Request.Context()), run)
	c.JSON(http.StatusAccepted, gin.H{"runId": run.RunID, "status": status})
}

func (a *VideoAPI) status(c *gin.Context) {
	runID := c.Param("runId")
	if a.deps.Status != nil {
		status, ok, err := a.deps.Status.GetRunStatus(c.Request.Context(), runID)
		if err != nil {
			slog.Warn("status cache read failed", "run_id", runID, "error", err)
		}
		if ok {
			c.JSON(http.StatusOK, gin.H{"runId": runID, "status": status})
			return
		}
	}
	record, err := a.deps.Records.Get(c.Request.Context(), runID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runId": runID, "status": record.Status, "record": record})
}

func (a *VideoAPI) list(c *gin.Context) {
	ownerID := c.Query("ownerId")
	if ownerID == "" {
		abortWithError(c, fmt.Errorf("%w: ownerId is required", model.ErrValidation))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		limit = defaultListLimit
	}
	records, err := a.deps.Records.ListByOwner(c.Request.Context(), ownerID, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (a *VideoAPI) stream(c *gin.Context) {
	record, err := a.deps.Records.Get(c.Request.Context(), c.Param("runId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if record.FinalVideoKey == "" {
		abortWithError(c, fmt.Errorf("%w: run %s has no final video", model.ErrRunNotFound, record.RunID))
		return
	}
	url, err := a.signer.SignedURL(c.Request.Context(), record.FinalVideoKey, a.signedURLTTL)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expiresInSeconds": int(a.signedURLTTL.Seconds())})
}

func (a *VideoAPI) delete(c *gin.Context) {
	ctx := c.Request.Context()
	ownerID := c.Query("ownerId")
	if ownerID == "" {
		abortWithError(c, fmt.Errorf("%w: ownerId is required", model.ErrValidation))
		return
	}
	record, err := a.deps.Records.Get(ctx, c.Param("runId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if record.OwnerID != ownerID {
		abortWithError(c, fmt.Errorf("%w: run %s belongs to another owner", model.ErrPermissionDenied, record.RunID))
		return
	}
	if record.FinalVideoKey != "" {
		if err = a.deps.Store.Delete(ctx, record.FinalVideoKey); err != nil {
			abortWithError(c, err)
			return
		}
	}
	if err = a.deps.Records.Delete(ctx, record.RunID); err != nil {
		abortWithError(c, err)
		return
	}
	if a.deps.Status != nil {
		if err = a.deps.Status.DeleteRunStatus(ctx, record.RunID); err != nil {
			slog.Warn("failed to delete run status", "run_id", record.RunID, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"runId": record.RunID, "deleted": true})
}

func (a *VideoAPI) extractFrames(c *gin.Context) {
	req := &extractFramesRequest{}
	if !bindJSON(c, req) {
		return
	}
	if req.VideoURL == "" {
		abortWithError(c, fmt.Errorf("%w: videoUrl is required", model.ErrValidation))
		return
	}
	position, err := model.ParseFramePosition(req.Position)
	if err != nil {
		abortWithError(c, err)
		return
	}
	format := a.opts.FrameFormat
	if req.Format != "" {
		if format, err = model.ParseFrameFormat(req.Format); err != nil {
			abortWithError(c, err)
			return
		}
	}
	ref, err := a.deps.Frames.Extract(c.Request.Context(), req.VideoURL, position, format)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ref)
}

func (a *VideoAPI) combine(c *gin.Context) {
	req := &model.AssemblyRequest{}
	if !bindJSON(c, req) {
		return
	}
	ref, err := a.deps.Assembler.Assemble(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ref)
}

// loadImage downloads and sniffs an image referenced by a request.
func (a *VideoAPI) loadImage(ctx context.Context, url string) (*model.Image, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: imageUrl is required", model.ErrValidation)
	}
	data, err := a.deps.Store.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	return services.PrepareImage(data, a.opts.MaxSourceImageEdge)
}

func (a *VideoAPI) analyzeImage(c *gin.Context) {
	req := &analyzeImageRequest{}
	if !bindJSON(c, req) {
		return
	}
	img, err := a.loadImage(c.Request.Context(), req.ImageURL)
	if err != nil {
		abortWithError(c, err)
		return
	}
	analysis := a.deps.Prompts.AnalyzeImage(c.Request.Context(), img.Data, img.MIMEType)
	c.JSON(http.StatusOK, gin.H{"analysis": analysis})
}

func (a *VideoAPI) generatePrompt(c *gin.Context) {
	req := &generatePromptRequest{}
	if !bindJSON(c, req) {
		return
	}
	c.JSON(http.StatusOK, a.deps.Prompts.GenerateImagePrompt(c.Request.Context(), req.UserPrompt, req.Analysis))
}

func (a *VideoAPI) generateVideoPrompt(c *gin.Context) {
	req := &generateVideoPromptRequest{}
	if !bindJSON(c, req) {
		return
	}
	if req.AspectRatio == "" {
		req.AspectRatio = model.AspectRatioLandscape
	}
	prompt := a.deps.Prompts.GenerateVideoPrompt(c.Request.Context(), req.UserPrompt, req.Analysis, req.ImageURL, req.AspectRatio)
	c.JSON(http.StatusOK, gin.H{"prompt": prompt})
}

func (a *VideoAPI) generateImage(c *gin.Context) {
	ctx := c.Request.Context()
	req := &generateImageRequest{}
	if !bindJSON(c, req) {
		return
	}
	if req.Prompt == "" {
		abortWithError(c, fmt.Errorf("%w: prompt is required", model.ErrValidation))
		return
	}
	source, err := a.loadImage(ctx, req.ImageURL)
	if err != nil {
		abortWithError(c, err)
		return
	}
	data, _, err := a.deps.Images.GenerateImage(ctx, req.Prompt, source.Data, source.MIMEType)
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", model.ErrGenerationFailed, err))
		return
	}
	img, err := services.PrepareImage(data, 0)
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: generated content is not an image: %v", model.ErrGenerationFailed, err))
		return
	}
	ref, err := a.deps.Store.Upload(ctx, services.GeneratedImageKey("standalone"), img.Data, img.MIMEType, nil)
	if err != nil {
		abortWithError(c, err)
		return
	}
	ref.Width, ref.Height = img.Width, img.Height
	c.JSON(http.StatusOK, ref)
}
