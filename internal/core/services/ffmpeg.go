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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// DefaultProbeArgs asks ffprobe for a JSON description of the container and streams.
var DefaultProbeArgs = []string{"-v", "error", "-print_format", "json", "-show_format", "-show_streams"}

const stderrTail = 2048

// FFMpegProcessor runs ffmpeg and ffprobe as child processes. A crash in the tool
// surfaces as an error of the child, never of this process.
type FFMpegProcessor struct {
	FFMpegPath  string
	FFProbePath string
}

func NewFFMpegProcessor(ffmpegPath string, ffprobePath string) *FFMpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFMpegProcessor{FFMpegPath: ffmpegPath, FFProbePath: ffprobePath}
}

// Run executes ffmpeg with args. The error carries the tail of ffmpeg's stderr.
func (p *FFMpegProcessor) Run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, p.FFMpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	slog.Debug("running ffmpeg", "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("error running ffmpeg: %w: %s", err, tail(stderr.String()))
	}
	return nil
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
	} `json:"format"`
}

// Probe describes the media file at path.
func (p *FFMpegProcessor) Probe(ctx context.Context, path string) (*model.MediaInfo, error) {
	args := append(append([]string{}, DefaultProbeArgs...), path)
	cmd := exec.CommandContext(ctx, p.FFProbePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("error running ffprobe: %w: %s", err, tail(stderr.String()))
	}
	info, err := ParseProbeOutput(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	if info.SizeBytes == 0 {
		if st, serr := os.Stat(path); serr == nil {
			info.SizeBytes = st.Size()
		}
	}
	return info, nil
}

// ParseProbeOutput converts ffprobe's JSON into MediaInfo.
func ParseProbeOutput(data []byte) (*model.MediaInfo, error) {
	out := &probeOutput{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("invalid ffprobe output: %w", err)
	}
	info := &model.MediaInfo{FormatName: out.Format.FormatName}
	info.DurationSeconds, _ = strconv.ParseFloat(out.Format.Duration, 64)
	info.SizeBytes, _ = strconv.ParseInt(out.Format.Size, 10, 64)
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width, info.Height = s.Width, s.Height
				info.FPS = parseRate(s.AvgFrameRate)
				if info.FPS == 0 {
					info.FPS = parseRate(s.RFrameRate)
				}
				if info.DurationSeconds == 0 {
					info.DurationSeconds, _ = strconv.ParseFloat(s.Duration, 64)
				}
			}
		case "audio":
			info.HasAudio = true
		}
	}
	return info, nil
}

// parseRate reads ffprobe rates such as "24/1" or "30000/1001".
func parseRate(in string) float64 {
	num, den, ok := strings.Cut(in, "/")
	if !ok {
		v, _ := strconv.ParseFloat(in, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func tail(in string) string {
	in = strings.TrimSpace(in)
	if len(in) > stderrTail {
		return in[len(in)-stderrTail:]
	}
	return in
}
