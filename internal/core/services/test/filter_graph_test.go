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

package services_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/services"
)

func TestCutFilterGraph(t *testing.T) {
	inputs := []services.AssemblyInput{
		{Path: "a.mp4", DurationSeconds: 8, HasAudio: true},
		{Path: "b.mp4", DurationSeconds: 8},
	}
	expected := "[0:v]scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2,setsar=1[v0];" +
		"[0:a]aresample=44100,aformat=channel_layouts=stereo[a0];" +
		"[1:v]scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2,setsar=1[v1];" +
		"anullsrc=channel_layout=stereo:sample_rate=44100,atrim=duration=8[a1];" +
		"[v0][a0][v1][a1]concat=n=2:v=1:a=1[outv][outa]"
	assert.Equal(t, expected, services.CutFilterGraph(inputs, 1280, 720))
}

func TestCrossfadeOffsets(t *testing.T) {
	durations := []float64{8, 8, 8}
	assert.Equal(t, []float64{7.5, 15}, services.CrossfadeOffsets(durations, 0.5))
	assert.Equal(t, 23.0, services.CrossfadeDuration(durations, 0.5))
	assert.Nil(t, services.CrossfadeOffsets([]float64{8}, 0.5))
	assert.Equal(t, 8.0, services.CrossfadeDuration([]float64{8}, 0.5))

	// Offsets of unequal inputs still accumulate the preceding durations.
	assert.Equal(t, []float64{5, 10}, services.CrossfadeOffsets([]float64{6, 6, 4}, 1))
	assert.Equal(t, 8.0, services.CrossfadeDuration([]float64{4, 4}, 0))
}

func TestCrossfadeOutputEndsAfterLastInput(t *testing.T) {
	for _, durations := range [][]float64{{8, 8, 8}, {6, 6, 4}, {8, 3.5}, {5, 7, 8, 4}} {
		offsets := services.CrossfadeOffsets(durations, 1)
		last := offsets[len(offsets)-1] + durations[len(durations)-1]
		assert.InDelta(t, services.CrossfadeDuration(durations, 1), last, 1e-9, "%v", durations)
	}
}

func TestCrossfadeFilterGraph(t *testing.T) {
	inputs := []services.AssemblyInput{
		{Path: "a.mp4", DurationSeconds: 8, HasAudio: true},
		{Path: "b.mp4", DurationSeconds: 8, HasAudio: true},
		{Path: "c.mp4", DurationSeconds: 8, HasAudio: true},
	}
	graph, err := services.CrossfadeFilterGraph(inputs, 720, 1280, 0.5)
	require.NoError(t, err)
	assert.Contains(t, graph, "[v0][v1]xfade=transition=fade:duration=0.5:offset=7.5[vx1]")
	assert.Contains(t, graph, "[vx1][v2]xfade=transition=fade:duration=0.5:offset=15[outv]")
	assert.Contains(t, graph, "[a0][a1]acrossfade=d=0.5[ax1]")
	assert.Contains(t, graph, "[ax1][a2]acrossfade=d=0.5[outa]")
	assert.Contains(t, graph, "scale=720:1280")
	assert.Equal(t, 1, strings.Count(graph, "[outv]"))
}

func TestCrossfadeFilterGraphValidation(t *testing.T) {
	one := []services.AssemblyInput{{Path: "a.mp4", DurationSeconds: 8}}
	_, err := services.CrossfadeFilterGraph(one, 1280, 720, 0.5)
	assert.ErrorIs(t, err, model.ErrValidation)

	two := []services.AssemblyInput{{Path: "a.mp4", DurationSeconds: 8}, {Path: "b.mp4", DurationSeconds: 2}}
	_, err = services.CrossfadeFilterGraph(two, 1280, 720, 2)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestAssemblyArgs(t *testing.T) {
	inputs := []services.AssemblyInput{{Path: "a.mp4"}, {Path: "b.mp4"}}
	args := services.AssemblyArgs(inputs, "GRAPH", "out.mp4")
	assert.Equal(t, []string{"-y", "-i", "a.mp4", "-i", "b.mp4", "-filter_complex", "GRAPH", "-map", "[outv]", "-map", "[outa]"}, args[:11])
	assert.Equal(t, "out.mp4", args[len(args)-1])
	assert.Contains(t, args, "libx264")
}
