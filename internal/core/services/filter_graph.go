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
	"fmt"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

// Encoder settings of the assembled video.
var EncoderArgs = []string{
	"-c:v", "libx264", "-preset", "fast", "-crf", "23",
	"-c:a", "aac", "-b:a", "128k",
	"-movflags", "+faststart",
}

const (
	audioSampleRate = 44100
	videoOutLabel   = "[outv]"
	audioOutLabel   = "[outa]"
)

// AssemblyInput is a downloaded segment ready for the filter graph.
type AssemblyInput struct {
	Path            string
	DurationSeconds float64
	HasAudio        bool
}

// NormalizeFilter scales and pads input i to width x height with square pixels.
func NormalizeFilter(i, width, height int) string {
	return fmt.Sprintf("[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1[v%d]",
		i, width, height, width, height, i)
}

// AudioFilter brings input i to a common layout, or synthesises silence of the same
// length when the input has no audio stream.
func AudioFilter(i int, in AssemblyInput) string {
	if in.HasAudio {
		return fmt.Sprintf("[%d:a]aresample=%d,aformat=channel_layouts=stereo[a%d]", i, audioSampleRate, i)
	}
	return fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d,atrim=duration=%s[a%d]",
		audioSampleRate, seconds(in.DurationSeconds), i)
}

// CutFilterGraph concatenates the normalized inputs back to back.
func CutFilterGraph(inputs []AssemblyInput, width, height int) string {
	parts := make([]string, 0, 2*len(inputs)+1)
	var concat strings.Builder
	for i, in := range inputs {
		parts = append(parts, NormalizeFilter(i, width, height), AudioFilter(i, in))
		fmt.Fprintf(&concat, "[v%d][a%d]", i, i)
	}
	concat.WriteString(fmt.Sprintf("concat=n=%d:v=1:a=1%s%s", len(inputs), videoOutLabel, audioOutLabel))
	parts = append(parts, concat.String())
	return strings.Join(parts, ";")
}

// CrossfadeOffsets returns the xfade offset of each transition k (1..n-1):
// the summed duration of the inputs before k minus k crossfades.
func CrossfadeOffsets(durations []float64, crossfade float64) []float64 {
	if len(durations) < 2 {
		return nil
	}
	out := make([]float64, 0, len(durations)-1)
	sum := 0.0
	for k := 1; k < len(durations); k++ {
		sum += durations[k-1]
		out = append(out, sum-float64(k)*crossfade)
	}
	return out
}

// CrossfadeDuration is the expected length of the assembled output. A zero
// crossfade gives the length of a hard-cut assembly.
func CrossfadeDuration(durations []float64, crossfade float64) float64 {
	total := 0.0
	for _, d := range durations {
		total += d
	}
	if len(durations) > 1 {
		total -= float64(len(durations)-1) * crossfade
	}
	return total
}

// CrossfadeFilterGraph chains xfade and acrossfade over the normalized inputs. The
// crossfade must be shorter than every input.
func CrossfadeFilterGraph(inputs []AssemblyInput, width, height int, crossfade float64) (string, error) {
	if len(inputs) < 2 {
		return "", fmt.Errorf("%w: crossfade needs at least two inputs", model.ErrValidation)
	}
	durations := make([]float64, len(inputs))
	parts := make([]string, 0, 4*len(inputs))
	for i, in := range inputs {
		if in.DurationSeconds <= crossfade {
			return "", fmt.Errorf("%w: input %d is %ss long, crossfade is %ss",
				model.ErrValidation, i, seconds(in.DurationSeconds), seconds(crossfade))
		}
		durations[i] = in.DurationSeconds
		parts = append(parts, NormalizeFilter(i, width, height), AudioFilter(i, in))
	}

	offsets := CrossfadeOffsets(durations, crossfade)
	prevV, prevA := "[v0]", "[a0]"
	for k := 1; k < len(inputs); k++ {
		outV, outA := fmt.Sprintf("[vx%d]", k), fmt.Sprintf("[ax%d]", k)
		if k == len(inputs)-1 {
			outV, outA = videoOutLabel, audioOutLabel
		}
		parts = append(parts,
			fmt.Sprintf("%s[v%d]xfade=transition=fade:duration=%s:offset=%s%s", prevV, k, seconds(crossfade), seconds(offsets[k-1]), outV),
			fmt.Sprintf("%s[a%d]acrossfade=d=%s%s", prevA, k, seconds(crossfade), outA),
		)
		prevV, prevA = outV, outA
	}
	return strings.Join(parts, ";"), nil
}

// AssemblyArgs builds the complete ffmpeg invocation for a filter graph.
func AssemblyArgs(inputs []AssemblyInput, graph string, output string) []string {
	args := []string{"-y"}
	for _, in := range inputs {
		args = append(args, "-i", in.Path)
	}
	args = append(args, "-filter_complex", graph, "-map", videoOutLabel, "-map", audioOutLabel)
	args = append(args, EncoderArgs...)
	return append(args, output)
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
