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

package model

import (
	"encoding/json"
	"strings"
)

// Labeled fields of a video prompt.
const (
	FieldDialogue = "dialogue"
	FieldAction   = "action"
	FieldCamera   = "camera"
	FieldEmotion  = "emotion"
	FieldType     = "type"

	VideoPromptType = "veo3_fast"
)

// Required fields per prompt kind. A generated prompt missing any of them is replaced
// by the matching fallback.
var (
	BaseVideoPromptFields    = []string{FieldDialogue, FieldAction, FieldCamera}
	ContinuationPromptFields = []string{FieldDialogue, FieldAction}
)

// Deterministic fallbacks.
const (
	FallbackBaseVideoPrompt = "dialogue: hey everyone... check out this amazing product I found\n" +
		"action: character holds product naturally while speaking to camera\n" +
		"camera: amateur iphone selfie video, uneven framing, natural lighting\n" +
		"emotion: excited, authentic\n" +
		"type: veo3_fast"

	FallbackContinuationPrompt = "dialogue: and another thing about this product... it's really amazing\n" +
		"action: character continues showing product with different angle\n" +
		"camera: amateur iphone selfie video, uneven framing, natural lighting\n" +
		"emotion: enthusiastic, authentic\n" +
		"type: veo3_fast"

	FallbackImagePrompt = "action: character holds product naturally\n" +
		"character: infer from the reference image\n" +
		"product: show product with all visible text clear and accurate\n" +
		"setting: casual real-world environment\n" +
		"camera: amateur iPhone photo, casual selfie, uneven framing, slightly blurry\n" +
		"style: candid UGC look, no filters, imperfections intact\n" +
		"text_accuracy: preserve all visible text exactly as in reference image"

	FallbackImageAspectRatio = "2:3"
	FallbackImageAnalysis    = "Unable to analyze image"
)

// HasLabeledFields reports whether every field appears as a "field:" label.
func HasLabeledFields(text string, fields ...string) bool {
	lower := strings.ToLower(text)
	for _, f := range fields {
		if !strings.Contains(lower, f+":") {
			return false
		}
	}
	return true
}

// ParseLabeledFields splits "field: value" lines into a map. Unlabeled lines are
// appended to the previous field.
func ParseLabeledFields(text string) map[string]string {
	out := make(map[string]string)
	last := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok && !strings.Contains(k, " ") && k != "" {
			last = strings.ToLower(k)
			out[last] = strings.TrimSpace(v)
			continue
		}
		if last != "" {
			out[last] = strings.TrimSpace(out[last] + " " + line)
		}
	}
	return out
}

// StripCodeFence removes a surrounding markdown code fence from a model response.
func StripCodeFence(in string) string {
	out := strings.TrimSpace(in)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```")
	if i := strings.Index(out, "\n"); i >= 0 && !strings.Contains(out[:i], "{") {
		out = out[i+1:]
	}
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}

// ImagePrompt is the structured output of the image-prompt stage.
type ImagePrompt struct {
	ImagePrompt      string `json:"image_prompt"`
	AspectRatioImage string `json:"aspect_ratio_image"`
}

// ParseImagePrompt decodes the model output, substituting the fallback for anything
// missing or malformed. The boolean reports whether the fallback was used.
func ParseImagePrompt(text string) (*ImagePrompt, bool) {
	out := &ImagePrompt{}
	if err := json.Unmarshal([]byte(StripCodeFence(text)), out); err != nil {
		return &ImagePrompt{ImagePrompt: FallbackImagePrompt, AspectRatioImage: FallbackImageAspectRatio}, true
	}
	fallback := false
	if strings.TrimSpace(out.ImagePrompt) == "" {
		out.ImagePrompt = FallbackImagePrompt
		fallback = true
	}
	if out.AspectRatioImage != "3:2" && out.AspectRatioImage != "2:3" {
		out.AspectRatioImage = FallbackImageAspectRatio
	}
	return out, fallback
}

// ContinuationInput is what the continuation generator needs for segment k+1.
type ContinuationInput struct {
	OriginalPrompt   string
	UserInstructions string
	SegmentIndex     int // 0-based index of the segment being generated
	TotalSegments    int
}

// Default prompt templates. They are text/template bodies and may be overridden
// in the [prompt_templates] configuration section.
const (
	DefaultImageAnalysisTemplate = `Analyze the given image and determine if it primarily depicts a product or a character, or BOTH.

- If the image is of a product, return the analysis in YAML format with the following fields:
brand_name: (Name of the brand shown in the image, if visible or inferable)
color_scheme:
  - hex: (Hex code of each prominent color used)
    name: (Descriptive name of the color)
font_style: (Describe the font family or style used: serif/sans-serif, bold/thin, etc.)
visual_description: (A full sentence or two summarizing what is seen in the image, ignoring the background)

- If the image is of a character, return the analysis in YAML format with the following fields:
character_name: (Name of the character if visible or inferable)
color_scheme:
  - hex: (Hex code of each prominent color used on the character)
    name: (Descriptive name of the color)
outfit_style: (Description of clothing style, accessories, or notable features)
visual_description: (A full sentence or two summarizing what the character looks like, ignoring the background)

Only return the YAML. Do not explain or add any other comments. If it is BOTH, return both descriptions as guided above in YAML format. Describe the product precisely and do not miss any detail.`

	DefaultImagePromptTemplate = `Your task: Create 1 image prompt for a casual UGC-style scene.
Take the product in the reference image and place it into a realistic, casual scene as if captured by an everyday content creator.
The output must feel natural, candid and unpolished: amateur iPhone photo style, slightly imperfect framing and lighting, real-world environments left as-is.
Always preserve all visible product text accurately (logos, slogans, packaging claims). Never invent extra claims or numbers.
Avoid mentioning the name of any copyrighted characters. Avoid double quotes inside the image prompt.
If the user's instructions are not detailed, default to: put this product into the scene with the character.

Return only a JSON object with two fields:
  "image_prompt": stringified YAML with action, character, product, setting, camera, style and text_accuracy keys
  "aspect_ratio_image": "3:2" or "2:3" (default vertical, 2:3)
***
User's instructions:
{{.USER_INSTRUCTIONS}}
***
Description of the reference image:
{{.IMAGE_ANALYSIS}}`

	DefaultVideoPromptTemplate = `Your task: Generate a single UGC-style video prompt that creates a realistic, casual scene as if captured by an everyday content creator.
The video must feel natural, candid and unpolished: amateur iPhone video style, slightly uneven framing, authentic expressions.
Generate casual, conversational dialogue under 150 characters, as if a person were speaking naturally to a friend about the product. Use ... to indicate pauses and avoid special characters like dashes.
Unless stated by the user, the character does not open or use the product, they only show it to the camera.
Do not use double quotes in any part of the prompt.

Output format:
dialogue: [casual conversation about the product]
action: [natural character actions with the product]
camera: [amateur iPhone video style description]
emotion: [authentic emotional state]
type: veo3_fast
***
User's instructions:
{{.USER_INSTRUCTIONS}}
***
Description of the reference image:
{{.IMAGE_ANALYSIS}}
***
Generated image (this image starts the video):
{{.GENERATED_IMAGE_URL}}
***
Aspect ratio: {{.ASPECT_RATIO}}`

	DefaultContinuationTemplate = `Your task: Generate a continuation video prompt that seamlessly follows the previous video segment while keeping the same UGC style, character and setting.
Create natural progression in the dialogue and actions, keep the amateur iPhone video style, and avoid repeating the exact same dialogue or actions.
Use the same format:
dialogue: [continuation of casual conversation]
action: [natural follow-up character actions]
camera: [same amateur iPhone video style]
emotion: [authentic emotional progression]
type: veo3_fast

Create a continuation prompt for video segment {{.SEGMENT_NUMBER}} of {{.TOTAL_SEGMENTS}}.

Original video prompt:
{{.ORIGINAL_PROMPT}}

User's original instructions:
{{.USER_INSTRUCTIONS}}`
)
