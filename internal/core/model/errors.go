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

import "errors"

// Pipeline error taxonomy. Stage failures wrap one of these with fmt.Errorf("%w: ...")
// so that callers can classify them with errors.Is.
var (
	ErrValidation             = errors.New("validation error")
	ErrGenerationTimeout      = errors.New("generation timeout")
	ErrGenerationFailed       = errors.New("generation failed")
	ErrFrameExtractionFailed  = errors.New("frame extraction failed")
	ErrAssemblyFailed         = errors.New("assembly failed")
	ErrStorage                = errors.New("storage error")
	ErrMetadataPersistence    = errors.New("metadata persistence error")
	ErrRunNotFound            = errors.New("run not found")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrUnsupportedMediaFormat = errors.New("unsupported media format")
)

// Error kinds as recorded on run records and API responses.
const (
	ErrorKindValidation          = "ValidationError"
	ErrorKindGenerationTimeout   = "GenerationTimeout"
	ErrorKindGenerationFailed    = "GenerationFailed"
	ErrorKindFrameExtraction     = "FrameExtractionFailed"
	ErrorKindAssembly            = "AssemblyFailed"
	ErrorKindStorage             = "StorageError"
	ErrorKindMetadataPersistence = "MetadataPersistenceError"
	ErrorKindInternal            = "InternalError"
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrValidation, ErrorKindValidation},
	{ErrUnsupportedMediaFormat, ErrorKindValidation},
	{ErrGenerationTimeout, ErrorKindGenerationTimeout},
	{ErrGenerationFailed, ErrorKindGenerationFailed},
	{ErrFrameExtractionFailed, ErrorKindFrameExtraction},
	{ErrAssemblyFailed, ErrorKindAssembly},
	{ErrStorage, ErrorKindStorage},
	{ErrMetadataPersistence, ErrorKindMetadataPersistence},
}

// ErrorKind maps an error onto its taxonomy name. Unclassified errors are reported
// as InternalError, nil as the empty string.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return ErrorKindInternal
}
