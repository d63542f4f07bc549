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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

var storageHosts = []string{
	"https://storage.googleapis.com/",
	"https://storage.cloud.google.com/",
	"https://storage.mtls.cloud.google.com/",
}

// ParseObjectURL splits a gs:// or Cloud Storage https URL into bucket and object name.
func ParseObjectURL(in string, publicBaseURL string) (bucket string, object string, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(in, "gs://"):
		rest = strings.TrimPrefix(in, "gs://")
	case publicBaseURL != "" && strings.HasPrefix(in, strings.TrimSuffix(publicBaseURL, "/")+"/"):
		rest = strings.TrimPrefix(in, strings.TrimSuffix(publicBaseURL, "/")+"/")
	default:
		for _, host := range storageHosts {
			if strings.HasPrefix(in, host) {
				rest = strings.TrimPrefix(in, host)
				break
			}
		}
	}
	if rest == "" {
		return "", "", false
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// GCSArtifactStore keeps pipeline artifacts in one Cloud Storage bucket. URLs outside
// Cloud Storage are fetched over HTTP.
type GCSArtifactStore struct {
	StorageClient *storage.Client
	IAMClient     *credentials.IamCredentialsClient
	HTTPClient    *http.Client
	Bucket        string
	PublicBaseURL string
	MakePublicACL bool
	SignerEmail   string
	Timeout       time.Duration
}

func NewGCSArtifactStore(sc *storage.Client, iam *credentials.IamCredentialsClient, config *Config) *GCSArtifactStore {
	timeout := time.Duration(config.Storage.HTTPTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &GCSArtifactStore{
		StorageClient: sc,
		IAMClient:     iam,
		HTTPClient:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Bucket:        config.Storage.Bucket,
		PublicBaseURL: config.Storage.PublicBaseURL,
		MakePublicACL: config.Storage.MakePublic,
		SignerEmail:   config.Application.SignerServiceAccountEmail,
		Timeout:       timeout,
	}
}

// PublicURL returns the public URL of an object in the artifact bucket.
func (s *GCSArtifactStore) PublicURL(key string) string {
	base := s.PublicBaseURL
	if base == "" {
		base = DefaultPublicURLPrefix + "/" + s.Bucket
	}
	return strings.TrimSuffix(base, "/") + "/" + key
}

// Upload writes data under key, optionally makes it public, and returns its ref.
func (s *GCSArtifactStore) Upload(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (*model.ArtifactRef, error) {
	return s.write(ctx, key, bytes.NewReader(data), contentType, metadata)
}

// UploadFile streams a local file to key.
func (s *GCSArtifactStore) UploadFile(ctx context.Context, key string, path string, contentType string, metadata map[string]string) (*model.ArtifactRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", model.ErrStorage, path, err)
	}
	defer f.Close()
	return s.write(ctx, key, f, contentType, metadata)
}

func (s *GCSArtifactStore) write(ctx context.Context, key string, r io.Reader, contentType string, metadata map[string]string) (*model.ArtifactRef, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	obj := s.StorageClient.Bucket(s.Bucket).Object(key)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	size, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%w: write gs://%s/%s: %w", model.ErrStorage, s.Bucket, key, err)
	}
	if err = w.Close(); err != nil {
		return nil, fmt.Errorf("%w: close gs://%s/%s: %w", model.ErrStorage, s.Bucket, key, err)
	}
	if s.MakePublicACL {
		if err = s.MakePublic(ctx, key); err != nil {
			return nil, err
		}
	}
	slog.Debug("uploaded artifact", "bucket", s.Bucket, "key", key, "bytes", size)
	return &model.ArtifactRef{
		URL:       s.PublicURL(key),
		Key:       key,
		MIMEType:  contentType,
		SizeBytes: size,
	}, nil
}

// MakePublic grants allUsers read access to key.
func (s *GCSArtifactStore) MakePublic(ctx context.Context, key string) error {
	if err := s.StorageClient.Bucket(s.Bucket).Object(key).ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
		return fmt.Errorf("%w: make gs://%s/%s public: %w", model.ErrStorage, s.Bucket, key, err)
	}
	return nil
}

// Download reads the whole object behind url into memory.
func (s *GCSArtifactStore) Download(ctx context.Context, url string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := s.copyTo(ctx, url, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DownloadToFile writes the object behind url to path and returns the byte count.
func (s *GCSArtifactStore) DownloadToFile(ctx context.Context, url string, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", model.ErrStorage, path, err)
	}
	n, err := s.copyTo(ctx, url, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: close %s: %w", model.ErrStorage, path, cerr)
	}
	return n, err
}

func (s *GCSArtifactStore) copyTo(ctx context.Context, url string, w io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	if bucket, object, ok := ParseObjectURL(url, s.PublicBaseURL); ok {
		r, err := s.StorageClient.Bucket(bucket).Object(object).NewReader(ctx)
		if err != nil {
			return 0, fmt.Errorf("%w: read gs://%s/%s: %w", model.ErrStorage, bucket, object, err)
		}
		defer r.Close()
		n, err := io.Copy(w, r)
		if err != nil {
			return n, fmt.Errorf("%w: read gs://%s/%s: %w", model.ErrStorage, bucket, object, err)
		}
		return n, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build request for %s: %w", model.ErrStorage, url, err)
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: fetch %s: %w", model.ErrStorage, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: fetch %s: status %d", model.ErrStorage, url, resp.StatusCode)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("%w: fetch %s: %w", model.ErrStorage, url, err)
	}
	return n, nil
}

// Delete removes key from the artifact bucket. A missing object is not an error.
func (s *GCSArtifactStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	err := s.StorageClient.Bucket(s.Bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: delete gs://%s/%s: %w", model.ErrStorage, s.Bucket, key, err)
	}
	return nil
}

// SignedURL returns a V4 GET URL for key, signed through the IAM credentials API.
func (s *GCSArtifactStore) SignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         http.MethodGet,
		Expires:        time.Now().Add(expires),
		GoogleAccessID: s.SignerEmail,
	}
	if s.IAMClient != nil && s.SignerEmail != "" {
		opts.SignBytes = func(b []byte) ([]byte, error) {
			resp, err := s.IAMClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.SignerEmail),
				Payload: b,
			})
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}
	u, err := s.StorageClient.Bucket(s.Bucket).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("%w: sign gs://%s/%s: %w", model.ErrStorage, s.Bucket, key, err)
	}
	return u, nil
}
