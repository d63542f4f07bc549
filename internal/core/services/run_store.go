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
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/core/model"
)

const DefaultListLimit = 50

// BigQueryRunStore keeps one row per finished run in a BigQuery table. Rows are
// written with the streaming inserter and read back with parameterized queries
// (see queries.go). Every failure is reported as model.ErrMetadataPersistence,
// except a missing run, which is model.ErrRunNotFound.
type BigQueryRunStore struct {
	BigqueryClient *bigquery.Client
	DatasetName    string
	RunTable       string
}

func NewBigQueryRunStore(client *bigquery.Client, dataset string, table string) *BigQueryRunStore {
	return &BigQueryRunStore{BigqueryClient: client, DatasetName: dataset, RunTable: table}
}

// GetFQN returns the table name in standard SQL form (project.dataset.table).
func (s *BigQueryRunStore) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.RunTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// Put streams record into the run table.
func (s *BigQueryRunStore) Put(ctx context.Context, record *model.RunRecord) error {
	inserter := s.BigqueryClient.Dataset(s.DatasetName).Table(s.RunTable).Inserter()
	if err := inserter.Put(ctx, record); err != nil {
		return fmt.Errorf("%w: insert run %s: %w", model.ErrMetadataPersistence, record.RunID, err)
	}
	return nil
}

// Get returns the record of runID.
func (s *BigQueryRunStore) Get(ctx context.Context, runID string) (*model.RunRecord, error) {
	q := s.BigqueryClient.Query(fmt.Sprintf(QryFindRunById, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "run_id", Value: runID}}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: query run %s: %w", model.ErrMetadataPersistence, runID, err)
	}
	record := &model.RunRecord{}
	err = itr.Next(record)
	if errors.Is(err, iterator.Done) {
		return nil, fmt.Errorf("%w: %s", model.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read run %s: %w", model.ErrMetadataPersistence, runID, err)
	}
	return record, nil
}

// ListByOwner returns the owner's runs, newest first.
func (s *BigQueryRunStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := s.BigqueryClient.Query(fmt.Sprintf(QryListRunsByOwner, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
		{Name: "limit", Value: limit},
	}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list runs of %s: %w", model.ErrMetadataPersistence, ownerID, err)
	}
	out := make([]*model.RunRecord, 0)
	for {
		record := &model.RunRecord{}
		err := itr.Next(record)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: list runs of %s: %w", model.ErrMetadataPersistence, ownerID, err)
		}
		out = append(out, record)
	}
	return out, nil
}

// Delete removes the row of runID with a DML statement and waits for the job.
// Rows still in the streaming buffer cannot be deleted until BigQuery flushes them.
func (s *BigQueryRunStore) Delete(ctx context.Context, runID string) error {
	q := s.BigqueryClient.Query(fmt.Sprintf(QryDeleteRun, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "run_id", Value: runID}}
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%w: delete run %s: %w", model.ErrMetadataPersistence, runID, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%w: delete run %s: %w", model.ErrMetadataPersistence, runID, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%w: delete run %s: %w", model.ErrMetadataPersistence, runID, err)
	}
	return nil
}
