/*
 * Copyright 2024 ScopeDB, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package rerun

import (
	"context"
)

// Search is a dataset search to be read as a table.
type Search struct {
	c *Client

	datasetID string

	// Text is the full-text query.
	Text string
	// Column is the indexed column to search against.
	//
	// This is optional and may be empty, in which case the service picks the
	// dataset's default index.
	Column string
	// Embedding is the query vector of a vector search. Optional.
	Embedding []float32
}

// Search creates a new search of datasetID for text.
func (c *Client) Search(datasetID string, text string) *Search {
	return &Search{
		c:         c,
		datasetID: datasetID,
		Text:      text,
	}
}

// Request builds the request sent for the search.
func (s *Search) Request() *SearchDatasetRequest {
	return &SearchDatasetRequest{
		DatasetID: s.datasetID,
		Column:    s.Column,
		Query: &SearchQuery{
			Text:      s.Text,
			Embedding: append([]float32(nil), s.Embedding...),
		},
	}
}

// Table creates the table of the search results and probes its schema.
func (s *Search) Table(ctx context.Context) (*StreamTable[*SearchDatasetResponse], error) {
	adapter, err := NewSearchResultsTable(s.c.conn, s.Request())
	if err != nil {
		return nil, err
	}
	return adapter.IntoTable(ctx, s.c.tableOptions()...)
}

// Execute scans the search results with opts and collects every batch.
//
// The caller must Release the returned ResultSet.
func (s *Search) Execute(ctx context.Context, opts *ScanOptions) (*ResultSet, error) {
	table, err := s.Table(ctx)
	if err != nil {
		return nil, err
	}
	reader, err := table.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer reader.Release()
	return CollectResultSet(reader)
}
