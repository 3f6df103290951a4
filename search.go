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
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// SearchResultsTable binds the dataset search RPC to a StreamTable.
//
// It owns the scan parameters of its requests: the schema probe asks for zero
// rows and the full scan sends the request unmodified.
type SearchResultsTable struct {
	client  SearchClient
	request *SearchDatasetRequest

	// Allocator is used to decode response payloads. Defaults to memory.DefaultAllocator.
	Allocator memory.Allocator
}

var _ StreamToTable[*SearchDatasetResponse] = (*SearchResultsTable)(nil)

// NewSearchResultsTable creates the adapter for req.
//
// req must not carry scan parameters.
func NewSearchResultsTable(client SearchClient, req *SearchDatasetRequest) (*SearchResultsTable, error) {
	if client == nil {
		return nil, newError(ErrConfiguration, "search client is required")
	}
	if req == nil {
		return nil, newError(ErrConfiguration, "search request is required")
	}
	if req.ScanParameters != nil {
		return nil, newError(ErrConfiguration, "scan parameters are not supported for search results tables")
	}
	return &SearchResultsTable{
		client:    client,
		request:   req.Clone(),
		Allocator: memory.DefaultAllocator,
	}, nil
}

// Request returns a copy of the request the table was created with.
func (t *SearchResultsTable) Request() *SearchDatasetRequest {
	return t.request.Clone()
}

// IntoTable prepares a StreamTable over the adapter, probing its schema.
func (t *SearchResultsTable) IntoTable(ctx context.Context, opts ...TableOption) (*StreamTable[*SearchDatasetResponse], error) {
	return Prepare[*SearchDatasetResponse](ctx, t, opts...)
}

// FetchSchema issues a zero-row search and decodes the schema of its first response.
func (t *SearchResultsTable) FetchSchema(ctx context.Context) (*arrow.Schema, error) {
	req := t.request.Clone()
	limit := int64(0)
	req.ScanParameters = &ScanParameters{LimitLen: &limit}

	stream, err := t.client.SearchDataset(ctx, req)
	if err != nil {
		return nil, transportError("search dataset", err)
	}
	defer func() { _ = stream.Close() }()

	resp, err := stream.Recv()
	if err != nil {
		if isEndOfStream(err) {
			return nil, newError(ErrEmptyStream, "empty stream from search results")
		}
		return nil, transportError("search dataset", err)
	}
	if resp == nil || resp.Data == nil {
		return nil, newError(ErrMissingPayload, "empty data from search results")
	}

	rec, err := resp.Data.Decode(t.allocator())
	if err != nil {
		return nil, decodeError("search results schema", err)
	}
	defer rec.Release()
	return rec.Schema(), nil
}

// SendStreamingRequest issues the search with the request unmodified.
func (t *SearchResultsTable) SendStreamingRequest(ctx context.Context) (Stream[*SearchDatasetResponse], error) {
	stream, err := t.client.SearchDataset(ctx, t.request.Clone())
	if err != nil {
		return nil, transportError("search dataset", err)
	}
	return stream, nil
}

// ProcessResponse decodes the payload of one search response.
func (t *SearchResultsTable) ProcessResponse(resp *SearchDatasetResponse) (arrow.Record, error) {
	if resp == nil || resp.Data == nil {
		return nil, newError(ErrMissingPayload, "dataframe missing from search dataset response")
	}
	rec, err := resp.Data.Decode(t.allocator())
	if err != nil {
		return nil, decodeError("search results batch", err)
	}
	return rec, nil
}

func (t *SearchResultsTable) allocator() memory.Allocator {
	if t.Allocator == nil {
		return memory.DefaultAllocator
	}
	return t.Allocator
}

func (t *SearchResultsTable) String() string {
	return fmt.Sprintf("SearchResultsTable{dataset: %q, column: %q}", t.request.DatasetID, t.request.Column)
}
