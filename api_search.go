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

	"google.golang.org/grpc"
)

const (
	// SearchServiceName is the fully qualified name of the search service.
	SearchServiceName = "rerun.search.v1.SearchService"
	// SearchDatasetMethod is the full method name of the streaming search RPC.
	SearchDatasetMethod = "/" + SearchServiceName + "/SearchDataset"
)

// EncoderVersion identifies how a DataframePart payload is encoded.
type EncoderVersion int32

const (
	// EncoderVersionUnspecified is the zero value and is never decodable.
	EncoderVersionUnspecified EncoderVersion = 0
	// EncoderVersionArrowIPC marks a payload holding an Arrow IPC stream.
	EncoderVersionArrowIPC EncoderVersion = 1
)

// ScanParameters constrains how many rows the service returns.
type ScanParameters struct {
	// LimitLen caps the number of returned rows. Zero asks for the schema only.
	LimitLen *int64
	// LimitOffset skips rows before the first returned one.
	LimitOffset int64
}

// SearchQuery is the predicate of a dataset search.
type SearchQuery struct {
	// Text is a full-text query.
	Text string
	// Embedding is a query vector for vector search.
	Embedding []float32
}

// SearchDatasetRequest asks the service to search one dataset.
//
// Treat it as immutable once handed to a SearchResultsTable.
type SearchDatasetRequest struct {
	// DatasetID identifies the dataset to search.
	DatasetID string
	// Column is the indexed column to search against. Optional.
	Column string
	// Query is the search predicate.
	Query *SearchQuery
	// ScanParameters constrains the response size. Optional.
	ScanParameters *ScanParameters
}

// Clone returns a deep copy of the request.
func (r *SearchDatasetRequest) Clone() *SearchDatasetRequest {
	if r == nil {
		return nil
	}
	c := *r
	if r.Query != nil {
		q := *r.Query
		q.Embedding = append([]float32(nil), r.Query.Embedding...)
		c.Query = &q
	}
	if r.ScanParameters != nil {
		sp := *r.ScanParameters
		if sp.LimitLen != nil {
			limit := *sp.LimitLen
			sp.LimitLen = &limit
		}
		c.ScanParameters = &sp
	}
	return &c
}

// DataframePart is an encoded chunk of a dataframe.
type DataframePart struct {
	EncoderVersion EncoderVersion
	Payload        []byte
}

// SearchDatasetResponse is one message of a search response stream.
type SearchDatasetResponse struct {
	// Data is nil when the service sent a message without payload.
	Data *DataframePart
}

// SearchServer is the server API for the search service.
type SearchServer interface {
	// SearchDataset streams the search results of req to stream.
	SearchDataset(req *SearchDatasetRequest, stream grpc.ServerStreamingServer[SearchDatasetResponse]) error
}

// SearchServiceDesc describes the search service for grpc.Server.RegisterService.
var SearchServiceDesc = grpc.ServiceDesc{
	ServiceName: SearchServiceName,
	HandlerType: (*SearchServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SearchDataset",
			Handler:       searchDatasetHandler,
			ServerStreams: true,
		},
	},
	Metadata: "rerun/search/v1/search.proto",
}

// RegisterSearchServer registers srv on s.
func RegisterSearchServer(s grpc.ServiceRegistrar, srv SearchServer) {
	s.RegisterService(&SearchServiceDesc, srv)
}

func searchDatasetHandler(srv any, stream grpc.ServerStream) error {
	req := new(SearchDatasetRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(SearchServer).SearchDataset(req, &grpc.GenericServerStream[SearchDatasetRequest, SearchDatasetResponse]{ServerStream: stream})
}

// searchDataset opens the server stream for req on cc.
func searchDataset(ctx context.Context, cc grpc.ClientConnInterface, req *SearchDatasetRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[SearchDatasetResponse], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	cs, err := cc.NewStream(ctx, &SearchServiceDesc.Streams[0], SearchDatasetMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[SearchDatasetRequest, SearchDatasetResponse]{ClientStream: cs}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
