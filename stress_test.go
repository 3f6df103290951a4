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


package rerun_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"

	"github.com/ErakhtinB/rerun"
	"github.com/ErakhtinB/rerun/internal/searchtest"
)

const (
	StressBatches = 16
	StressJobs    = 200
	StressWorkers = 8
)

func randomResponses(t *testing.T, f *gofakeit.Faker) ([]*rerun.SearchDatasetResponse, int64) {
	var total int64
	responses := make([]*rerun.SearchDatasetResponse, StressBatches)
	for i := range responses {
		n := f.IntRange(0, 64)
		total += int64(n)
		responses[i] = searchtest.Response(t, searchtest.ScoreSchema(), searchtest.RandomScoreBatch(f, memory.DefaultAllocator, n))
	}
	return responses, total
}

func TestStressConcurrentScans(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}

	f := gofakeit.New(20240202)
	responses, total := randomResponses(t, f)
	srv := &searchtest.Server{
		Probe: []*rerun.SearchDatasetResponse{searchtest.ProbeResponse(t)},
		Scan:  responses,
	}
	conn := searchtest.Serve(t, srv, &rerun.Config{Token: f.UUID()})

	table, err := rerun.NewClientWith(conn).Search(f.UUID(), f.Word()).Table(context.Background())
	require.NoError(t, err)

	var rows, scans atomic.Int64
	limits := make([]int64, StressJobs)
	for i := range limits {
		limits[i] = int64(f.IntRange(-1, int(total)+10))
	}

	wg := sync.WaitGroup{}
	jobs := make(chan int64)
	for i := 0; i < StressWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for limit := range jobs {
				opts := &rerun.ScanOptions{}
				want := total
				if limit >= 0 {
					opts.Limit = &limit
					want = min(limit, total)
				}

				reader, err := table.Scan(context.Background(), opts)
				if !assertNoError(t, err) {
					continue
				}
				var got int64
				for reader.Next() {
					got += reader.Record().NumRows()
				}
				assertNoError(t, reader.Err())
				reader.Release()

				if got != want {
					t.Errorf("scan with limit %d yielded %d rows, want %d", limit, got, want)
				}
				rows.Add(got)
				scans.Add(1)
			}
		}()
	}
	for _, limit := range limits {
		jobs <- limit
	}
	close(jobs)
	wg.Wait()

	require.EqualValues(t, StressJobs, scans.Load())
	probes := 0
	for _, call := range srv.Calls() {
		if searchtest.IsProbe(call.Request) {
			probes++
		}
	}
	require.Equal(t, 1, probes)
	t.Logf("Scanned %d rows in %d scans", rows.Load(), scans.Load())
}

// assertNoError reports err without stopping the calling goroutine.
func assertNoError(t *testing.T, err error) bool {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
		return false
	}
	return true
}
