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


package itcases

import (
	"context"
	"os"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/require"

	"github.com/ErakhtinB/rerun"
)

func TestSearchSchema(t *testing.T) {
	c := NewClient(t)
	defer c.Close()
	dataset := Dataset(t)

	ctx := context.Background()
	table, err := c.Search(dataset, os.Getenv("RERUN_QUERY")).Table(ctx)
	require.NoError(t, err)

	schema, err := table.Schema(ctx)
	require.NoError(t, err)
	snaps.MatchSnapshot(t, rerun.NewSchema(schema))
}

func TestSearchScan(t *testing.T) {
	c := NewClient(t)
	defer c.Close()
	dataset := Dataset(t)

	ctx := context.Background()
	table, err := c.Search(dataset, os.Getenv("RERUN_QUERY")).Table(ctx)
	require.NoError(t, err)
	schema, err := table.Schema(ctx)
	require.NoError(t, err)

	count := func(opts *rerun.ScanOptions) int64 {
		reader, err := table.Scan(ctx, opts)
		require.NoError(t, err)
		defer reader.Release()

		var rows int64
		for reader.Next() {
			require.Equal(t, reader.Schema().NumFields(), int(reader.Record().NumCols()))
			rows += reader.Record().NumRows()
		}
		require.NoError(t, reader.Err())
		return rows
	}

	total := count(nil)
	require.Equal(t, total, count(nil), "scans of the same search must agree")

	limit := total / 2
	require.Equal(t, limit, count(&rerun.ScanOptions{Limit: &limit}))
	require.Equal(t, total, count(&rerun.ScanOptions{Columns: []string{schema.Field(0).Name}}))
}

func TestSearchUnknownDataset(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	_, err := c.Search(RandomName(t), "anything").Table(context.Background())
	require.Error(t, err)
	require.NotEqual(t, "unknown", rerun.KindOf(err))
}
