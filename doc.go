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


/*
Package rerun exposes the results of a remote, streamed dataset search as an
Arrow table that a query engine can schema-probe and scan lazily.

# Client

Use NewClient to open a connection and create a client. This is the major
entrance for searching datasets:

	client, err := rerun.NewClient(&rerun.Config{
		Endpoint: "<host>:<port>",
		Token:    os.Getenv("RERUN_TOKEN"),
	})
	if err != nil {
		return err
	}
	defer client.Close()

# Search as a Table

A Search prepares a Table: its schema is probed once with a zero-row request,
and every Scan opens a fresh stream decoded one batch at a time:

	table, err := client.Search("dataset", "cats").Table(ctx)
	if err != nil {
		return err
	}
	reader, err := table.Scan(ctx, &rerun.ScanOptions{Columns: []string{"id", "score"}})
	if err != nil {
		return err
	}
	defer reader.Release()
	for reader.Next() {
		process(reader.Record())
	}
	return reader.Err()

# Other Streaming RPCs

StreamTable is generic over the response type of the RPC. Implement
StreamToTable for a new streaming RPC and pass it to Prepare; the bridge takes
care of schema caching, lazy decoding and stream teardown.

# Errors

Failures are reported as *Error values of one kind: ErrConfiguration,
ErrTransport, ErrEmptyStream, ErrMissingPayload, ErrDecode or
ErrRuntimeScheduling. Use errors.Is to tell them apart, and Retryable to learn
whether a transport failure is worth retrying.
*/
package rerun
