/*
Copyright the ledger-driver-go authors. All Rights Reserved.

Licensed under the Apache License, Version 2.0 (the "License"). You may not use this file except in compliance with
the License. A copy of the License is located at

http://www.apache.org/licenses/LICENSE-2.0

or in the "license" file accompanying this file. This file is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR
CONDITIONS OF ANY KIND, either express or implied. See the License for the specific language governing permissions
and limitations under the License.
*/

package ledgerdriver

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/qldbsession/types"
)

// Result is a streaming cursor over a statement's result set. One page is
// cached at a time; the next page is fetched only once the cached page is
// fully drained, so at most one FetchPage is ever in flight and a consumer
// that stops mid-page resumes exactly where it left off. A Result must not
// be read after its transaction has committed or aborted; use
// Transaction.BufferResult for values that outlive the transaction.
type Result struct {
	ctx          context.Context
	communicator ledgerService
	txnID        *string
	pageValues   []types.ValueHolder
	pageToken    *string
	index        int
	ionBinary    []byte
	metrics      *metrics
	err          error
	logger       *driverLogger
}

// Next advances to the next row of data in the result set.
// It returns true if there was another row; after a successful call, use
// GetCurrentData to retrieve it. It returns false when the result set is
// exhausted or an error occurred; check Err to tell the two apart.
func (result *Result) Next(txn Transaction) bool {
	result.ionBinary = nil
	result.err = nil

	for result.index >= len(result.pageValues) {
		if result.pageToken == nil {
			return false
		}
		if result.err = result.getNextPage(); result.err != nil {
			return false
		}
	}

	result.ionBinary = result.pageValues[result.index].IonBinary
	result.index++
	return true
}

func (result *Result) getNextPage() error {
	nextPage, err := result.communicator.fetchPage(result.ctx, result.pageToken, result.txnID)
	if err != nil {
		return err
	}
	result.pageValues = nextPage.Page.Values
	result.pageToken = nextPage.Page.NextPageToken
	result.index = 0
	result.metrics.update(nextPage.ConsumedIOs, nextPage.TimingInformation)
	return nil
}

// GetCurrentData returns the current row in binary Ion. Use ion.Unmarshal
// or other Ion library methods to decode it.
func (result *Result) GetCurrentData() []byte {
	return result.ionBinary
}

// Err returns the error that made the previous call to Next return false,
// or nil if the result set simply ended.
func (result *Result) Err() error {
	return result.err
}

// GetConsumedIOs returns the cumulative I/O usage reported by the pages read
// so far, or nil if no page has reported usage. The statistics are stateful.
func (result *Result) GetConsumedIOs() *IOUsage {
	return result.metrics.ioUsage()
}

// GetTimingInformation returns the cumulative server-side processing time
// reported by the pages read so far, or nil if no page has reported timing.
// The statistics are stateful.
func (result *Result) GetTimingInformation() *TimingInformation {
	return result.metrics.timingInformation()
}

// BufferedResult is a result set read eagerly to completion; unlike Result
// it remains valid after its transaction ends.
type BufferedResult struct {
	values    [][]byte
	index     int
	ionBinary []byte
	metrics   *metrics
}

// Next advances to the next row of data in the result set, returning true
// if there was another row to advance to.
func (result *BufferedResult) Next() bool {
	result.ionBinary = nil

	if result.index >= len(result.values) {
		return false
	}

	result.ionBinary = result.values[result.index]
	result.index++
	return true
}

// GetCurrentData returns the current row in binary Ion.
func (result *BufferedResult) GetCurrentData() []byte {
	return result.ionBinary
}

// GetConsumedIOs returns the total I/O usage for the statement, or nil if
// the ledger reported none.
func (result *BufferedResult) GetConsumedIOs() *IOUsage {
	return result.metrics.ioUsage()
}

// GetTimingInformation returns the total server-side processing time for the
// statement, or nil if the ledger reported none.
func (result *BufferedResult) GetTimingInformation() *TimingInformation {
	return result.metrics.timingInformation()
}

// IOUsage contains metrics for the I/O requests a statement consumed.
type IOUsage struct {
	readIOs  *int64
	writeIOs *int64
}

// GetReadIOs returns the number of read I/O requests consumed, or nil if
// the ledger did not report them.
func (ioUsage *IOUsage) GetReadIOs() *int64 {
	return ioUsage.readIOs
}

func (ioUsage *IOUsage) getWriteIOs() *int64 {
	return ioUsage.writeIOs
}

// TimingInformation contains metrics for server-side processing time.
type TimingInformation struct {
	processingTimeMilliseconds *int64
}

// GetProcessingTimeMilliseconds returns the server-side processing time in
// milliseconds, or nil if the ledger did not report it.
func (timingInfo *TimingInformation) GetProcessingTimeMilliseconds() *int64 {
	return timingInfo.processingTimeMilliseconds
}

// metrics accumulates the optional per-page statistics. A counter stays nil
// until some page actually reports it; pages without statistics never turn
// an unknown total into a zero.
type metrics struct {
	readIOs                    *int64
	writeIOs                   *int64
	processingTimeMilliseconds *int64
}

func newMetrics(ioUsage *types.IOUsage, timing *types.TimingInformation) *metrics {
	m := &metrics{}
	m.update(ioUsage, timing)
	return m
}

func (m *metrics) update(ioUsage *types.IOUsage, timing *types.TimingInformation) {
	if ioUsage != nil {
		m.readIOs = addCounter(m.readIOs, ioUsage.ReadIOs)
		m.writeIOs = addCounter(m.writeIOs, ioUsage.WriteIOs)
	}
	if timing != nil {
		m.processingTimeMilliseconds = addCounter(m.processingTimeMilliseconds, timing.ProcessingTimeMilliseconds)
	}
}

func (m *metrics) ioUsage() *IOUsage {
	if m.readIOs == nil && m.writeIOs == nil {
		return nil
	}
	return &IOUsage{readIOs: copyCounter(m.readIOs), writeIOs: copyCounter(m.writeIOs)}
}

func (m *metrics) timingInformation() *TimingInformation {
	if m.processingTimeMilliseconds == nil {
		return nil
	}
	return &TimingInformation{processingTimeMilliseconds: copyCounter(m.processingTimeMilliseconds)}
}

func addCounter(current *int64, delta int64) *int64 {
	total := delta
	if current != nil {
		total += *current
	}
	return &total
}

func copyCounter(counter *int64) *int64 {
	if counter == nil {
		return nil
	}
	value := *counter
	return &value
}
