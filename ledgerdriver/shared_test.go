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
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/qldbsession"
	"github.com/aws/aws-sdk-go-v2/service/qldbsession/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/mock"
)

var (
	mockLedgerName   = "someLedgerName"
	mockSessionToken = "sessionToken"
	mockTxnID        = "txnID12345"
	errMock          = errors.New("mock error")

	testOCC     = &types.OccConflictException{Message: ptrString("OCC")}
	testISE     = &types.InvalidSessionException{Message: ptrString("Invalid session")}
	testExpired = &types.InvalidSessionException{Message: ptrString("Transaction 23EA3C089B23423D has expired")}
	testBadReq  = &types.BadRequestException{Message: ptrString("Bad request")}
	test500     = &internalFailure{Message: ptrString("Five Hundred")}
)

func testLogger() *driverLogger {
	return &driverLogger{defaultLogger{}, LogOff}
}

func ptrString(s string) *string { return &s }

func ptrInt64(v int64) *int64 { return &v }

// noBackoff keeps retry tests fast.
type noBackoff struct{}

func (noBackoff) Delay(RetryPolicyContext) time.Duration { return 0 }

// internalFailure mocks a 500-class server fault in tests.
type internalFailure struct {
	Message *string
}

func (e *internalFailure) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorCode(), e.ErrorMessage())
}

func (e *internalFailure) ErrorMessage() string {
	if e.Message == nil {
		return ""
	}
	return *e.Message
}

func (e *internalFailure) ErrorCode() string             { return "InternalFailure" }
func (e *internalFailure) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

// mockSessionService mocks the wire transport underneath the driver.
type mockSessionService struct {
	mock.Mock
}

func (m *mockSessionService) SendCommand(ctx context.Context, params *qldbsession.SendCommandInput, optFns ...func(*qldbsession.Options)) (*qldbsession.SendCommandOutput, error) {
	args := m.Called(ctx, params, optFns)
	output, _ := args.Get(0).(*qldbsession.SendCommandOutput)
	return output, args.Error(1)
}

// countCommands tallies the commands of one kind the mock transport saw.
func countCommands(m *mockSessionService, pred func(*qldbsession.SendCommandInput) bool) int {
	count := 0
	for _, call := range m.Calls {
		if input, ok := call.Arguments.Get(1).(*qldbsession.SendCommandInput); ok && pred(input) {
			count++
		}
	}
	return count
}

var (
	matchStartSession = mock.MatchedBy(func(in *qldbsession.SendCommandInput) bool { return in.StartSession != nil })
	matchStartTxn     = mock.MatchedBy(func(in *qldbsession.SendCommandInput) bool { return in.StartTransaction != nil })
	matchExecute      = mock.MatchedBy(func(in *qldbsession.SendCommandInput) bool { return in.ExecuteStatement != nil })
	matchCommit       = mock.MatchedBy(func(in *qldbsession.SendCommandInput) bool { return in.CommitTransaction != nil })
	matchAbort        = mock.MatchedBy(func(in *qldbsession.SendCommandInput) bool { return in.AbortTransaction != nil })
	matchEndSession   = mock.MatchedBy(func(in *qldbsession.SendCommandInput) bool { return in.EndSession != nil })
	matchFetchPage    = mock.MatchedBy(func(in *qldbsession.SendCommandInput) bool { return in.FetchPage != nil })
)

func isStartSession(in *qldbsession.SendCommandInput) bool { return in.StartSession != nil }
func isStartTxn(in *qldbsession.SendCommandInput) bool     { return in.StartTransaction != nil }
func isCommit(in *qldbsession.SendCommandInput) bool       { return in.CommitTransaction != nil }
func isAbort(in *qldbsession.SendCommandInput) bool        { return in.AbortTransaction != nil }

// newMockOutput builds a full command output whose commit digest matches a
// transaction on txnID with no statements executed.
func newMockOutput(txnID string, commitDigest []byte) *qldbsession.SendCommandOutput {
	return &qldbsession.SendCommandOutput{
		AbortTransaction:  &types.AbortTransactionResult{},
		CommitTransaction: &types.CommitTransactionResult{TransactionId: &txnID, CommitDigest: commitDigest},
		EndSession:        &types.EndSessionResult{},
		ExecuteStatement:  &types.ExecuteStatementResult{FirstPage: &types.Page{}},
		FetchPage:         &types.FetchPageResult{Page: &types.Page{}},
		StartSession:      &types.StartSessionResult{SessionToken: &mockSessionToken},
		StartTransaction:  &types.StartTransactionResult{TransactionId: &txnID},
	}
}

// seedDigest is the commit digest of a transaction that executed nothing.
func seedDigest(txnID string) []byte {
	seed, err := hashValue(txnID)
	if err != nil {
		panic(err)
	}
	return seed.hash
}

// mockLedgerService mocks the per-session command layer for transaction and
// result tests.
type mockLedgerService struct {
	mock.Mock
}

func (m *mockLedgerService) abortTransaction(ctx context.Context) (*types.AbortTransactionResult, error) {
	args := m.Called(ctx)
	result, _ := args.Get(0).(*types.AbortTransactionResult)
	return result, args.Error(1)
}

func (m *mockLedgerService) commitTransaction(ctx context.Context, txnID *string, commitDigest []byte) (*types.CommitTransactionResult, error) {
	args := m.Called(ctx, txnID, commitDigest)
	result, _ := args.Get(0).(*types.CommitTransactionResult)
	return result, args.Error(1)
}

func (m *mockLedgerService) executeStatement(ctx context.Context, statement *string, parameters []types.ValueHolder, txnID *string) (*types.ExecuteStatementResult, error) {
	args := m.Called(ctx, statement, parameters, txnID)
	result, _ := args.Get(0).(*types.ExecuteStatementResult)
	return result, args.Error(1)
}

func (m *mockLedgerService) endSession(ctx context.Context) (*types.EndSessionResult, error) {
	args := m.Called(ctx)
	result, _ := args.Get(0).(*types.EndSessionResult)
	return result, args.Error(1)
}

func (m *mockLedgerService) fetchPage(ctx context.Context, pageToken *string, txnID *string) (*types.FetchPageResult, error) {
	args := m.Called(ctx, pageToken, txnID)
	result, _ := args.Get(0).(*types.FetchPageResult)
	return result, args.Error(1)
}

func (m *mockLedgerService) startTransaction(ctx context.Context) (*types.StartTransactionResult, error) {
	args := m.Called(ctx)
	result, _ := args.Get(0).(*types.StartTransactionResult)
	return result, args.Error(1)
}
