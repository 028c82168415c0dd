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
	"errors"
	"fmt"
	"net/http"
	"regexp"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/qldbsession/types"
	"github.com/aws/smithy-go"
)

var (
	// ErrDriverClosed is returned when a method is invoked on a closed driver.
	ErrDriverClosed = errors.New("ledgerdriver: driver is closed")

	// ErrPoolEmpty is returned when no session became available within the
	// driver's acquire timeout.
	ErrPoolEmpty = errors.New("ledgerdriver: timed out waiting for an available session")

	// ErrTxnDone is returned when a transaction is used after it has been
	// committed or aborted.
	ErrTxnDone = errors.New("ledgerdriver: transaction has already been committed or aborted")

	// ErrAbort is the sentinel returned by Transaction.Abort. Return it from
	// a transaction function to abandon the transaction without committing;
	// the driver aborts the server-side transaction and surfaces ErrAbort
	// without retrying.
	ErrAbort = errors.New("ledgerdriver: transaction aborted by caller")
)

// DigestMismatchError is returned when the commit digest computed by the
// driver does not match the digest the ledger returned at commit. The
// transaction's state on the ledger is ambiguous; rerun it.
type DigestMismatchError struct {
	TransactionID string
	ClientDigest  []byte
	ServerDigest  []byte
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("ledgerdriver: transaction %s: commit digest returned by the ledger did not match the computed digest; please retry with a new transaction", e.TransactionID)
}

// StartTransactionError wraps the last transport error after every retry of
// the StartTransaction command failed.
type StartTransactionError struct {
	Err error
}

func (e *StartTransactionError) Error() string {
	return fmt.Sprintf("ledgerdriver: failed to start transaction: %v", e.Err)
}

func (e *StartTransactionError) Unwrap() error {
	return e.Err
}

// txnError associates a failure inside the execute loop with the transaction
// it occurred in. startFailed marks failures of the StartTransaction command,
// which the retry engine treats differently from statement failures.
type txnError struct {
	transactionID string
	message       string
	err           error
	startFailed   bool
}

func (e *txnError) Error() string {
	msg := e.message
	if e.transactionID != "" {
		msg = fmt.Sprintf("%s: %s", e.transactionID, msg)
	}
	if e.err != nil {
		msg = fmt.Sprintf("%s\ncaused by: %v", msg, e.err)
	}
	return msg
}

func (e *txnError) Unwrap() error {
	return e.err
}

// The session service has no structured signal for transaction expiry; it
// arrives as an InvalidSessionException whose message names the transaction.
var txnExpiredPattern = regexp.MustCompile(`Transaction\s.*\shas\sexpired`)

// IsOccConflict reports whether err is the ledger's signal that another
// transaction committed while touching overlapping data. Such transactions
// are safe to rerun.
func IsOccConflict(err error) bool {
	var occ *types.OccConflictException
	return errors.As(err, &occ)
}

// IsInvalidSession reports whether err indicates the session token is no
// longer valid on the ledger.
func IsInvalidSession(err error) bool {
	var ise *types.InvalidSessionException
	return errors.As(err, &ise)
}

// IsTransactionExpired reports whether err is the invalid-session variant
// declaring that the open transaction outlived its server-side lifetime.
func IsTransactionExpired(err error) bool {
	var ise *types.InvalidSessionException
	if errors.As(err, &ise) {
		return txnExpiredPattern.MatchString(ise.ErrorMessage())
	}
	return false
}

// IsBadRequest reports whether err indicates the ledger rejected a command
// as malformed or inapplicable to the session's current state.
func IsBadRequest(err error) bool {
	var bad *types.BadRequestException
	if errors.As(err, &bad) {
		return true
	}
	return hasErrorCode(err, "BadRequestException")
}

// IsResourceNotFound reports whether err indicates the addressed ledger
// resource does not exist.
func IsResourceNotFound(err error) bool {
	return hasErrorCode(err, "ResourceNotFoundException")
}

// IsResourcePreconditionNotMet reports whether err indicates a precondition
// on the addressed resource was not satisfied.
func IsResourcePreconditionNotMet(err error) bool {
	return hasErrorCode(err, "ResourcePreconditionNotMetException")
}

// IsInvalidParameter reports whether err indicates a request parameter was
// rejected by the ledger.
func IsInvalidParameter(err error) bool {
	return hasErrorCode(err, "InvalidParameterException")
}

func hasErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == code
}

// isRetriableServerError reports whether err belongs to the generic
// retriable class: throttling, capacity pressure, or a 500/503 response.
func isRetriableServerError(err error) bool {
	var capacity *types.CapacityExceededException
	if errors.As(err, &capacity) {
		return true
	}
	var rate *types.RateExceededException
	if errors.As(err, &rate) {
		return true
	}
	var limit *types.LimitExceededException
	if errors.As(err, &limit) {
		return true
	}
	var responseError *awshttp.ResponseError
	if errors.As(err, &responseError) {
		status := responseError.HTTPStatusCode()
		return status == http.StatusInternalServerError || status == http.StatusServiceUnavailable
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorFault() == smithy.FaultServer
	}
	return false
}
