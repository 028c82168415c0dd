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
	"bytes"
	"context"
	"sync"

	"github.com/amzn/ion-go/ion"
	"github.com/aws/aws-sdk-go-v2/service/qldbsession/types"
)

// Transaction is the handle a transaction function receives. It is only
// valid for the duration of that function.
type Transaction interface {
	// Execute a statement with any parameters within this transaction,
	// returning a streaming Result bound to the transaction.
	Execute(statement string, parameters ...interface{}) (*Result, error)
	// BufferResult reads a Result to completion into a BufferedResult that
	// remains usable outside the transaction.
	BufferResult(result *Result) (*BufferedResult, error)
	// Abort returns the ErrAbort sentinel. Return it from the transaction
	// function to abandon the transaction without committing.
	Abort() error
	// ID returns the server-assigned transaction id.
	ID() string
}

// transaction owns one in-flight transaction on a session. The mutex
// serializes execute, commit and abort so that concurrent Execute calls
// from within one transaction function fold into the commit digest in a
// single well-defined order.
type transaction struct {
	mu           sync.Mutex
	communicator ledgerService
	id           *string
	logger       *driverLogger
	commitHash   *ledgerHash
	done         bool
}

func (txn *transaction) execute(ctx context.Context, statement string, parameters ...interface{}) (*Result, error) {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if txn.done {
		return nil, ErrTxnDone
	}

	statementHash, err := hashValue(statement)
	if err != nil {
		return nil, &txnError{transactionID: txn.ID(), message: "failed to hash statement", err: err}
	}
	valueHolders := make([]types.ValueHolder, len(parameters))
	for i, parameter := range parameters {
		parameterHash, err := hashValue(parameter)
		if err != nil {
			return nil, &txnError{transactionID: txn.ID(), message: "failed to serialize parameter", err: err}
		}
		statementHash = statementHash.dot(parameterHash)

		// hashValue has already proven the value marshals.
		ionBinary, _ := ion.MarshalBinary(parameter)
		valueHolders[i] = types.ValueHolder{IonBinary: ionBinary}
	}
	// The statement hash is complete before the transaction digest moves;
	// a serialization failure above leaves the digest untouched.
	txn.commitHash = txn.commitHash.dot(statementHash)

	executeResult, err := txn.communicator.executeStatement(ctx, &statement, valueHolders, txn.id)
	if err != nil {
		return nil, err
	}

	return &Result{
		ctx:          ctx,
		communicator: txn.communicator,
		txnID:        txn.id,
		pageValues:   executeResult.FirstPage.Values,
		pageToken:    executeResult.FirstPage.NextPageToken,
		logger:       txn.logger,
		metrics:      newMetrics(executeResult.ConsumedIOs, executeResult.TimingInformation),
	}, nil
}

func (txn *transaction) commit(ctx context.Context) error {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if txn.done {
		return ErrTxnDone
	}

	commitResult, err := txn.communicator.commitTransaction(ctx, txn.id, txn.commitHash.hash)
	if err != nil {
		return err
	}
	txn.done = true

	if !bytes.Equal(commitResult.CommitDigest, txn.commitHash.hash) {
		return &DigestMismatchError{
			TransactionID: txn.ID(),
			ClientDigest:  txn.commitHash.hash,
			ServerDigest:  commitResult.CommitDigest,
		}
	}
	return nil
}

// abort ends the transaction best-effort. It is a no-op once the
// transaction is terminal; a failed server abort is logged, not raised,
// so it can never mask the error that led here.
func (txn *transaction) abort(ctx context.Context) {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if txn.done {
		return
	}
	txn.done = true
	if _, err := txn.communicator.abortTransaction(ctx); err != nil {
		txn.logger.logf(LogDebug, "Failed to abort the transaction. Caused by '%v'", err)
	}
}

func (txn *transaction) ID() string {
	if txn.id == nil {
		return ""
	}
	return *txn.id
}

// transactionExecutor hands the transaction to the user's function with the
// function's context attached.
type transactionExecutor struct {
	ctx context.Context
	txn *transaction
}

// Execute a statement with any parameters within this transaction.
func (executor *transactionExecutor) Execute(statement string, parameters ...interface{}) (*Result, error) {
	return executor.txn.execute(executor.ctx, statement, parameters...)
}

// BufferResult reads result to completion so it can be used outside the
// transaction function.
func (executor *transactionExecutor) BufferResult(result *Result) (*BufferedResult, error) {
	values := make([][]byte, 0)
	for result.Next(executor) {
		values = append(values, result.GetCurrentData())
	}
	if result.Err() != nil {
		return nil, result.Err()
	}
	return &BufferedResult{values: values, metrics: result.metrics}, nil
}

// Abort returns the ErrAbort sentinel recognized by the driver's retry
// engine; the transaction is aborted server-side once the function returns.
func (executor *transactionExecutor) Abort() error {
	return ErrAbort
}

// ID returns the server-assigned transaction id.
func (executor *transactionExecutor) ID() string {
	return executor.txn.ID()
}
