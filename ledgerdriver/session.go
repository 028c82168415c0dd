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
)

// session wraps one server session token. At most one transaction is in
// flight on a session at any time; the pool guarantees exclusive leases.
type session struct {
	communicator ledgerService
	logger       *driverLogger
}

func (s *session) endSession(ctx context.Context) error {
	_, err := s.communicator.endSession(ctx)
	return err
}

func (s *session) startTransaction(ctx context.Context) (*transaction, error) {
	result, err := s.communicator.startTransaction(ctx)
	if err != nil {
		return nil, err
	}
	txnHash, err := hashValue(*result.TransactionId)
	if err != nil {
		return nil, err
	}
	return &transaction{
		communicator: s.communicator,
		id:           result.TransactionId,
		logger:       s.logger,
		commitHash:   txnHash,
	}, nil
}

// execute runs exactly one attempt of the transaction function: start the
// transaction, invoke fn, commit. Failures come back as a *txnError carrying
// the transaction id and whether StartTransaction itself was what failed;
// the retry engine decides what happens next. The server-side transaction is
// aborted best-effort on every failure path where it might still be open.
func (s *session) execute(ctx context.Context, fn func(txn Transaction) (interface{}, error)) (interface{}, *txnError) {
	txn, err := s.startTransaction(ctx)
	if err != nil {
		return nil, &txnError{message: "failed to start transaction", err: err, startFailed: true}
	}

	result, err := fn(&transactionExecutor{ctx, txn})
	if err != nil {
		if errors.Is(err, ErrAbort) {
			txn.abort(ctx)
			return nil, &txnError{transactionID: txn.ID(), message: "transaction aborted", err: err}
		}
		s.cleanupFailedTxn(ctx, txn, err)
		return nil, &txnError{transactionID: txn.ID(), message: "transaction function failed", err: err}
	}

	if err := txn.commit(ctx); err != nil {
		s.cleanupFailedTxn(ctx, txn, err)
		return nil, &txnError{transactionID: txn.ID(), message: "failed to commit", err: err}
	}

	return result, nil
}

// cleanupFailedTxn aborts the server-side transaction unless the failure
// already implies it is gone: an invalid session has no transaction to
// abort, and an OCC conflict means the server closed it at commit.
func (s *session) cleanupFailedTxn(ctx context.Context, txn *transaction, cause error) {
	if IsInvalidSession(cause) || IsOccConflict(cause) {
		return
	}
	txn.abort(ctx)
}
