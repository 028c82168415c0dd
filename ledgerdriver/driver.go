/*
Copyright the ledger-driver-go authors. All Rights Reserved.

Licensed under the Apache License, Version 2.0 (the "License"). You may not use this file except in compliance with
the License. A copy of the License is located at

http://www.apache.org/licenses/LICENSE-2.0

or in the "license" file accompanying this file. This file is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR
CONDITIONS OF ANY KIND, either express or implied. See the License for the specific language governing permissions
and limitations under the License.
*/

// Package ledgerdriver is a client driver for QLDB-compatible managed
// ledgers. Work is submitted as a transaction function; the driver owns the
// session pool, the optimistic-concurrency retry loop and the commit digest
// the ledger verifies at commit.
package ledgerdriver

import (
	"context"
	"errors"
	"time"

	"github.com/amzn/ion-go/ion"
)

const (
	defaultMaxConcurrentTransactions = 50
	defaultAcquireTimeout            = 10 * time.Second
)

// DriverOptions configure the driver during construction.
type DriverOptions struct {
	// RetryPolicy bounds the driver's transparent retries. Defaults to a
	// limit of 4 with exponential backoff.
	RetryPolicy RetryPolicy
	// MaxConcurrentTransactions caps the sessions held concurrently.
	// Defaults to 50; must be at least 1.
	MaxConcurrentTransactions int
	// AcquireTimeout bounds how long Execute blocks waiting for a session
	// when the pool is at capacity. Defaults to 10 seconds.
	AcquireTimeout time.Duration
	// Logger receives the driver's log output. Defaults to the standard
	// library logger.
	Logger Logger
	// LoggerVerbosity sets the logging level. Defaults to LogInfo.
	LoggerVerbosity LogLevel
}

// Driver connects to one ledger and executes transaction functions on it.
type Driver struct {
	ledgerName  string
	service     SessionService
	retryPolicy RetryPolicy
	logger      *driverLogger
	pool        *sessionPool
	isClosed    bool
}

// New creates a Driver for the named ledger on the given transport and
// verifies the options.
func New(ledgerName string, service SessionService, fns ...func(*DriverOptions)) (*Driver, error) {
	options := &DriverOptions{
		RetryPolicy:               defaultRetryPolicy(),
		MaxConcurrentTransactions: defaultMaxConcurrentTransactions,
		AcquireTimeout:            defaultAcquireTimeout,
		Logger:                    defaultLogger{},
		LoggerVerbosity:           LogInfo,
	}
	for _, fn := range fns {
		fn(options)
	}

	if service == nil {
		return nil, errors.New("ledgerdriver: session service must not be nil")
	}
	if options.MaxConcurrentTransactions < 1 {
		return nil, errors.New("ledgerdriver: MaxConcurrentTransactions must be 1 or greater")
	}
	if options.RetryPolicy.MaxRetryLimit < 0 {
		return nil, errors.New("ledgerdriver: MaxRetryLimit must not be negative")
	}
	if options.AcquireTimeout <= 0 {
		options.AcquireTimeout = defaultAcquireTimeout
	}

	driver := &Driver{
		ledgerName:  ledgerName,
		service:     service,
		retryPolicy: options.RetryPolicy,
		logger:      &driverLogger{options.Logger, options.LoggerVerbosity},
	}
	driver.pool = newSessionPool(options.MaxConcurrentTransactions, options.AcquireTimeout, driver.createSession, driver.logger)
	return driver, nil
}

// Execute runs fn inside a ledger transaction under the driver's retry
// policy and returns fn's value once the transaction commits. fn may run
// more than once; it must be free of side effects outside the transaction.
func (driver *Driver) Execute(ctx context.Context, fn func(txn Transaction) (interface{}, error)) (interface{}, error) {
	return driver.ExecuteWithRetryPolicy(ctx, fn, driver.retryPolicy)
}

// ExecuteWithRetryPolicy is Execute with a per-call retry policy.
func (driver *Driver) ExecuteWithRetryPolicy(ctx context.Context, fn func(txn Transaction) (interface{}, error), policy RetryPolicy) (interface{}, error) {
	if driver.isClosed {
		return nil, ErrDriverClosed
	}

	sess, err := driver.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}

	attempt := 0
	retriedInvalidSession := false
	for {
		result, txnErr := sess.execute(ctx, fn)
		if txnErr == nil {
			driver.pool.release(sess, releaseReturn)
			return result, nil
		}

		verdict := classify(txnErr.err, txnErr.startFailed)
		attempt++
		if !verdict.retry || attempt > policy.MaxRetryLimit {
			return nil, driver.surface(sess, txnErr, verdict)
		}

		driver.logger.logf(LogInfo, "A recoverable error occurred; retrying the transaction (attempt %d): %v", attempt, txnErr.err)

		// The first invalid-session replacement retries immediately; the
		// session was simply stale, not the ledger under pressure.
		if verdict.backoff && !(verdict.replaceSession && !retriedInvalidSession) {
			delay := policy.Backoff.Delay(RetryPolicyContext{
				RetryAttempted: attempt,
				RetriedError:   txnErr.err,
				TransactionID:  txnErr.transactionID,
			})
			if delay < 0 {
				delay = 0
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				driver.pool.release(sess, releaseReturn)
				return nil, ctx.Err()
			}
		}

		if verdict.replaceSession {
			retriedInvalidSession = true
			fresh, err := driver.pool.replace(ctx, sess)
			if err != nil {
				return nil, err
			}
			sess = fresh
		}
	}
}

// surface hands the attempt's underlying error back to the caller, giving
// the session back to the pool or discarding it depending on the failure.
func (driver *Driver) surface(sess *session, txnErr *txnError, verdict classification) error {
	mode := releaseReturn
	if IsInvalidSession(txnErr.err) {
		mode = releaseDiscard
	}
	driver.pool.release(sess, mode)

	if txnErr.startFailed && verdict.retry {
		return &StartTransactionError{Err: txnErr.err}
	}
	return txnErr.err
}

// GetTableNames returns the list of active tables in the ledger.
func (driver *Driver) GetTableNames(ctx context.Context) ([]string, error) {
	const tableNameQuery = "SELECT name FROM information_schema.user_tables WHERE status = 'ACTIVE'"
	type tableName struct {
		Name string `ion:"name"`
	}

	executeResult, err := driver.Execute(ctx, func(txn Transaction) (interface{}, error) {
		result, err := txn.Execute(tableNameQuery)
		if err != nil {
			return nil, err
		}
		tableNames := make([]string, 0)
		for result.Next(txn) {
			name := new(tableName)
			if err := ion.Unmarshal(result.GetCurrentData(), name); err != nil {
				return nil, err
			}
			tableNames = append(tableNames, name.Name)
		}
		if result.Err() != nil {
			return nil, result.Err()
		}
		return tableNames, nil
	})
	if err != nil {
		return nil, err
	}
	return executeResult.([]string), nil
}

// Close closes the driver. Idle sessions are ended; all future calls fail
// with ErrDriverClosed.
func (driver *Driver) Close(ctx context.Context) {
	if driver.isClosed {
		return
	}
	driver.isClosed = true
	driver.pool.close(ctx)
}

func (driver *Driver) createSession(ctx context.Context) (*session, error) {
	driver.logger.logf(LogDebug, "Creating a new session")
	communicator, err := startSession(ctx, driver.ledgerName, driver.service, driver.logger)
	if err != nil {
		return nil, err
	}
	return &session{communicator, driver.logger}, nil
}
