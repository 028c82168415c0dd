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
	"math"
	"math/rand"
	"time"
)

const (
	defaultRetryLimit = 4
	defaultSleepBase  = 10 * time.Millisecond
	defaultSleepCap   = 5000 * time.Millisecond
)

// RetryPolicyContext contains the state of the retry loop passed to a
// backoff strategy.
type RetryPolicyContext struct {
	RetryAttempted int
	RetriedError   error
	TransactionID  string
}

// BackoffStrategy computes the delay before the next attempt.
type BackoffStrategy interface {
	Delay(ctx RetryPolicyContext) time.Duration
}

// RetryPolicy bounds how often and how eagerly a transaction is rerun.
type RetryPolicy struct {
	MaxRetryLimit int
	Backoff       BackoffStrategy
}

func defaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetryLimit: defaultRetryLimit,
		Backoff:       ExponentialBackoffStrategy{SleepBase: defaultSleepBase, SleepCap: defaultSleepCap},
	}
}

// ExponentialBackoffStrategy is the default backoff implementation: the
// base delay doubles with every attempt up to the cap, and the result is
// scaled by a random factor in [1, 2).
type ExponentialBackoffStrategy struct {
	SleepBase time.Duration
	SleepCap  time.Duration
}

// Delay implements BackoffStrategy.
func (s ExponentialBackoffStrategy) Delay(ctx RetryPolicyContext) time.Duration {
	attempt := ctx.RetryAttempted
	if attempt < 1 {
		attempt = 1
	}
	exponential := float64(s.SleepBase) * math.Pow(2, float64(attempt-1))
	capped := math.Min(float64(s.SleepCap), exponential)
	jitter := 1 + rand.Float64()
	return time.Duration(capped * jitter)
}

// classification is the retry engine's verdict on one failed attempt.
// retry false means the error surfaces to the caller. replaceSession means
// the session that produced the failure is dead and must be swapped for a
// fresh one before the next attempt.
type classification struct {
	retry          bool
	replaceSession bool
	backoff        bool
}

// classify maps a failed attempt to the engine's next action. startFailed
// marks failures of the StartTransaction command, where a rejected request
// is worth retrying; anywhere else a bad request is the caller's bug and
// surfaces immediately.
func classify(err error, startFailed bool) classification {
	switch {
	case errors.Is(err, ErrAbort):
		return classification{}
	case IsTransactionExpired(err):
		return classification{}
	case IsInvalidSession(err):
		return classification{retry: true, replaceSession: true, backoff: true}
	case IsOccConflict(err):
		return classification{retry: true, backoff: true}
	case isRetriableServerError(err):
		return classification{retry: true, backoff: true}
	case startFailed && IsBadRequest(err):
		return classification{retry: true, backoff: true}
	}
	return classification{}
}
