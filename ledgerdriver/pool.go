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
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

type releaseMode int

const (
	// releaseReturn puts the session back on the idle stack for reuse.
	releaseReturn releaseMode = iota
	// releaseDiscard ends the session; used for dead sessions and closed pools.
	releaseDiscard
)

// sessionPool is a bounded reservoir of ledger sessions. The semaphore gates
// the number of leases; the idle stack holds released sessions for reuse,
// most recently used first. leased + idle never exceeds the capacity: idle
// only grows when a lease is given back.
type sessionPool struct {
	mu     sync.Mutex
	idle   []*session
	closed bool

	sem            *semaphore.Weighted
	acquireTimeout time.Duration
	newSession     func(ctx context.Context) (*session, error)
	logger         *driverLogger
}

func newSessionPool(capacity int, acquireTimeout time.Duration, newSession func(ctx context.Context) (*session, error), logger *driverLogger) *sessionPool {
	return &sessionPool{
		idle:           make([]*session, 0, capacity),
		sem:            semaphore.NewWeighted(int64(capacity)),
		acquireTimeout: acquireTimeout,
		newSession:     newSession,
		logger:         logger,
	}
}

// acquire returns an exclusively leased session, reusing the most recently
// released idle session when one exists and starting a new one otherwise.
// It blocks up to the pool's acquire timeout for a lease to free up.
func (p *sessionPool) acquire(ctx context.Context) (*session, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrDriverClosed
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrPoolEmpty
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrDriverClosed
	}
	if n := len(p.idle); n > 0 {
		sess := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		p.logger.logf(LogDebug, "Reusing session from pool")
		return sess, nil
	}
	p.mu.Unlock()

	sess, err := p.newSession(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return sess, nil
}

// release gives a leased session back. Discarded sessions, and any session
// released after the pool closed, are ended in the background; end-session
// failures are logged and swallowed.
func (p *sessionPool) release(sess *session, mode releaseMode) {
	p.mu.Lock()
	discard := p.closed || mode == releaseDiscard
	if !discard {
		p.idle = append(p.idle, sess)
	}
	p.mu.Unlock()
	p.sem.Release(1)

	if discard {
		go p.end(context.Background(), sess)
	}
}

// replace ends a dead session and starts a fresh one under the same lease.
// On failure the lease is released and the caller must not use the dead
// session again.
func (p *sessionPool) replace(ctx context.Context, dead *session) (*session, error) {
	go p.end(context.Background(), dead)

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.sem.Release(1)
		return nil, ErrDriverClosed
	}

	sess, err := p.newSession(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return sess, nil
}

// close marks the pool closed and drains the idle stack. Sessions still
// leased are ended when their holders release them.
func (p *sessionPool) close(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, sess := range idle {
		p.end(ctx, sess)
	}
}

func (p *sessionPool) end(ctx context.Context, sess *session) {
	if err := sess.endSession(ctx); err != nil {
		p.logger.logf(LogDebug, "Encountered error trying to end session: %v", err)
	}
}
