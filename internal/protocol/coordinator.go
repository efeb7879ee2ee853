package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warpspeed/portal/internal/apierr"
	"github.com/warpspeed/portal/internal/interfaces"
	"github.com/warpspeed/portal/internal/logging"
)

// Validator checks whether a credential is still accepted by the API
type Validator interface {
	Validate(ctx context.Context, token string) error
}

// ValidatorFunc adapts a function to the Validator interface
type ValidatorFunc func(ctx context.Context, token string) error

// Validate calls f
func (f ValidatorFunc) Validate(ctx context.Context, token string) error {
	return f(ctx, token)
}

// InvalidationHandler is notified once per failed recovery, after the session
// store has been cleared
type InvalidationHandler func(err error)

type recoveryResult struct {
	token string
	err   error
}

// Coordinator serializes session recovery across every client that shares it.
// The first caller to observe an unauthorized response becomes the leader and
// validates the stored credential; callers arriving while that is in flight
// queue up and receive the leader's outcome in arrival order.
type Coordinator struct {
	store        interfaces.SessionStore
	validator    Validator
	timeout      time.Duration
	onInvalidate InvalidationHandler
	logger       *logging.Logger

	mutex      sync.Mutex
	refreshing bool
	waiters    []chan recoveryResult
	stats      RecoveryStatistics
}

// NewCoordinator creates a coordinator over store. Validation calls are bounded
// by timeout; onInvalidate may be nil.
func NewCoordinator(store interfaces.SessionStore, validator Validator, timeout time.Duration, onInvalidate InvalidationHandler) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if validator == nil {
		return nil, fmt.Errorf("validator cannot be nil")
	}
	if timeout <= 0 {
		timeout = StandardTimeout
	}

	return &Coordinator{
		store:        store,
		validator:    validator,
		timeout:      timeout,
		onInvalidate: onInvalidate,
		logger:       logging.GetProtocolLogger().WithComponent("coordinator"),
	}, nil
}

// SetInvalidationHandler replaces the handler invoked when recovery fails
func (c *Coordinator) SetInvalidationHandler(handler InvalidationHandler) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onInvalidate = handler
}

// Recover revalidates the stored credential, or waits for the recovery already
// in flight. It returns the credential to replay with, or an
// *apierr.UnauthorizedError shared by every caller of the same cycle.
func (c *Coordinator) Recover(ctx context.Context) (string, error) {
	c.mutex.Lock()
	if c.refreshing {
		ch := make(chan recoveryResult, 1)
		c.waiters = append(c.waiters, ch)
		c.stats.WaitersQueued++
		c.mutex.Unlock()

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			// The buffered channel still receives the release, so the drain never blocks
			return "", apierr.Classify(apierr.Outcome{Err: ctx.Err()})
		}
	}

	c.refreshing = true
	c.stats.Attempts++
	c.mutex.Unlock()

	return c.lead(ctx)
}

// lead performs the single validation of this cycle and releases the queue
func (c *Coordinator) lead(ctx context.Context) (string, error) {
	start := time.Now()
	logger := c.logger.WithContext(ctx)

	token, err := c.validate(ctx)
	if err != nil {
		if clearErr := c.store.Clear(); clearErr != nil {
			logger.Error("Failed to clear session after recovery failure", "error", clearErr)
		}
		token = ""
	}

	waiters, handler := c.conclude(err == nil)
	for _, ch := range waiters {
		ch <- recoveryResult{token: token, err: err}
	}

	outcome := "recovered"
	if err != nil {
		outcome = "invalidated"
	}
	logger.LogRecovery(outcome, len(waiters), time.Since(start))

	if err != nil && handler != nil {
		handler(err)
	}
	return token, err
}

func (c *Coordinator) validate(ctx context.Context) (string, error) {
	token, ok := c.store.Get()
	if !ok {
		// Queued waiters get this same error rather than "Session expired", so
		// every caller of a cycle fails with one UnauthorizedError
		return "", apierr.NewUnauthorizedError(apierr.MsgNoToken)
	}

	// Waiters depend on this call, so the leader's cancellation does not abort it
	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	if err := c.validator.Validate(vctx, token); err != nil {
		c.logger.WithContext(ctx).Warn("Credential validation failed", "error", err)
		return "", apierr.NewUnauthorizedError(apierr.MsgSessionExpired)
	}
	return token, nil
}

// conclude drains the queue and clears the flag in one critical section
func (c *Coordinator) conclude(success bool) ([]chan recoveryResult, InvalidationHandler) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false

	if success {
		c.stats.Successes++
	} else {
		c.stats.Failures++
	}
	c.stats.LastRecovery = time.Now()

	return waiters, c.onInvalidate
}

// Refreshing reports whether a recovery is in flight
func (c *Coordinator) Refreshing() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.refreshing
}

// Pending returns the number of queued waiters
func (c *Coordinator) Pending() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.waiters)
}

// Stats returns a snapshot of recovery counters
func (c *Coordinator) Stats() RecoveryStatistics {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.stats
}
