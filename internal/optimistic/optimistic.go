// Package optimistic applies writes to the cache before the server confirms
// them and reconciles or rolls back once it answers.
//
// A mutation runs in three steps:
//
//  1. Begin: every target key is snapshotted, patched with the pending write
//     and pinned, all in one cache transaction.
//  2. Dispatch: the network call runs in its own goroutine on a context that
//     the caller cannot cancel.
//  3. Settle: on success each key's Commit swaps the temporary entity for the
//     confirmed one; on failure each key is restored to its snapshot if nothing
//     else wrote it since, and otherwise has only this mutation's contribution
//     removed through Revert.
//
// Keys that were absent when the mutation began are not patched. They are
// invalidated on settle so the next read goes to the server.
package optimistic

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/colthorp/nutrisync-cli-go/internal/cache"
	"github.com/colthorp/nutrisync-cli-go/internal/core"
)

// TempPrefix starts every locally generated id.
const TempPrefix = "temp-"

// NewTempID returns temp-<unixMillis>-<8 hex>.
func NewTempID(now time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("%s%d-%s", TempPrefix, now.UnixMilli(), hex.EncodeToString(u[:4]))
}

// IsTempID reports whether id was generated locally.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempPrefix)
}

// Status of a mutation.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// KeyOp describes how one cache key reacts to a mutation. Any func may be nil.
type KeyOp[R any] struct {
	Key cache.Key
	// Apply adds the pending write to the current value.
	Apply func(cur any, tempID string) any
	// Commit replaces the pending write with the confirmed result.
	Commit func(cur any, tempID string, result R) any
	// Revert removes only this mutation's contribution.
	Revert func(cur any, tempID string) any
}

// Plan is one optimistic write.
type Plan[R any] struct {
	Op    string
	Input any
	Keys  []KeyOp[R]
	// Send performs the server call.
	Send func(ctx context.Context, tempID string) (R, error)
	// Invalidate lists extra keys to mark stale once the mutation settles.
	Invalidate []cache.Key
	// Hooks run after the cache settles and before Wait returns.
	OnSuccess func(result R)
	OnError   func(err *Error)
}

// Error is returned by a failed mutation after its rollback. Input is the
// original request so callers can offer a retry.
type Error struct {
	Op     string
	TempID string
	Input  any
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.TempID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the request could succeed. Errors that
// carry their own verdict are asked; validation failures never are.
func (e *Error) Retryable() bool {
	if core.IsValidation(e.Err) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(e.Err, &r) {
		return r.Retryable()
	}
	return true
}

// PendingMutation is the bookkeeping record of an in-flight write.
type PendingMutation struct {
	TempID    string      `json:"tempId"`
	Op        string      `json:"op"`
	Keys      []cache.Key `json:"-"`
	Input     any         `json:"input"`
	Status    Status      `json:"status"`
	StartedAt time.Time   `json:"startedAt"`
}

// Coordinator runs mutations against one cache.
type Coordinator struct {
	cache *cache.Cache
	log   zerolog.Logger
	now   func() time.Time

	mu       sync.Mutex
	pending  map[string]*PendingMutation
	inflight sync.WaitGroup
}

// NewCoordinator creates a coordinator for c.
func NewCoordinator(c *cache.Cache) *Coordinator {
	return &Coordinator{
		cache:   c,
		log:     log.Logger.With().Str("component", "optimistic").Logger(),
		now:     time.Now,
		pending: make(map[string]*PendingMutation),
	}
}

// WithLogger replaces the logger.
func (c *Coordinator) WithLogger(l zerolog.Logger) *Coordinator {
	c.log = l
	return c
}

// Cache returns the underlying cache.
func (c *Coordinator) Cache() *cache.Cache { return c.cache }

// Pending lists in-flight mutations, oldest first.
func (c *Coordinator) Pending() []PendingMutation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PendingMutation, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Wait blocks until every mutation started so far has settled.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

// Mutation is the handle of a running write.
type Mutation[R any] struct {
	TempID string

	done   chan struct{}
	mu     sync.Mutex
	status Status
	result R
	err    *Error
}

// Handle is the result-type-erased view of a Mutation.
type Handle interface {
	ID() string
	Status() Status
	Done() <-chan struct{}
	Err() error
}

// ID returns the temporary id.
func (m *Mutation[R]) ID() string { return m.TempID }

// Err returns the failure once settled, nil otherwise.
func (m *Mutation[R]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err == nil {
		return nil
	}
	return m.err
}

// Status returns the current status.
func (m *Mutation[R]) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Done is closed once the mutation has settled and the cache reflects it.
func (m *Mutation[R]) Done() <-chan struct{} { return m.done }

// Wait blocks until the mutation settles or ctx ends. A failed mutation
// returns an *Error.
func (m *Mutation[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	case <-m.done:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.result, m.err
	}
	return m.result, nil
}

// Run starts plan. It returns as soon as the optimistic state is in the cache.
func Run[R any](ctx context.Context, c *Coordinator, plan Plan[R]) *Mutation[R] {
	tempID := NewTempID(c.now())
	m := &Mutation[R]{TempID: tempID, done: make(chan struct{}), status: StatusPending}

	applied := make(map[string]bool, len(plan.Keys))
	snaps := make(map[string]cache.State, len(plan.Keys))
	versions := make(map[string]uint64, len(plan.Keys))

	c.cache.Update(func(tx *cache.Tx) {
		for _, op := range plan.Keys {
			h := op.Key.Hash()
			st := tx.Peek(op.Key)
			if _, seen := snaps[h]; !seen {
				snaps[h] = st
			}
			tx.Pin(op.Key)
			if st.Present && op.Apply != nil {
				apply := op.Apply
				tx.Patch(op.Key, func(cur any) any { return apply(cur, tempID) })
				applied[h] = true
			}
		}
		for _, op := range plan.Keys {
			versions[op.Key.Hash()] = tx.Version(op.Key)
		}
	})

	keys := make([]cache.Key, len(plan.Keys))
	for i, op := range plan.Keys {
		keys[i] = op.Key
	}
	c.mu.Lock()
	c.pending[tempID] = &PendingMutation{
		TempID:    tempID,
		Op:        plan.Op,
		Keys:      keys,
		Input:     plan.Input,
		Status:    StatusPending,
		StartedAt: c.now(),
	}
	c.mu.Unlock()

	c.log.Debug().Str("op", plan.Op).Str("tempId", tempID).Int("keys", len(keys)).Msg("optimistic apply")

	sendCtx := context.WithoutCancel(ctx)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		result, err := plan.Send(sendCtx, tempID)
		if err != nil {
			rollback(c, plan, tempID, applied, snaps, versions)
			merr := &Error{Op: plan.Op, TempID: tempID, Input: plan.Input, Err: err}
			c.log.Warn().Err(err).Str("op", plan.Op).Str("tempId", tempID).Bool("retryable", merr.Retryable()).Msg("mutation rolled back")
			if plan.OnError != nil {
				plan.OnError(merr)
			}
			settle(c, m, StatusError, result, merr)
			return
		}

		commit(c, plan, tempID, result, applied)
		c.log.Debug().Str("op", plan.Op).Str("tempId", tempID).Msg("mutation committed")
		if plan.OnSuccess != nil {
			plan.OnSuccess(result)
		}
		settle(c, m, StatusSuccess, result, nil)
	}()

	return m
}

func commit[R any](c *Coordinator, plan Plan[R], tempID string, result R, applied map[string]bool) {
	c.cache.Update(func(tx *cache.Tx) {
		for _, op := range plan.Keys {
			switch {
			case !applied[op.Key.Hash()]:
				tx.Invalidate(op.Key)
			case op.Commit != nil:
				fn := op.Commit
				tx.Patch(op.Key, func(cur any) any { return fn(cur, tempID, result) })
			}
			tx.Unpin(op.Key)
		}
		for _, k := range plan.Invalidate {
			tx.Invalidate(k)
		}
	})
}

// rollback walks the keys in reverse. A key whose version is still the one our
// apply produced gets its snapshot back; a key someone else wrote since only
// loses this mutation's contribution.
func rollback[R any](c *Coordinator, plan Plan[R], tempID string, applied map[string]bool, snaps map[string]cache.State, versions map[string]uint64) {
	c.cache.Update(func(tx *cache.Tx) {
		done := make(map[string]bool, len(plan.Keys))
		for i := len(plan.Keys) - 1; i >= 0; i-- {
			op := plan.Keys[i]
			h := op.Key.Hash()
			if applied[h] && !done[h] {
				if tx.Version(op.Key) == versions[h] {
					tx.Restore(op.Key, snaps[h])
					done[h] = true
				} else if op.Revert != nil {
					fn := op.Revert
					tx.Patch(op.Key, func(cur any) any { return fn(cur, tempID) })
				}
			}
			tx.Unpin(op.Key)
		}
		for _, k := range plan.Invalidate {
			tx.Invalidate(k)
		}
	})
}

func settle[R any](c *Coordinator, m *Mutation[R], status Status, result R, err *Error) {
	c.mu.Lock()
	delete(c.pending, m.TempID)
	c.mu.Unlock()

	m.mu.Lock()
	m.status = status
	m.result = result
	m.err = err
	m.mu.Unlock()
	close(m.done)
}
