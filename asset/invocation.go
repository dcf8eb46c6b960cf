package asset

import (
	"fmt"
	"time"

	"github.com/keepsake-xyz/keepsake/commitment"
	"github.com/keepsake-xyz/keepsake/ledger"
)

// InvocationCount returns the number of invocations made so far.
// Invocation IDs run from 1 to this count.
func (a *Asset) InvocationCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint64(len(a.invocations))
}

// InvocationByID returns a recorded invocation.
func (a *Asset) InvocationByID(id uint64) (Invocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id == 0 || id > uint64(len(a.invocations)) {
		return Invocation{}, fmt.Errorf("%w: %d", ErrInvocationNotFound, id)
	}
	return a.invocations[id-1], nil
}

// ResponseByID returns the response to an invocation, if any.
func (a *Asset) ResponseByID(id uint64) (Response, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.responses[id]
	return r, ok
}

// ResponseFlagged reports whether the response to an invocation has
// been flagged.
func (a *Asset) ResponseFlagged(id uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flagged[id]
}

// FlaggedResponseCount returns the total number of flagged responses.
// Informational only; nothing in the state machine reads it.
func (a *Asset) FlaggedResponseCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flaggedCount
}

// CooldownExpiry returns the earliest time the keeper may invoke.
func (a *Asset) CooldownExpiry() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastInvocationTime.IsZero() {
		return time.Time{}
	}
	return a.lastInvocationTime.Add(a.cooldown)
}

// Invoke records a keeper's committed question. Keeper-only, solvent
// only, and gated by the cooldown: the invocation at exactly
// lastInvocationTime+cooldown succeeds, one second earlier fails.
func (a *Asset) Invoke(caller ledger.Address, contentHash commitment.Hash) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.invokeLocked(caller, contentHash)
}

// InvokeWithCleartext hashes a cleartext question (length-capped) and
// records the commitment.
func (a *Asset) InvokeWithCleartext(caller ledger.Address, cleartext string) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(cleartext); n > a.cleartextMaximumLength {
		return 0, fmt.Errorf("%w: %d > %d", ErrCleartextTooLong, n, a.cleartextMaximumLength)
	}
	return a.invokeLocked(caller, commitment.HashCleartext(cleartext))
}

func (a *Asset) invokeLocked(caller ledger.Address, contentHash commitment.Hash) (uint64, error) {
	now := a.clock.Now()

	if caller != a.holder || a.holder == ledger.Nobody {
		return 0, fmt.Errorf("%w: %s", ErrNotKeeper, caller)
	}
	if !a.solventLocked(now) {
		return 0, ErrKeeperInsolvent
	}
	if !a.lastInvocationTime.IsZero() {
		ready := a.lastInvocationTime.Add(a.cooldown)
		if now.Before(ready) {
			return 0, fmt.Errorf("%w: ready at %s", ErrCooldownActive, ready)
		}
	}

	id := uint64(len(a.invocations)) + 1
	a.invocations = append(a.invocations, Invocation{
		ID:          id,
		Invoker:     caller,
		ContentHash: contentHash,
		Timestamp:   now,
	})
	a.lastInvocationTime = now
	a.emit(now, EventInvocation, map[string]any{
		"id":          id,
		"invoker":     string(caller),
		"contentHash": contentHash.Hex(),
	})
	return id, nil
}

// Respond records the creator's committed answer to an invocation. At
// most one response per invocation, immutable once written. There is
// no deadline; the creator may respond arbitrarily late.
func (a *Asset) Respond(caller ledger.Address, invocationID uint64, contentHash commitment.Hash) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()

	if caller != a.creator {
		return fmt.Errorf("%w: %s", ErrNotCreator, caller)
	}
	if invocationID == 0 || invocationID > uint64(len(a.invocations)) {
		return fmt.Errorf("%w: %d", ErrInvocationNotFound, invocationID)
	}
	if _, ok := a.responses[invocationID]; ok {
		return fmt.Errorf("%w: invocation %d", ErrResponseExists, invocationID)
	}

	a.responses[invocationID] = Response{ContentHash: contentHash, Timestamp: now}
	a.emit(now, EventResponse, map[string]any{
		"id":          invocationID,
		"contentHash": contentHash.Hex(),
	})
	return nil
}

// FlagResponse marks a response as unacceptable. Only the keeper the
// response was addressed to may flag it: a keeper who received the
// asset after the response was recorded cannot flag a previous
// keeper's answer. The flag must land within the flagging period and
// can only be set once.
func (a *Asset) FlagResponse(caller ledger.Address, invocationID uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()

	if caller != a.holder || a.holder == ledger.Nobody {
		return fmt.Errorf("%w: %s", ErrNotKeeper, caller)
	}
	if !a.solventLocked(now) {
		return ErrKeeperInsolvent
	}
	response, ok := a.responses[invocationID]
	if !ok {
		return fmt.Errorf("%w: invocation %d", ErrResponseNotFound, invocationID)
	}
	if deadline := response.Timestamp.Add(a.flaggingPeriod); !now.Before(deadline) {
		return fmt.Errorf("%w: deadline was %s", ErrFlaggingPeriodOver, deadline)
	}
	if !a.keeperReceiveTime.Before(response.Timestamp) {
		return fmt.Errorf("%w: received %s, responded %s",
			ErrResponseNotToKeeper, a.keeperReceiveTime, response.Timestamp)
	}
	if a.flagged[invocationID] {
		return fmt.Errorf("%w: invocation %d", ErrResponseAlreadyFlagged, invocationID)
	}

	a.flagged[invocationID] = true
	a.flaggedCount++
	a.emit(now, EventResponseFlagging, map[string]any{
		"id":     invocationID,
		"keeper": string(caller),
	})
	return nil
}
