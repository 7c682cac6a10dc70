// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package consent holds the user's collection authorization and gates
// every collector behind it.
//
// The Gate is the consent record's only writer. All other components
// read through HasConsent. Consent UI is decoupled from the decision
// logic: RequestConsent delegates the prompt to an injected Prompter,
// independent of any presentation modality.
package consent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Purpose is the enumerated scope a consent grant applies to.
type Purpose string

const (
	// PurposeCreditScoring covers signal collection for credit assessment.
	PurposeCreditScoring Purpose = "credit_scoring"

	// PurposeFraudPrevention covers collection for fraud checks only.
	PurposeFraudPrevention Purpose = "fraud_prevention"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeCreditScoring || p == PurposeFraudPrevention
}

// Record is the persisted consent decision. Mutated only through
// RequestConsent and Revoke.
type Record struct {
	// Granted is the current authorization state.
	Granted bool `json:"granted"`

	// Scope is the purpose the grant applies to.
	Scope Purpose `json:"scope"`

	// GrantedAt is when consent was granted (Unix milliseconds UTC).
	GrantedAt int64 `json:"granted_at"`

	// RevokedAt is when consent was revoked, zero while granted.
	RevokedAt int64 `json:"revoked_at,omitempty"`
}

// recordKey is the KV slot the consent record persists under.
const recordKey = "consent/record"

// Prompter presents a consent explanation and returns the decision.
// Implementations may be a dialog, a page, or a native prompt; the gate
// does not care.
type Prompter interface {
	Prompt(ctx context.Context, purpose Purpose, explanation string) (bool, error)
}

// Store is the persistence surface the gate needs: a key-value store
// over JSON-serializable values. Satisfied by store.BadgerKV.
type Store interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
}

// Request carries one consent prompt.
type Request struct {
	// Purpose is the scope being requested. Required.
	Purpose Purpose

	// Explanation is the user-facing reason for the request.
	Explanation string

	// Force re-prompts even when a granted record already exists.
	// Declining a forced re-prompt leaves the existing grant unchanged;
	// it is a refused re-confirmation, not a withdrawal. Withdrawal only
	// ever happens through Revoke.
	Force bool
}

// Gate owns the consent record and gates all collection on it.
//
// Thread Safety: Safe for concurrent use.
type Gate struct {
	prompter Prompter
	store    Store
	logger   *slog.Logger

	mu     sync.RWMutex
	record Record

	// onRevoke hooks run after a revocation commits, in registration
	// order. The session wires cache clearing and refresher shutdown here.
	onRevoke []func(ctx context.Context)
}

// NewGate creates a consent gate, restoring any persisted record.
//
// Description:
//
//	Loads the previously persisted consent record from the store so a
//	grant survives process restarts. A missing record starts the gate
//	in the not-granted state.
//
// Inputs:
//
//	prompter - Consent prompt surface. Must not be nil.
//	store - Persistence for the record. Must not be nil.
//	logger - Logger. If nil, uses slog.Default().
//
// Outputs:
//
//	*Gate - The gate. Never nil on success.
//	error - Non-nil if prompter or store is missing.
func NewGate(prompter Prompter, store Store, logger *slog.Logger) (*Gate, error) {
	if prompter == nil {
		return nil, ErrNilPrompter
	}
	if store == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gate{
		prompter: prompter,
		store:    store,
		logger:   logger.With(slog.String("component", "consent_gate")),
	}

	var rec Record
	if err := store.Get(context.Background(), recordKey, &rec); err == nil {
		g.record = rec
		g.logger.Info("consent record restored",
			slog.Bool("granted", rec.Granted),
			slog.String("scope", string(rec.Scope)),
		)
	}

	return g, nil
}

// OnRevoke registers a hook invoked after each effective revocation.
// Hooks must be registered before the gate is shared across goroutines.
func (g *Gate) OnRevoke(fn func(ctx context.Context)) {
	g.onRevoke = append(g.onRevoke, fn)
}

// HasConsent reports whether collection is currently authorized.
// Pure query, no side effects.
func (g *Gate) HasConsent() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.record.Granted
}

// Record returns a copy of the current consent record.
func (g *Gate) Record() Record {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.record
}

// RequestConsent prompts for consent and persists the decision.
//
// Description:
//
//	Idempotent: an existing granted record for the same purpose
//	short-circuits to true without re-prompting unless req.Force is
//	set. A decline never mutates the record: a first-time decline
//	leaves the gate not-granted (the user may be asked again later),
//	and a declined Force re-prompt leaves the prior grant in effect.
//
// Inputs:
//
//	ctx - Context for the prompt. Must not be nil.
//	req - The consent request. Purpose is required.
//
// Outputs:
//
//	bool - The prompt decision. On a declined Force re-prompt this is
//	false while HasConsent() still reports the standing grant.
//	error - Non-nil on invalid input or prompt failure.
func (g *Gate) RequestConsent(ctx context.Context, req Request) (bool, error) {
	if !req.Purpose.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidPurpose, req.Purpose)
	}

	g.mu.RLock()
	already := g.record.Granted && g.record.Scope == req.Purpose
	g.mu.RUnlock()
	if already && !req.Force {
		return true, nil
	}

	granted, err := g.prompter.Prompt(ctx, req.Purpose, req.Explanation)
	if err != nil {
		return g.HasConsent(), fmt.Errorf("consent prompt: %w", err)
	}

	if !granted {
		g.logger.Info("consent declined", slog.String("scope", string(req.Purpose)))
		return false, nil
	}

	rec := Record{
		Granted:   true,
		Scope:     req.Purpose,
		GrantedAt: time.Now().UnixMilli(),
	}

	g.mu.Lock()
	g.record = rec
	g.mu.Unlock()

	// Persistence is soft-fail: an unsaved grant still authorizes this
	// session and is re-persisted on the next decision.
	if err := g.store.Set(ctx, recordKey, rec); err != nil {
		g.logger.Error("persist consent record failed", slog.String("error", err.Error()))
	}

	g.logger.Info("consent granted", slog.String("scope", string(req.Purpose)))
	return true, nil
}

// Revoke withdraws consent and runs the registered revocation hooks.
//
// Description:
//
//	Sets granted=false, records the revocation time, persists the
//	record, then runs the hooks (cache clear, refresher stop).
//	Idempotent: revoking an already-revoked gate is a no-op and
//	never errors.
//
// Outputs:
//
//	error - Non-nil only if persisting the revocation fails; the
//	in-memory record is revoked regardless.
func (g *Gate) Revoke(ctx context.Context) error {
	g.mu.Lock()
	if !g.record.Granted {
		g.mu.Unlock()
		return nil
	}
	g.record.Granted = false
	g.record.RevokedAt = time.Now().UnixMilli()
	rec := g.record
	g.mu.Unlock()

	for _, fn := range g.onRevoke {
		fn(ctx)
	}

	g.logger.Info("consent revoked", slog.String("scope", string(rec.Scope)))

	if err := g.store.Set(ctx, recordKey, rec); err != nil {
		return fmt.Errorf("persist revocation: %w", err)
	}
	return nil
}
