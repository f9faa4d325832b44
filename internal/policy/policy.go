// Package policy decides whether an outbound send is allowed for a given
// tenant/contact/channel/dedupe-key. It reads suppression flags and a recency
// window but performs no writes of its own; window consumption is an explicit
// call made by the dispatcher once a send is accepted.
package policy

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumenhq/courier-backend/internal/model"
)

type ReasonCode string

const (
	ReasonOptedOut          ReasonCode = "opted_out"
	ReasonBounced           ReasonCode = "bounced"
	ReasonInvalidAddress    ReasonCode = "invalid_address"
	ReasonRateLimited       ReasonCode = "rate_limited"
	ReasonPolicyUnavailable ReasonCode = "policy_unavailable"
)

// Decision is a machine-readable allow/block outcome. Blocked is a normal
// result, not an error.
type Decision struct {
	Allowed bool         `json:"allowed"`
	Reasons []ReasonCode `json:"reasons,omitempty"`
}

// DedupeKey derives the suppression-window key: same template to the same
// contact on the same channel counts as one unit, independent of variables.
func DedupeKey(channel, templateVersionID, contactID string) string {
	return fmt.Sprintf("%s:%s:%s", channel, templateVersionID, contactID)
}

// WindowStore abstracts the shared recency counter (Redis in production).
type WindowStore interface {
	// Count returns how many sends of the key happened in the current window.
	Count(ctx context.Context, key string) (int, error)
	// Record consumes one slot of the key's window.
	Record(ctx context.Context, key string, window time.Duration) error
}

// Evaluator combines contact suppression flags with the recency window.
type Evaluator struct {
	Store  WindowStore
	Window time.Duration
	Limit  int
	Logger *zap.Logger
}

// Evaluate returns the allow/block decision. If the window store is
// unreachable the decision fails closed: an inability to check suppression is
// itself a compliance risk, so the send is blocked rather than silently
// allowed.
func (e *Evaluator) Evaluate(ctx context.Context, tenantID string, contact *model.Contact, channel, dedupeKey string) Decision {
	reasons := []ReasonCode{}

	if contact.OptedOut {
		reasons = append(reasons, ReasonOptedOut)
	}
	if contact.Bounced {
		reasons = append(reasons, ReasonBounced)
	}
	if contact.InvalidAddress {
		reasons = append(reasons, ReasonInvalidAddress)
	}

	count, err := e.Store.Count(ctx, windowKey(tenantID, dedupeKey))
	if err != nil {
		e.Logger.Warn("policy window store unavailable, failing closed",
			zap.String("tenant_id", tenantID),
			zap.String("dedupe_key", dedupeKey),
			zap.Error(err))
		reasons = append(reasons, ReasonPolicyUnavailable)
	} else if e.Limit > 0 && count >= e.Limit {
		reasons = append(reasons, ReasonRateLimited)
	}

	return Decision{Allowed: len(reasons) == 0, Reasons: reasons}
}

// RecordSend consumes one window slot for the dedupe key. Called by the
// dispatcher after a message is accepted into the ledger, never from Evaluate.
func (e *Evaluator) RecordSend(ctx context.Context, tenantID, dedupeKey string) error {
	return e.Store.Record(ctx, windowKey(tenantID, dedupeKey), e.Window)
}

func windowKey(tenantID, dedupeKey string) string {
	return tenantID + ":" + dedupeKey
}
