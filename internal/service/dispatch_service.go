// internal/service/dispatch_service.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lumenhq/courier-backend/internal/apperrors"
	"github.com/lumenhq/courier-backend/internal/events"
	"github.com/lumenhq/courier-backend/internal/model"
	"github.com/lumenhq/courier-backend/internal/policy"
	"github.com/lumenhq/courier-backend/internal/provider"
	"github.com/lumenhq/courier-backend/internal/repository"
	"github.com/lumenhq/courier-backend/internal/template"
)

// PolicyEvaluator is what the dispatcher needs from the policy package.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, tenantID string, contact *model.Contact, channel, dedupeKey string) policy.Decision
	RecordSend(ctx context.Context, tenantID, dedupeKey string) error
}

// DispatchService sequences one outbound send end to end: validate, policy
// check, conversation resolution, idempotency guard, render, persist, deliver.
type DispatchService struct {
	Contacts      repository.ContactRepositoryInterface
	Templates     repository.TemplateRepositoryInterface
	Conversations repository.ConversationRepositoryInterface
	Messages      repository.MessageRepositoryInterface
	Events        repository.MessageEventRepositoryInterface
	Policy        PolicyEvaluator
	Providers     provider.Registry
	Publisher     events.Publisher
	FromAddr      string
	Logger        *zap.Logger
}

type SendRequest struct {
	TenantID          string            `json:"tenant_id"`
	ContactID         string            `json:"contact_id"`
	Channel           string            `json:"channel"`
	TemplateVersionID string            `json:"template_version_id"`
	Variables         map[string]string `json:"variables,omitempty"`
	ConversationID    string            `json:"conversation_id,omitempty"`
	IdempotencyKey    string            `json:"idempotency_key,omitempty"`
}

// SendResult is the discriminated outcome: exactly one of the success fields,
// Blocked, or Err carries the story, with OK as the quick check.
type SendResult struct {
	OK         bool             `json:"ok"`
	MessageID  string           `json:"message_id,omitempty"`
	Idempotent bool             `json:"idempotent,omitempty"`
	Blocked    *policy.Decision `json:"blocked,omitempty"`
	Err        string           `json:"error,omitempty"`
}

// Send runs the dispatch state machine. Validation and not-found problems
// return an error with nothing persisted; everything past the ledger stage is
// durably recorded even on failure. A provider failure returns both the result
// (with the failed message id) and the wrapped error; the pipeline never
// retries on its own.
func (s *DispatchService) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	// Step 1: resolve collaborator state and reject caller errors before any
	// persistence.
	contact, err := s.Contacts.GetByID(ctx, req.TenantID, req.ContactID)
	if err != nil {
		return nil, err
	}

	tv, err := s.Templates.GetVersionByID(ctx, req.TenantID, req.TemplateVersionID)
	if err != nil {
		return nil, err
	}

	if req.Channel != model.ChannelEmail && req.Channel != model.ChannelSMS {
		return nil, apperrors.NewValidation("unknown channel %q", req.Channel)
	}
	if tv.Channel != req.Channel {
		return nil, apperrors.NewValidation("template version %s targets channel %q, not %q",
			tv.ID, tv.Channel, req.Channel)
	}

	adapter, ok := s.Providers[req.Channel]
	if !ok {
		return nil, apperrors.NewValidation("no provider configured for channel %q", req.Channel)
	}

	toAddress, err := destinationAddress(req.Channel, contact)
	if err != nil {
		return nil, err
	}

	// Step 2: policy decision. A block is a first-class outcome: it persists a
	// failed message and a policy_blocked event so the block is auditable.
	dedupeKey := policy.DedupeKey(req.Channel, req.TemplateVersionID, req.ContactID)
	decision := s.Policy.Evaluate(ctx, req.TenantID, contact, req.Channel, dedupeKey)
	if !decision.Allowed {
		msgID, err := s.persistBlocked(ctx, req, contact, adapter.Name(), toAddress, dedupeKey, decision)
		if err != nil {
			return nil, err
		}
		return &SendResult{OK: false, MessageID: msgID, Blocked: &decision}, nil
	}

	// Step 3: conversation resolution.
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID, err = s.resolveConversation(ctx, req.TenantID, contact, req.Channel, tv.SubjectPattern)
		if err != nil {
			return nil, err
		}
	}

	// Step 4: idempotency guard. A seen key short-circuits with the prior
	// message id: no render, no provider call, no new events.
	if req.IdempotencyKey != "" {
		prior, err := s.Messages.FindByIdempotencyKey(ctx, req.TenantID, req.ContactID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return &SendResult{OK: true, MessageID: prior.ID, Idempotent: true}, nil
		}
	}

	// Step 5: render with the merged variable bag.
	vars := template.MergeVariables(req.TenantID, contact, req.Variables)
	subject := ""
	if req.Channel == model.ChannelEmail {
		subject = template.Render(tv.SubjectPattern, vars)
	}
	bodyText := template.Render(tv.TextPattern, vars)
	bodyHTML := ""
	if tv.HTMLPattern != "" {
		bodyHTML = template.Render(tv.HTMLPattern, vars)
	}

	// Step 6: persist queued and record the queued event.
	msg := &model.Message{
		TenantID:       req.TenantID,
		ConversationID: conversationID,
		ContactID:      req.ContactID,
		Direction:      model.DirectionOutbound,
		Channel:        req.Channel,
		Provider:       adapter.Name(),
		Status:         model.StatusQueued,
		Subject:        subject,
		BodyText:       bodyText,
		BodyHTML:       bodyHTML,
		ToAddress:      toAddress,
		FromAddress:    s.FromAddr,
		Metadata:       sendMetadata(req, dedupeKey),
	}
	if err := s.Messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	s.recordEvent(ctx, msg, model.EventQueued, nil)

	if err := s.Policy.RecordSend(ctx, req.TenantID, dedupeKey); err != nil {
		s.Logger.Warn("failed to record send window",
			zap.String("message_id", msg.ID), zap.Error(err))
	}
	if err := s.Conversations.Touch(ctx, conversationID); err != nil {
		s.Logger.Warn("failed to touch conversation",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	// Step 7: deliver.
	providerRef, deliverErr := adapter.Deliver(ctx, provider.Delivery{
		To:      toAddress,
		Subject: subject,
		Text:    bodyText,
		HTML:    bodyHTML,
		Metadata: map[string]string{
			"message_id": msg.ID,
			"tenant_id":  msg.TenantID,
		},
	})

	// Step 8: terminal state.
	if deliverErr != nil {
		failedAt := time.Now().UTC()
		if err := s.Messages.MarkFailed(ctx, msg.ID, deliverErr.Error(), failedAt); err != nil {
			s.Logger.Error("failed to mark message failed",
				zap.String("message_id", msg.ID), zap.Error(err))
		}
		s.recordEvent(ctx, msg, model.EventFailed, map[string]any{
			model.MetaProviderError: deliverErr.Error(),
		})
		wrapped := apperrors.NewProvider(adapter.Name(), deliverErr)
		return &SendResult{OK: false, MessageID: msg.ID, Err: wrapped.Error()}, wrapped
	}

	sentAt := time.Now().UTC()
	if err := s.Messages.MarkSent(ctx, msg.ID, providerRef, sentAt); err != nil {
		return nil, err
	}
	s.recordEvent(ctx, msg, model.EventSent, map[string]any{
		"provider_message_id": providerRef,
	})

	s.Logger.Info("message sent",
		zap.String("message_id", msg.ID),
		zap.String("tenant_id", msg.TenantID),
		zap.String("channel", msg.Channel),
		zap.String("provider_message_id", providerRef))

	return &SendResult{OK: true, MessageID: msg.ID}, nil
}

// persistBlocked writes the terminal failed message plus its policy_blocked
// event. The blocked message still lands in a conversation so the thread shows
// the attempt.
func (s *DispatchService) persistBlocked(ctx context.Context, req SendRequest, contact *model.Contact, providerName, toAddress, dedupeKey string, decision policy.Decision) (string, error) {
	conversationID := req.ConversationID
	if conversationID == "" {
		var err error
		conversationID, err = s.resolveConversation(ctx, req.TenantID, contact, req.Channel, "")
		if err != nil {
			return "", err
		}
	}

	failedAt := time.Now().UTC()
	meta := sendMetadata(req, dedupeKey)
	meta[model.MetaBlockReasons] = decision.Reasons

	msg := &model.Message{
		TenantID:       req.TenantID,
		ConversationID: conversationID,
		ContactID:      req.ContactID,
		Direction:      model.DirectionOutbound,
		Channel:        req.Channel,
		Provider:       providerName,
		Status:         model.StatusFailed,
		ToAddress:      toAddress,
		FromAddress:    s.FromAddr,
		Metadata:       meta,
		FailedAt:       &failedAt,
	}
	if err := s.Messages.Create(ctx, msg); err != nil {
		return "", err
	}
	s.recordEvent(ctx, msg, model.EventPolicyBlocked, map[string]any{
		model.MetaBlockReasons: decision.Reasons,
	})

	s.Logger.Info("send blocked by policy",
		zap.String("message_id", msg.ID),
		zap.String("tenant_id", msg.TenantID),
		zap.String("dedupe_key", dedupeKey),
		zap.Any("reasons", decision.Reasons))

	return msg.ID, nil
}

// resolveConversation reuses the most-recently-updated open thread for the
// (tenant, contact, channel) key or creates one. Concurrent first sends can
// race into two threads; that is a UX grouping, not a correctness boundary.
func (s *DispatchService) resolveConversation(ctx context.Context, tenantID string, contact *model.Contact, channel, subjectHint string) (string, error) {
	existing, err := s.Conversations.FindLatestOpen(ctx, tenantID, contact.ID, channel)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}

	subject := subjectHint
	if subject == "" {
		switch channel {
		case model.ChannelSMS:
			subject = "SMS conversation"
		default:
			subject = "Email conversation"
		}
	}

	conv := &model.Conversation{
		TenantID:  tenantID,
		ContactID: contact.ID,
		Channel:   channel,
		Subject:   subject,
		Status:    model.ConversationOpen,
	}
	if err := s.Conversations.Create(ctx, conv); err != nil {
		return "", err
	}
	return conv.ID, nil
}

// recordEvent appends the audit row and fans the event out. The row is the
// source of truth; a publish failure is logged and swallowed.
func (s *DispatchService) recordEvent(ctx context.Context, msg *model.Message, eventType string, meta map[string]any) {
	event := &model.MessageEvent{
		MessageID: msg.ID,
		TenantID:  msg.TenantID,
		EventType: eventType,
		Metadata:  meta,
	}
	if err := s.Events.Append(ctx, event); err != nil {
		s.Logger.Error("failed to append message event",
			zap.String("message_id", msg.ID),
			zap.String("event_type", eventType),
			zap.Error(err))
		return
	}
	if err := s.Publisher.Publish(ctx, event); err != nil {
		s.Logger.Warn("failed to publish message event",
			zap.String("message_id", msg.ID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// destinationAddress resolves the channel-specific address up front so a
// missing address is a caller error, not a provider failure.
func destinationAddress(channel string, contact *model.Contact) (string, error) {
	switch channel {
	case model.ChannelEmail:
		if contact.Email == "" {
			return "", apperrors.NewValidation("contact %s has no email address", contact.ID)
		}
		return contact.Email, nil
	case model.ChannelSMS:
		if contact.PhoneE164 == "" {
			return "", apperrors.NewValidation("contact %s has no phone number", contact.ID)
		}
		return contact.PhoneE164, nil
	}
	return "", apperrors.NewValidation("unknown channel %q", channel)
}

func sendMetadata(req SendRequest, dedupeKey string) map[string]any {
	meta := map[string]any{
		model.MetaDedupeKey:         dedupeKey,
		model.MetaTemplateVersionID: req.TemplateVersionID,
	}
	if req.IdempotencyKey != "" {
		meta[model.MetaIdempotencyKey] = req.IdempotencyKey
	}
	if len(req.Variables) > 0 {
		meta[model.MetaVariables] = req.Variables
	}
	return meta
}
