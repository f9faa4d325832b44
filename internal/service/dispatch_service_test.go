package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenhq/courier-backend/internal/apperrors"
	"github.com/lumenhq/courier-backend/internal/events"
	"github.com/lumenhq/courier-backend/internal/model"
	"github.com/lumenhq/courier-backend/internal/policy"
	"github.com/lumenhq/courier-backend/internal/provider"
	"github.com/lumenhq/courier-backend/internal/service"
)

const (
	tenantID        = "tenant-1"
	annID           = "contact-ann"
	emailTemplateID = "tmpl-email-1"
	smsTemplateID   = "tmpl-sms-1"
)

// ---- in-memory fakes ----

type fakeContactRepo struct {
	contacts map[string]*model.Contact
}

func (f *fakeContactRepo) GetByID(ctx context.Context, tenant, id string) (*model.Contact, error) {
	c, ok := f.contacts[id]
	if !ok || c.TenantID != tenant {
		return nil, apperrors.NewNotFound("contact", id)
	}
	return c, nil
}

type fakeTemplateRepo struct {
	versions map[string]*model.TemplateVersion
}

func (f *fakeTemplateRepo) GetVersionByID(ctx context.Context, tenant, id string) (*model.TemplateVersion, error) {
	tv, ok := f.versions[id]
	if !ok || tv.TenantID != tenant {
		return nil, apperrors.NewNotFound("template version", id)
	}
	return tv, nil
}

type fakeConversationRepo struct {
	mu            sync.Mutex
	conversations []*model.Conversation
}

func (f *fakeConversationRepo) FindLatestOpen(ctx context.Context, tenant, contact, channel string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.Conversation
	for _, c := range f.conversations {
		if c.TenantID == tenant && c.ContactID == contact && c.Channel == channel && c.Status == model.ConversationOpen {
			if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
				latest = c
			}
		}
	}
	return latest, nil
}

func (f *fakeConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv.ID = uuid.NewString()
	conv.CreatedAt = time.Now()
	f.conversations = append(f.conversations, conv)
	return nil
}

func (f *fakeConversationRepo) Touch(ctx context.Context, id string) error { return nil }

func (f *fakeConversationRepo) GetByID(ctx context.Context, tenant, id string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.TenantID == tenant && c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeConversationRepo) ListByContact(ctx context.Context, tenant, contact string) ([]*model.Conversation, error) {
	return f.conversations, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*model.Message
}

func (f *fakeMessageRepo) Create(ctx context.Context, msg *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeMessageRepo) GetByID(ctx context.Context, tenant, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.TenantID == tenant && m.ID == id {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeMessageRepo) FindByIdempotencyKey(ctx context.Context, tenant, contact, key string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.TenantID != tenant || m.ContactID != contact || m.Direction != model.DirectionOutbound {
			continue
		}
		if k, ok := m.Metadata[model.MetaIdempotencyKey]; ok && k == key {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeMessageRepo) MarkSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			m.Status = model.StatusSent
			m.ProviderMessageID = providerMessageID
			m.SentAt = &sentAt
		}
	}
	return nil
}

func (f *fakeMessageRepo) MarkFailed(ctx context.Context, id, reason string, failedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			m.Status = model.StatusFailed
			m.FailedAt = &failedAt
			if m.Metadata == nil {
				m.Metadata = map[string]any{}
			}
			m.Metadata[model.MetaProviderError] = reason
		}
	}
	return nil
}

func (f *fakeMessageRepo) ListByConversation(ctx context.Context, tenant, conversation string) ([]*model.Message, error) {
	return f.messages, nil
}

func (f *fakeMessageRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*model.MessageEvent
}

func (f *fakeEventRepo) Append(ctx context.Context, e *model.MessageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeEventRepo) ListByMessage(ctx context.Context, tenant, messageID string) ([]*model.MessageEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.MessageEvent{}
	for _, e := range f.events {
		if e.TenantID == tenant && e.MessageID == messageID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakePolicy struct {
	decision policy.Decision
	recorded []string
}

func (f *fakePolicy) Evaluate(ctx context.Context, tenant string, contact *model.Contact, channel, dedupeKey string) policy.Decision {
	return f.decision
}

func (f *fakePolicy) RecordSend(ctx context.Context, tenant, dedupeKey string) error {
	f.recorded = append(f.recorded, dedupeKey)
	return nil
}

// ---- harness ----

type harness struct {
	svc      *service.DispatchService
	contacts *fakeContactRepo
	messages *fakeMessageRepo
	events   *fakeEventRepo
	convs    *fakeConversationRepo
	policy   *fakePolicy
	email    *provider.MockAdapter
	sms      *provider.MockAdapter
}

func newHarness() *harness {
	contacts := &fakeContactRepo{contacts: map[string]*model.Contact{
		annID: {ID: annID, TenantID: tenantID, DisplayName: "Ann Otieno", Email: "a@example.com", PhoneE164: "+254700000001"},
	}}
	templates := &fakeTemplateRepo{versions: map[string]*model.TemplateVersion{
		emailTemplateID: {
			ID: emailTemplateID, TenantID: tenantID, TemplateName: "welcome", Version: 1,
			Channel: model.ChannelEmail, SubjectPattern: "Hi {name}", TextPattern: "Hello {name}, welcome!",
		},
		smsTemplateID: {
			ID: smsTemplateID, TenantID: tenantID, TemplateName: "reminder", Version: 1,
			Channel: model.ChannelSMS, TextPattern: "Hi {first_name}, see you at {slot}.",
		},
	}}

	h := &harness{
		contacts: contacts,
		messages: &fakeMessageRepo{},
		events:   &fakeEventRepo{},
		convs:    &fakeConversationRepo{},
		policy:   &fakePolicy{decision: policy.Decision{Allowed: true}},
		email:    &provider.MockAdapter{AdapterName: "mock_email"},
		sms:      &provider.MockAdapter{AdapterName: "mock_sms"},
	}
	h.svc = &service.DispatchService{
		Contacts:      contacts,
		Templates:     templates,
		Conversations: h.convs,
		Messages:      h.messages,
		Events:        h.events,
		Policy:        h.policy,
		Providers: provider.Registry{
			model.ChannelEmail: h.email,
			model.ChannelSMS:   h.sms,
		},
		Publisher: &events.InMemoryPublisher{},
		FromAddr:  "no-reply@local.dev",
		Logger:    zap.NewNop(),
	}
	return h
}

func emailRequest() service.SendRequest {
	return service.SendRequest{
		TenantID:          tenantID,
		ContactID:         annID,
		Channel:           model.ChannelEmail,
		TemplateVersionID: emailTemplateID,
		Variables:         map[string]string{"name": "Ann"},
	}
}

// ---- tests ----

func TestSendSuccessfulEmail(t *testing.T) {
	h := newHarness()

	result, err := h.svc.Send(context.Background(), emailRequest())
	require.NoError(t, err)
	require.True(t, result.OK)
	assert.False(t, result.Idempotent)

	msg, err := h.messages.GetByID(context.Background(), tenantID, result.MessageID)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, model.StatusSent, msg.Status)
	assert.Equal(t, "Hi Ann", msg.Subject)
	assert.Equal(t, "Hello Ann, welcome!", msg.BodyText)
	assert.Equal(t, "a@example.com", msg.ToAddress)
	assert.Equal(t, "mock-1", msg.ProviderMessageID)
	assert.NotNil(t, msg.SentAt)

	eventList, err := h.events.ListByMessage(context.Background(), tenantID, msg.ID)
	require.NoError(t, err)
	require.Len(t, eventList, 2)
	assert.Equal(t, model.EventQueued, eventList[0].EventType)
	assert.Equal(t, model.EventSent, eventList[1].EventType)

	assert.Equal(t, []string{policy.DedupeKey(model.ChannelEmail, emailTemplateID, annID)}, h.policy.recorded)
}

func TestSendIdempotencyShortCircuit(t *testing.T) {
	h := newHarness()
	req := emailRequest()
	req.IdempotencyKey = "order-42"

	first, err := h.svc.Send(context.Background(), req)
	require.NoError(t, err)

	second, err := h.svc.Send(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.MessageID, second.MessageID)
	assert.True(t, second.Idempotent)
	assert.Equal(t, 1, h.messages.count())
	assert.Equal(t, 1, h.email.Calls())

	// exactly one event sequence exists
	eventList, err := h.events.ListByMessage(context.Background(), tenantID, first.MessageID)
	require.NoError(t, err)
	assert.Len(t, eventList, 2)
}

func TestSendPolicyBlockIsAuditedNotSilent(t *testing.T) {
	h := newHarness()
	h.policy.decision = policy.Decision{Allowed: false, Reasons: []policy.ReasonCode{policy.ReasonOptedOut}}

	result, err := h.svc.Send(context.Background(), emailRequest())
	require.NoError(t, err)
	require.False(t, result.OK)
	require.NotNil(t, result.Blocked)
	assert.Contains(t, result.Blocked.Reasons, policy.ReasonOptedOut)

	msg, err := h.messages.GetByID(context.Background(), tenantID, result.MessageID)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, model.StatusFailed, msg.Status)
	assert.NotNil(t, msg.FailedAt)

	eventList, err := h.events.ListByMessage(context.Background(), tenantID, msg.ID)
	require.NoError(t, err)
	require.Len(t, eventList, 1)
	assert.Equal(t, model.EventPolicyBlocked, eventList[0].EventType)

	// no provider was contacted and no window was consumed
	assert.Equal(t, 0, h.email.Calls())
	assert.Empty(t, h.policy.recorded)
}

func TestSendChannelTemplateMismatchRejectedPrePersistence(t *testing.T) {
	h := newHarness()
	req := emailRequest()
	req.Channel = model.ChannelSMS // template is email

	result, err := h.svc.Send(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, result)

	var validationErr *apperrors.ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Equal(t, 0, h.messages.count())
	assert.Empty(t, h.events.events)
}

func TestSendMissingAddressRejectedPrePersistence(t *testing.T) {
	h := newHarness()
	h.contacts.contacts["contact-nophone"] = &model.Contact{
		ID: "contact-nophone", TenantID: tenantID, DisplayName: "Ben", Email: "b@example.com",
	}
	req := service.SendRequest{
		TenantID:          tenantID,
		ContactID:         "contact-nophone",
		Channel:           model.ChannelSMS,
		TemplateVersionID: smsTemplateID,
	}

	result, err := h.svc.Send(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, result)

	var validationErr *apperrors.ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Equal(t, 0, h.messages.count())
	assert.Equal(t, 0, h.sms.Calls())
}

func TestSendUnknownContactAndTemplate(t *testing.T) {
	h := newHarness()

	req := emailRequest()
	req.ContactID = "nope"
	_, err := h.svc.Send(context.Background(), req)
	var notFoundErr *apperrors.NotFoundError
	require.True(t, errors.As(err, &notFoundErr))

	req = emailRequest()
	req.TemplateVersionID = "nope"
	_, err = h.svc.Send(context.Background(), req)
	require.True(t, errors.As(err, &notFoundErr))

	assert.Equal(t, 0, h.messages.count())
}

func TestSendProviderFailureIsDurablyRecorded(t *testing.T) {
	h := newHarness()
	h.email.FailWith = errors.New("rate limited")

	result, err := h.svc.Send(context.Background(), emailRequest())
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.MessageID)

	var providerErr *apperrors.ProviderError
	require.True(t, errors.As(err, &providerErr))

	msg, err := h.messages.GetByID(context.Background(), tenantID, result.MessageID)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, model.StatusFailed, msg.Status)
	assert.Equal(t, "rate limited", msg.Metadata[model.MetaProviderError])
	assert.NotNil(t, msg.FailedAt)

	eventList, err := h.events.ListByMessage(context.Background(), tenantID, msg.ID)
	require.NoError(t, err)
	require.Len(t, eventList, 2)
	assert.Equal(t, model.EventQueued, eventList[0].EventType)
	assert.Equal(t, model.EventFailed, eventList[1].EventType)
}

func TestSendConversationReuseAndDivergence(t *testing.T) {
	h := newHarness()

	first, err := h.svc.Send(context.Background(), emailRequest())
	require.NoError(t, err)
	second, err := h.svc.Send(context.Background(), emailRequest())
	require.NoError(t, err)

	msg1, _ := h.messages.GetByID(context.Background(), tenantID, first.MessageID)
	msg2, _ := h.messages.GetByID(context.Background(), tenantID, second.MessageID)
	assert.Equal(t, msg1.ConversationID, msg2.ConversationID)

	smsReq := service.SendRequest{
		TenantID:          tenantID,
		ContactID:         annID,
		Channel:           model.ChannelSMS,
		TemplateVersionID: smsTemplateID,
		Variables:         map[string]string{"slot": "10am"},
	}
	third, err := h.svc.Send(context.Background(), smsReq)
	require.NoError(t, err)

	msg3, _ := h.messages.GetByID(context.Background(), tenantID, third.MessageID)
	assert.NotEqual(t, msg1.ConversationID, msg3.ConversationID)
}

func TestStatusMatchesLatestEvent(t *testing.T) {
	h := newHarness()

	// one sent, one provider-failed, one blocked
	_, err := h.svc.Send(context.Background(), emailRequest())
	require.NoError(t, err)

	h.email.FailWith = errors.New("boom")
	_, _ = h.svc.Send(context.Background(), emailRequest())
	h.email.FailWith = nil

	h.policy.decision = policy.Decision{Allowed: false, Reasons: []policy.ReasonCode{policy.ReasonBounced}}
	_, err = h.svc.Send(context.Background(), emailRequest())
	require.NoError(t, err)

	for _, msg := range h.messages.messages {
		eventList, err := h.events.ListByMessage(context.Background(), tenantID, msg.ID)
		require.NoError(t, err)
		require.NotEmpty(t, eventList, "every message must have at least one event")
		last := eventList[len(eventList)-1]
		assert.Equal(t, model.StatusForEvent(last.EventType), msg.Status,
			"message %s status must match its latest event %s", msg.ID, last.EventType)
	}
}

func TestSendReservedKeysCannotBeSpoofed(t *testing.T) {
	h := newHarness()
	req := service.SendRequest{
		TenantID:          tenantID,
		ContactID:         annID,
		Channel:           model.ChannelSMS,
		TemplateVersionID: smsTemplateID,
		Variables: map[string]string{
			"first_name": "Mallory", // reserved, must come from the contact
			"slot":       "10am",
		},
	}

	result, err := h.svc.Send(context.Background(), req)
	require.NoError(t, err)

	msg, _ := h.messages.GetByID(context.Background(), tenantID, result.MessageID)
	assert.Equal(t, "Hi Ann, see you at 10am.", msg.BodyText)
}
