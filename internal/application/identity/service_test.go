package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/alerts-manage-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSubscriberStore struct{ mock.Mock }

func (m *mockSubscriberStore) GetByPhone(ctx context.Context, e164 string) (*domain.Subscriber, error) {
	args := m.Called(ctx, e164)
	if s, _ := args.Get(0).(*domain.Subscriber); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSubscriberStore) GetByWhopUserID(ctx context.Context, whopUserID string) (*domain.Subscriber, error) {
	args := m.Called(ctx, whopUserID)
	if s, _ := args.Get(0).(*domain.Subscriber); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockChatStore struct{ mock.Mock }

func (m *mockChatStore) Get(ctx context.Context, chatID int64) (*domain.ChatSubscriber, error) {
	args := m.Called(ctx, chatID)
	if c, _ := args.Get(0).(*domain.ChatSubscriber); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- Resolve ---

func TestResolve_WhopIDWins(t *testing.T) {
	ss, cs := &mockSubscriberStore{}, &mockChatStore{}
	ss.On("GetByWhopUserID", mock.Anything, "user_abc").Return(&domain.Subscriber{SubscriberID: "s1"}, nil)

	svc := NewService(ss, cs)
	id, err := svc.Resolve(context.Background(), Candidates{
		WhopUserID: "user_abc",
		TelegramID: "12345",
		Phone:      "+15551234567",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.PlatformIdentifier("user_abc"), id)
	// Later candidates are never consulted once a match is found.
	cs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	ss.AssertNotCalled(t, "GetByPhone", mock.Anything, mock.Anything)
}

func TestResolve_FallsThroughToChat(t *testing.T) {
	ss, cs := &mockSubscriberStore{}, &mockChatStore{}
	ss.On("GetByWhopUserID", mock.Anything, "user_abc").Return(nil, domain.ErrNotFound)
	cs.On("Get", mock.Anything, int64(12345)).Return(&domain.ChatSubscriber{ChatID: 12345}, nil)

	svc := NewService(ss, cs)
	id, err := svc.Resolve(context.Background(), Candidates{WhopUserID: "user_abc", TelegramID: "12345"})

	require.NoError(t, err)
	assert.Equal(t, domain.ChatIdentifier(12345), id)
}

func TestResolve_PhoneLast(t *testing.T) {
	ss, cs := &mockSubscriberStore{}, &mockChatStore{}
	ss.On("GetByPhone", mock.Anything, "+15551234567").Return(&domain.Subscriber{SubscriberID: "s1"}, nil)

	svc := NewService(ss, cs)
	id, err := svc.Resolve(context.Background(), Candidates{Phone: "+15551234567"})

	require.NoError(t, err)
	assert.Equal(t, domain.PhoneIdentifier("+15551234567"), id)
}

func TestResolve_NoMatch_NotFound(t *testing.T) {
	ss, cs := &mockSubscriberStore{}, &mockChatStore{}
	ss.On("GetByWhopUserID", mock.Anything, "user_abc").Return(nil, domain.ErrNotFound)
	ss.On("GetByPhone", mock.Anything, "+15551234567").Return(nil, domain.ErrNotFound)
	cs.On("Get", mock.Anything, int64(99)).Return(nil, domain.ErrNotFound)

	svc := NewService(ss, cs)
	_, err := svc.Resolve(context.Background(), Candidates{
		WhopUserID: "user_abc",
		TelegramID: "99",
		Phone:      "+15551234567",
	})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolve_EmptyCandidates_NotFound(t *testing.T) {
	svc := NewService(&mockSubscriberStore{}, &mockChatStore{})
	_, err := svc.Resolve(context.Background(), Candidates{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolve_StoreError_Propagates(t *testing.T) {
	ss, cs := &mockSubscriberStore{}, &mockChatStore{}
	boom := errors.New("dynamo unavailable")
	ss.On("GetByWhopUserID", mock.Anything, "user_abc").Return(nil, boom)

	svc := NewService(ss, cs)
	_, err := svc.Resolve(context.Background(), Candidates{WhopUserID: "user_abc"})

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestResolve_NonNumericTelegramID_Skipped(t *testing.T) {
	ss, cs := &mockSubscriberStore{}, &mockChatStore{}
	ss.On("GetByPhone", mock.Anything, "+15551234567").Return(&domain.Subscriber{SubscriberID: "s1"}, nil)

	svc := NewService(ss, cs)
	id, err := svc.Resolve(context.Background(), Candidates{TelegramID: "not-a-number", Phone: "+15551234567"})

	require.NoError(t, err)
	assert.Equal(t, domain.ChannelPhone, id.Channel)
	cs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

// --- Lookup ---

func TestLookup_ByChannel(t *testing.T) {
	ss, cs := &mockSubscriberStore{}, &mockChatStore{}
	ss.On("GetByPhone", mock.Anything, "+15551234567").Return(&domain.Subscriber{SubscriberID: "s1"}, nil)
	ss.On("GetByWhopUserID", mock.Anything, "user_abc").Return(nil, domain.ErrNotFound)
	cs.On("Get", mock.Anything, int64(42)).Return(&domain.ChatSubscriber{ChatID: 42}, nil)

	svc := NewService(ss, cs)

	assert.NoError(t, svc.Lookup(context.Background(), domain.PhoneIdentifier("+15551234567")))
	assert.NoError(t, svc.Lookup(context.Background(), domain.ChatIdentifier(42)))
	assert.ErrorIs(t, svc.Lookup(context.Background(), domain.PlatformIdentifier("user_abc")), domain.ErrNotFound)
}

func TestLookup_MalformedChatKey_BadRequest(t *testing.T) {
	svc := NewService(&mockSubscriberStore{}, &mockChatStore{})
	err := svc.Lookup(context.Background(), domain.Identifier{Channel: domain.ChannelChat, Key: "abc"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

// --- Classify ---

func TestClassify(t *testing.T) {
	cases := []struct {
		key  string
		want domain.Channel
	}{
		{"+15551234567", domain.ChannelPhone},
		{"123456789", domain.ChannelChat},
		{"user_abc123", domain.ChannelPlatform},
		{"user_123", domain.ChannelPlatform},
		{"+", domain.ChannelPhone},
		{"", domain.ChannelPlatform},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.key), "key %q", tc.key)
	}
}
