package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alerts-manage-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSubscriberStore struct{ mock.Mock }

func (m *mockSubscriberStore) Create(ctx context.Context, s *domain.Subscriber) error {
	return m.Called(ctx, s).Error(0)
}
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
func (m *mockSubscriberStore) GetByCanonicalKey(ctx context.Context, channel domain.Channel, key string) (*domain.Subscriber, error) {
	args := m.Called(ctx, channel, key)
	if s, _ := args.Get(0).(*domain.Subscriber); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSubscriberStore) SetPendingCode(ctx context.Context, subscriberID, code string) error {
	return m.Called(ctx, subscriberID, code).Error(0)
}
func (m *mockSubscriberStore) ClearPendingCode(ctx context.Context, subscriberID, code string) error {
	return m.Called(ctx, subscriberID, code).Error(0)
}
func (m *mockSubscriberStore) MarkVerified(ctx context.Context, subscriberID string, at time.Time) error {
	return m.Called(ctx, subscriberID, at).Error(0)
}
func (m *mockSubscriberStore) AttachPhone(ctx context.Context, subscriberID, e164 string) error {
	return m.Called(ctx, subscriberID, e164).Error(0)
}
func (m *mockSubscriberStore) AttachEmail(ctx context.Context, subscriberID, email string) error {
	return m.Called(ctx, subscriberID, email).Error(0)
}

type mockChatStore struct{ mock.Mock }

func (m *mockChatStore) Get(ctx context.Context, chatID int64) (*domain.ChatSubscriber, error) {
	args := m.Called(ctx, chatID)
	if c, _ := args.Get(0).(*domain.ChatSubscriber); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockChatStore) SetPendingCode(ctx context.Context, chatID int64, code string) error {
	return m.Called(ctx, chatID, code).Error(0)
}
func (m *mockChatStore) ClearPendingCode(ctx context.Context, chatID int64, code string) error {
	return m.Called(ctx, chatID, code).Error(0)
}
func (m *mockChatStore) MarkVerified(ctx context.Context, chatID int64, at time.Time) error {
	return m.Called(ctx, chatID, at).Error(0)
}

type mockSMSSender struct{ mock.Mock }

func (m *mockSMSSender) SendSMS(ctx context.Context, to, message string) error {
	return m.Called(ctx, to, message).Error(0)
}

type mockChatSender struct{ mock.Mock }

func (m *mockChatSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	return m.Called(ctx, chatID, text).Error(0)
}

// --- builder ---

func newService(ss *mockSubscriberStore, cs *mockChatStore, sms *mockSMSSender, chat *mockChatSender) Service {
	return NewService(ServiceDeps{
		SubscriberRepo: ss,
		ChatRepo:       cs,
		SMSSender:      sms,
		ChatSender:     chat,
		CodeLength:     6,
	})
}

func strPtr(s string) *string { return &s }

// --- IssueCode ---

func TestIssueCode_Phone_ExistingSubscriber(t *testing.T) {
	ss, sms := &mockSubscriberStore{}, &mockSMSSender{}
	ss.On("GetByPhone", mock.Anything, "+15551234567").Return(&domain.Subscriber{SubscriberID: "s1"}, nil)
	ss.On("SetPendingCode", mock.Anything, "s1", mock.MatchedBy(func(code string) bool {
		return len(code) == 6
	})).Return(nil)
	sms.On("SendSMS", mock.Anything, "+15551234567", mock.AnythingOfType("string")).Return(nil)

	svc := newService(ss, &mockChatStore{}, sms, &mockChatSender{})
	err := svc.IssueCode(context.Background(), IssueRequest{Identity: domain.PhoneIdentifier("+15551234567")})

	require.NoError(t, err)
	ss.AssertExpectations(t)
	sms.AssertExpectations(t)
}

func TestIssueCode_Phone_PreRegistersMissingSubscriber(t *testing.T) {
	ss, sms := &mockSubscriberStore{}, &mockSMSSender{}
	ss.On("GetByPhone", mock.Anything, "+15551234567").Return(nil, domain.ErrNotFound)
	ss.On("Create", mock.Anything, mock.MatchedBy(func(s *domain.Subscriber) bool {
		return s.Phone != nil && *s.Phone == "+15551234567" && s.VerifiedAt == nil
	})).Return(nil)
	ss.On("SetPendingCode", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(nil)
	sms.On("SendSMS", mock.Anything, "+15551234567", mock.AnythingOfType("string")).Return(nil)

	svc := newService(ss, &mockChatStore{}, sms, &mockChatSender{})
	err := svc.IssueCode(context.Background(), IssueRequest{Identity: domain.PhoneIdentifier("+15551234567")})

	require.NoError(t, err)
	ss.AssertExpectations(t)
}

func TestIssueCode_Phone_CreateRace_ReusesWinnersRecord(t *testing.T) {
	// Two first-time issues for the same number race: both read "no record",
	// the store admits exactly one creation. The loser must stage its code on
	// the winner's record instead of fabricating a duplicate.
	ss, sms := &mockSubscriberStore{}, &mockSMSSender{}
	ss.On("GetByPhone", mock.Anything, "+15551234567").Return(nil, domain.ErrNotFound)
	ss.On("Create", mock.Anything, mock.AnythingOfType("*domain.Subscriber")).Return(domain.ErrConflict)
	ss.On("GetByCanonicalKey", mock.Anything, domain.ChannelPhone, "+15551234567").
		Return(&domain.Subscriber{SubscriberID: "winner"}, nil)
	ss.On("SetPendingCode", mock.Anything, "winner", mock.AnythingOfType("string")).Return(nil)
	sms.On("SendSMS", mock.Anything, "+15551234567", mock.AnythingOfType("string")).Return(nil)

	svc := newService(ss, &mockChatStore{}, sms, &mockChatSender{})
	err := svc.IssueCode(context.Background(), IssueRequest{Identity: domain.PhoneIdentifier("+15551234567")})

	require.NoError(t, err)
	ss.AssertNumberOfCalls(t, "Create", 1)
	ss.AssertCalled(t, "SetPendingCode", mock.Anything, "winner", mock.AnythingOfType("string"))
}

func TestIssueCode_Platform_CreateRace_ReusesWinnersRecord(t *testing.T) {
	ss, sms := &mockSubscriberStore{}, &mockSMSSender{}
	ss.On("GetByWhopUserID", mock.Anything, "user_abc").Return(nil, domain.ErrNotFound)
	ss.On("Create", mock.Anything, mock.AnythingOfType("*domain.Subscriber")).Return(domain.ErrConflict)
	ss.On("GetByCanonicalKey", mock.Anything, domain.ChannelPlatform, "user_abc").
		Return(&domain.Subscriber{SubscriberID: "winner", Phone: strPtr("+15551234567")}, nil)
	ss.On("SetPendingCode", mock.Anything, "winner", mock.AnythingOfType("string")).Return(nil)
	sms.On("SendSMS", mock.Anything, "+15551234567", mock.AnythingOfType("string")).Return(nil)

	svc := newService(ss, &mockChatStore{}, sms, &mockChatSender{})
	err := svc.IssueCode(context.Background(), IssueRequest{Identity: domain.PlatformIdentifier("user_abc")})

	require.NoError(t, err)
	ss.AssertCalled(t, "SetPendingCode", mock.Anything, "winner", mock.AnythingOfType("string"))
}

func TestIssueCode_Phone_DeliveryFailure_RollsBackStagedCode(t *testing.T) {
	ss, sms := &mockSubscriberStore{}, &mockSMSSender{}
	var staged string
	ss.On("GetByPhone", mock.Anything, "+15551234567").Return(&domain.Subscriber{SubscriberID: "s1"}, nil)
	ss.On("SetPendingCode", mock.Anything, "s1", mock.AnythingOfType("string")).Run(func(args mock.Arguments) {
		staged = args.String(2)
	}).Return(nil)
	ss.On("ClearPendingCode", mock.Anything, "s1", mock.AnythingOfType("string")).Return(nil)
	sms.On("SendSMS", mock.Anything, "+15551234567", mock.AnythingOfType("string")).Return(errors.New("sns unavailable"))

	svc := newService(ss, &mockChatStore{}, sms, &mockChatSender{})
	err := svc.IssueCode(context.Background(), IssueRequest{Identity: domain.PhoneIdentifier("+15551234567")})

	assert.ErrorIs(t, err, domain.ErrDelivery)
	// The rollback targets exactly the code that failed to deliver, so it
	// cannot clobber a newer code staged concurrently.
	require.NotEmpty(t, staged)
	ss.AssertCalled(t, "ClearPendingCode", mock.Anything, "s1", staged)
}

func TestIssueCode_Phone_NoSMSSender_Misconfigured(t *testing.T) {
	svc := NewService(ServiceDeps{SubscriberRepo: &mockSubscriberStore{}, ChatRepo: &mockChatStore{}, CodeLength: 6})
	err := svc.IssueCode(context.Background(), IssueRequest{Identity: domain.PhoneIdentifier("+15551234567")})
	assert.ErrorIs(t, err, domain.ErrMisconfigured)
}

func TestIssueCode_Platform_AttachesPhoneAndSends(t *testing.T) {
	ss, sms := &mockSubscriberStore{}, &mockSMSSender{}
	ss.On("GetByWhopUserID", mock.Anything, "user_abc").Return(&domain.Subscriber{SubscriberID: "s1"}, nil)
	ss.On("AttachPhone", mock.Anything, "s1", "+15551234567").Return(nil)
	ss.On("SetPendingCode", mock.Anything, "s1", mock.AnythingOfType("string")).Return(nil)
	sms.On("SendSMS", mock.Anything, "+15551234567", mock.AnythingOfType("string")).Return(nil)

	svc := newService(ss, &mockChatStore{}, sms, &mockChatSender{})
	err := svc.IssueCode(context.Background(), IssueRequest{
		Identity:    domain.PlatformIdentifier("user_abc"),
		AttachPhone: "+15551234567",
	})

	require.NoError(t, err)
	ss.AssertExpectations(t)
}

func TestIssueCode_Platform_AttachesEmail(t *testing.T) {
	ss, sms := &mockSubscriberStore{}, &mockSMSSender{}
	ss.On("GetByWhopUserID", mock.Anything, "user_abc").Return(&domain.Subscriber{
		SubscriberID: "s1",
		Phone:        strPtr("+15551234567"),
	}, nil)
	ss.On("AttachEmail", mock.Anything, "s1", "a@example.com").Return(nil)
	ss.On("SetPendingCode", mock.Anything, "s1", mock.AnythingOfType("string")).Return(nil)
	sms.On("SendSMS", mock.Anything, "+15551234567", mock.AnythingOfType("string")).Return(nil)

	svc := newService(ss, &mockChatStore{}, sms, &mockChatSender{})
	err := svc.IssueCode(context.Background(), IssueRequest{
		Identity:    domain.PlatformIdentifier("user_abc"),
		AttachEmail: "a@example.com",
	})

	require.NoError(t, err)
	ss.AssertExpectations(t)
}

func TestIssueCode_Platform_NoPhoneOnRecord_BadRequest(t *testing.T) {
	ss := &mockSubscriberStore{}
	ss.On("GetByWhopUserID", mock.Anything, "user_abc").Return(&domain.Subscriber{SubscriberID: "s1"}, nil)

	svc := newService(ss, &mockChatStore{}, &mockSMSSender{}, &mockChatSender{})
	err := svc.IssueCode(context.Background(), IssueRequest{Identity: domain.PlatformIdentifier("user_abc")})

	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestIssueCode_Chat_RequiresExistingRecord(t *testing.T) {
	cs := &mockChatStore{}
	cs.On("Get", mock.Anything, int64(42)).Return(nil, domain.ErrNotFound)

	svc := newService(&mockSubscriberStore{}, cs, &mockSMSSender{}, &mockChatSender{})
	err := svc.IssueCode(context.Background(), IssueRequest{Identity: domain.ChatIdentifier(42)})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIssueCode_Chat_SendsViaTelegram(t *testing.T) {
	cs, chat := &mockChatStore{}, &mockChatSender{}
	cs.On("Get", mock.Anything, int64(42)).Return(&domain.ChatSubscriber{ChatID: 42}, nil)
	cs.On("SetPendingCode", mock.Anything, int64(42), mock.AnythingOfType("string")).Return(nil)
	chat.On("SendMessage", mock.Anything, int64(42), mock.AnythingOfType("string")).Return(nil)

	svc := newService(&mockSubscriberStore{}, cs, &mockSMSSender{}, chat)
	err := svc.IssueCode(context.Background(), IssueRequest{Identity: domain.ChatIdentifier(42)})

	require.NoError(t, err)
	cs.AssertExpectations(t)
	chat.AssertExpectations(t)
}

func TestIssueCode_Chat_DeliveryFailure_RollsBackStagedCode(t *testing.T) {
	cs, chat := &mockChatStore{}, &mockChatSender{}
	var staged string
	cs.On("Get", mock.Anything, int64(42)).Return(&domain.ChatSubscriber{ChatID: 42}, nil)
	cs.On("SetPendingCode", mock.Anything, int64(42), mock.AnythingOfType("string")).Run(func(args mock.Arguments) {
		staged = args.String(2)
	}).Return(nil)
	cs.On("ClearPendingCode", mock.Anything, int64(42), mock.AnythingOfType("string")).Return(nil)
	chat.On("SendMessage", mock.Anything, int64(42), mock.AnythingOfType("string")).Return(errors.New("bot api down"))

	svc := newService(&mockSubscriberStore{}, cs, &mockSMSSender{}, chat)
	err := svc.IssueCode(context.Background(), IssueRequest{Identity: domain.ChatIdentifier(42)})

	assert.ErrorIs(t, err, domain.ErrDelivery)
	require.NotEmpty(t, staged)
	cs.AssertCalled(t, "ClearPendingCode", mock.Anything, int64(42), staged)
}

// --- ConfirmCode ---

func TestConfirmCode_Phone_Success(t *testing.T) {
	ss := &mockSubscriberStore{}
	ss.On("GetByPhone", mock.Anything, "+15551234567").Return(&domain.Subscriber{
		SubscriberID: "s1",
		PendingCode:  strPtr("123456"),
	}, nil)
	ss.On("MarkVerified", mock.Anything, "s1", mock.AnythingOfType("time.Time")).Return(nil)

	svc := newService(ss, &mockChatStore{}, &mockSMSSender{}, &mockChatSender{})
	id, err := svc.ConfirmCode(context.Background(), domain.PhoneIdentifier("+15551234567"), "123456")

	require.NoError(t, err)
	assert.Equal(t, domain.PhoneIdentifier("+15551234567"), id)
	ss.AssertExpectations(t)
}

func TestConfirmCode_WrongCode_InvalidNotNotFound(t *testing.T) {
	ss := &mockSubscriberStore{}
	ss.On("GetByPhone", mock.Anything, "+15551234567").Return(&domain.Subscriber{
		SubscriberID: "s1",
		PendingCode:  strPtr("123456"),
	}, nil)

	svc := newService(ss, &mockChatStore{}, &mockSMSSender{}, &mockChatSender{})
	_, err := svc.ConfirmCode(context.Background(), domain.PhoneIdentifier("+15551234567"), "000000")

	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestConfirmCode_NoStagedCode_Invalid(t *testing.T) {
	// Post-confirmation the code is cleared; a replay of the same code must fail.
	ss := &mockSubscriberStore{}
	ss.On("GetByPhone", mock.Anything, "+15551234567").Return(&domain.Subscriber{SubscriberID: "s1"}, nil)

	svc := newService(ss, &mockChatStore{}, &mockSMSSender{}, &mockChatSender{})
	_, err := svc.ConfirmCode(context.Background(), domain.PhoneIdentifier("+15551234567"), "123456")

	assert.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestConfirmCode_UnknownIdentity_NotFound(t *testing.T) {
	ss := &mockSubscriberStore{}
	ss.On("GetByPhone", mock.Anything, "+15550000000").Return(nil, domain.ErrNotFound)

	svc := newService(ss, &mockChatStore{}, &mockSMSSender{}, &mockChatSender{})
	_, err := svc.ConfirmCode(context.Background(), domain.PhoneIdentifier("+15550000000"), "123456")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConfirmCode_Chat_Success(t *testing.T) {
	cs := &mockChatStore{}
	cs.On("Get", mock.Anything, int64(42)).Return(&domain.ChatSubscriber{
		ChatID:      42,
		PendingCode: strPtr("654321"),
	}, nil)
	cs.On("MarkVerified", mock.Anything, int64(42), mock.AnythingOfType("time.Time")).Return(nil)

	svc := newService(&mockSubscriberStore{}, cs, &mockSMSSender{}, &mockChatSender{})
	id, err := svc.ConfirmCode(context.Background(), domain.ChatIdentifier(42), "654321")

	require.NoError(t, err)
	assert.Equal(t, domain.ChatIdentifier(42), id)
}

// --- generateCode ---

func TestGenerateCode_FixedLength(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9')
		}
	}
}

func TestGenerateCode_HonorsLength(t *testing.T) {
	code, err := generateCode(4)
	require.NoError(t, err)
	assert.Len(t, code, 4)
}
