package domain

import "time"

// Subscriber is a record in the phone/platform partition. A single record may
// carry both a phone number and a Whop account id (a Whop user who verified
// their phone); each is unique within the partition via its own GSI.
type Subscriber struct {
	SubscriberID string     `json:"id" dynamodbav:"subscriber_id"`
	Phone        *string    `json:"phone,omitempty" dynamodbav:"phone"`
	WhopUserID   *string    `json:"whop_user_id,omitempty" dynamodbav:"whop_user_id"`
	Email        *string    `json:"email,omitempty" dynamodbav:"email"`
	PendingCode  *string    `json:"-" dynamodbav:"pending_code"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty" dynamodbav:"verified_at"`
	Alerts       []string   `json:"alerts" dynamodbav:"alerts"`
	CreatedAt    time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// ChatSubscriber is a record in the chat partition, keyed by Telegram chat id.
type ChatSubscriber struct {
	ChatID      int64      `json:"chat_id" dynamodbav:"chat_id"`
	PendingCode *string    `json:"-" dynamodbav:"pending_code"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty" dynamodbav:"verified_at"`
	Alerts      []string   `json:"alerts" dynamodbav:"alerts"`
	CreatedAt   time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// Verified reports whether the subscriber has proven control of their channel.
// Only verified subscribers are actionable for alert delivery.
func (s *Subscriber) Verified() bool { return s.VerifiedAt != nil }

func (c *ChatSubscriber) Verified() bool { return c.VerifiedAt != nil }
