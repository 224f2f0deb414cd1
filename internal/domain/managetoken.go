package domain

import "time"

// ManageToken is an opaque bearer credential granting preference read/write
// for one resolved identity. Rows are immutable after creation and expire
// lazily: validity is checked against ExpiresAt on every read, and nothing
// deletes a row at expiry (the table's TTL sweep is storage hygiene only).
//
// SubscriberKey is a weak reference: the subscriber record is looked up on
// every authorization and may have been deleted independently of the token.
type ManageToken struct {
	Token         string    `json:"token" dynamodbav:"token"`
	Channel       Channel   `json:"channel" dynamodbav:"channel"`
	SubscriberKey string    `json:"subscriber_identifier" dynamodbav:"subscriber_identifier"`
	ExpiresAt     int64     `json:"expires_at" dynamodbav:"expires_at"` // Unix seconds, also the TTL attribute
	CreatedAt     time.Time `json:"created" dynamodbav:"created_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
// The comparison is strict with no grace window.
func (t *ManageToken) Expired(now time.Time) bool {
	return now.UTC().Unix() >= t.ExpiresAt
}

// Identity rebuilds the channel-tagged identifier the token was bound to.
func (t *ManageToken) Identity() Identifier {
	return Identifier{Channel: t.Channel, Key: t.SubscriberKey}
}
