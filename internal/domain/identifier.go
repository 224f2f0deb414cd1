package domain

import "strconv"

// Channel is the communication medium a subscriber is addressed through.
// It determines which storage partition the canonical key lives in.
type Channel string

const (
	// ChannelPhone addresses a subscriber by E.164 phone number over SMS.
	ChannelPhone Channel = "phone"
	// ChannelChat addresses a subscriber by Telegram chat id.
	ChannelChat Channel = "telegram"
	// ChannelPlatform addresses a subscriber by their Whop account id.
	ChannelPlatform Channel = "whop"
)

// Identifier is a channel-tagged canonical subscriber key. It is carried
// end-to-end from resolution through token minting to authorization, so the
// channel never has to be re-derived from the shape of an opaque string.
type Identifier struct {
	Channel Channel `json:"channel"`
	Key     string  `json:"key"`
}

func PhoneIdentifier(e164 string) Identifier {
	return Identifier{Channel: ChannelPhone, Key: e164}
}

func ChatIdentifier(chatID int64) Identifier {
	return Identifier{Channel: ChannelChat, Key: strconv.FormatInt(chatID, 10)}
}

func PlatformIdentifier(whopUserID string) Identifier {
	return Identifier{Channel: ChannelPlatform, Key: whopUserID}
}

// ChatID parses the key of a chat identifier. Returns 0 and false when the
// identifier is not a chat identifier or the key is not numeric.
func (i Identifier) ChatID() (int64, bool) {
	if i.Channel != ChannelChat {
		return 0, false
	}
	n, err := strconv.ParseInt(i.Key, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsZero reports whether the identifier carries no identity.
func (i Identifier) IsZero() bool {
	return i.Channel == "" && i.Key == ""
}
