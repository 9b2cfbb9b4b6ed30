package domain

import "strings"

// Channel is the out-of-band medium a code is delivered through.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// ParseChannel accepts the channel name case-insensitively.
func ParseChannel(s string) (Channel, bool) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelSMS, ChannelEmail:
		return c, true
	}
	return "", false
}
