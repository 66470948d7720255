package common

import (
	"net/url"
	"strings"

	"github.com/memohai/chatgate/internal/channel"
)

// ParseHubHandshake reads a Graph API subscription challenge
// (hub.mode, hub.verify_token, hub.challenge).
func ParseHubHandshake(query url.Values) (channel.Handshake, bool) {
	hs := channel.Handshake{
		Mode:      strings.TrimSpace(query.Get("hub.mode")),
		Token:     query.Get("hub.verify_token"),
		Challenge: query.Get("hub.challenge"),
	}
	if hs.Mode == "" && hs.Token == "" && hs.Challenge == "" {
		return channel.Handshake{}, false
	}
	return hs, true
}

// MatchHubHandshake accepts a subscribe request whose token equals verifyToken.
func MatchHubHandshake(hs channel.Handshake, verifyToken string) bool {
	if hs.Mode != "subscribe" {
		return false
	}
	return channel.VerifyToken(hs.Token, verifyToken) == nil
}
