package channel

import (
	"context"
	"net/http"
	"net/url"

	"github.com/memohai/chatgate/internal/bots"
)

// Adapter is the base interface every channel adapter must implement.
type Adapter interface {
	Type() ChannelType
	Descriptor() Descriptor
}

// Descriptor holds read-only metadata for a registered channel type.
// All behavior is expressed through the optional interfaces below.
type Descriptor struct {
	Type        ChannelType
	DisplayName string
	// Synchronous channels return the reply in the HTTP response.
	Synchronous bool
	// TextLimit is the maximum reply length in runes, 0 for none.
	TextLimit int
}

// Normalizer extracts user messages from a raw webhook body. An empty result
// means the payload carries nothing to answer. An error means the body is
// malformed.
type Normalizer interface {
	Normalize(payload []byte) ([]InboundMessage, error)
}

// Verifier checks the authenticity of a webhook body. It returns nil on a
// valid signature, ErrVerificationSkipped when the bot has no secret, and
// ErrVerificationFailed otherwise.
type Verifier interface {
	Verify(payload []byte, header http.Header, bot bots.BotConfig) error
}

// Binder reports the bot's binding to the channel.
type Binder interface {
	BindingStatus(bot bots.BotConfig) BindingStatus
}

// AliasProvider lists alternative identifiers a bot is known by on the
// channel, such as an OA id. The resolver matches hints against them.
type AliasProvider interface {
	Aliases(bot bots.BotConfig) []string
}

// Sender delivers a reply to the channel.
type Sender interface {
	Send(ctx context.Context, bot bots.BotConfig, reply OutboundReply) error
}

// Handshaker answers webhook subscription challenges.
type Handshaker interface {
	// ParseHandshake reads the challenge from the query. ok is false when the
	// request is not a handshake.
	ParseHandshake(query url.Values) (hs Handshake, ok bool)
	MatchHandshake(bot bots.BotConfig, hs Handshake) bool
	// Optimistic handshakes are answered even when no bot matches.
	Optimistic() bool
	// HandshakeReply renders the success body. A string is written as text.
	HandshakeReply(hs Handshake) any
}

// Greeter overrides the greeting tokens or the welcome text of a channel.
type Greeter interface {
	Greetings() []string
	Welcome(bot bots.BotConfig) string
}

// Apologizer localizes apology texts.
type Apologizer interface {
	Apology(kind ApologyKind) string
}

// Acknowledger renders the webhook response body for the messages that
// were accepted.
type Acknowledger interface {
	Ack(messages []InboundMessage, queued bool) any
}

// Interceptor answers payloads that must be handled synchronously and never
// reach processing.
type Interceptor interface {
	Intercept(payload []byte) (body any, ok bool)
}
