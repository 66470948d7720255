package web

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/channel"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	msgs, err := NewWebAdapter().Normalize([]byte(`{"botId":" b1 ","message":" hello ","sessionId":"s1"}`))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "b1", msgs[0].BotHint)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, "s1", msgs[0].SessionID)
	assert.Equal(t, channel.ChannelWeb, msgs[0].Channel)

	_, err = NewWebAdapter().Normalize([]byte(`{`))
	assert.Error(t, err)
}

func TestVerifyOptionalSecret(t *testing.T) {
	t.Parallel()

	adapter := NewWebAdapter()
	body := []byte(`{"botId":"b1","message":"hi"}`)
	bot := bots.BotConfig{BotID: "b1"}
	assert.ErrorIs(t, adapter.Verify(body, http.Header{}, bot), channel.ErrVerificationSkipped)

	bot.Web.Secret = "w"
	header := http.Header{}
	header.Set(SignatureHeader, channel.SignHub(body, "w"))
	assert.NoError(t, adapter.Verify(body, header, bot))
	assert.ErrorIs(t, adapter.Verify(body, http.Header{}, bot), channel.ErrVerificationFailed)
}

func TestDescriptor(t *testing.T) {
	t.Parallel()

	adapter := NewWebAdapter()
	assert.True(t, adapter.Descriptor().Synchronous)
	assert.True(t, adapter.BindingStatus(bots.BotConfig{}).Usable())
}
