// Package zalo adapts Zalo Official Account webhooks and the OA messaging API.
package zalo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/cache"
	"github.com/memohai/chatgate/internal/channel"
	"github.com/memohai/chatgate/internal/channel/adapters/common"
	"github.com/memohai/chatgate/internal/config"
)

const Type = channel.ChannelZalo

const (
	DefaultAPIBaseURL = "https://openapi.zalo.me/v2.0"
	DefaultOAuthURL   = "https://oauth.zalo.me/v4/oa/access_token"

	// SignatureHeader carries "mac=<hex sha256(appId + body + timestamp + secret)>".
	SignatureHeader = "X-ZEvent-Signature"

	zaloMaxMessageLength = 2000
	textEvent            = "user_send_text"
	platform             = "zalo"
	// Zalo answers an expired or revoked token with this code.
	errInvalidAccessToken = -216
)

var vietnameseApologies = map[channel.ApologyKind]string{
	channel.ApologyTimeout:       "Xin lỗi, yêu cầu của bạn mất quá nhiều thời gian để xử lý. Vui lòng thử lại sau.",
	channel.ApologyRateLimit:     "Xin lỗi, hệ thống đang quá tải. Vui lòng thử lại sau vài giây.",
	channel.ApologyGeneric:       "Xin lỗi, tôi đang gặp sự cố khi xử lý tin nhắn của bạn. Vui lòng thử lại sau.",
	channel.ApologyNotConfigured: "Xin lỗi, hệ thống đang được cấu hình. Vui lòng thử lại sau.",
}

// ZaloAdapter handles OA events and replies through the OA message API.
type ZaloAdapter struct {
	logger   *slog.Logger
	client   *http.Client
	tokens   *cache.Tokens
	apiBase  string
	oauthURL string
}

// Options configures a ZaloAdapter. Empty URLs select the public endpoints.
type Options struct {
	Client     *http.Client
	Tokens     *cache.Tokens
	APIBaseURL string
	OAuthURL   string
}

func NewZaloAdapter(log *slog.Logger, opts Options) *ZaloAdapter {
	if log == nil {
		log = slog.Default()
	}
	if opts.Client == nil {
		opts.Client = common.NewHTTPClient()
	}
	if opts.Tokens == nil {
		opts.Tokens = cache.NewTokens(config.DefaultTokenMargin)
	}
	apiBase := strings.TrimRight(strings.TrimSpace(opts.APIBaseURL), "/")
	if apiBase == "" {
		apiBase = DefaultAPIBaseURL
	}
	oauthURL := strings.TrimSpace(opts.OAuthURL)
	if oauthURL == "" {
		oauthURL = DefaultOAuthURL
	}
	return &ZaloAdapter{
		logger:   log.With(slog.String("adapter", "zalo")),
		client:   opts.Client,
		tokens:   opts.Tokens,
		apiBase:  apiBase,
		oauthURL: oauthURL,
	}
}

func (a *ZaloAdapter) Type() channel.ChannelType {
	return Type
}

func (a *ZaloAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Zalo",
		TextLimit:   zaloMaxMessageLength,
	}
}

func (a *ZaloAdapter) BindingStatus(bot bots.BotConfig) channel.BindingStatus {
	b := bot.Zalo
	direct := strings.TrimSpace(b.APIToken) != "" || strings.TrimSpace(b.AccessToken) != ""
	app := strings.TrimSpace(b.AppID) != "" && strings.TrimSpace(b.AppSecret) != ""
	status := channel.BindingStatus{
		Bound:      b.Enabled || direct || strings.TrimSpace(b.AppID) != "",
		Enabled:    b.Enabled,
		Configured: direct || app,
	}
	if !status.Configured {
		status.Missing = []string{"apiToken", "appId", "appSecret"}
	}
	return status
}

// Aliases lets events without a bot hint resolve by OA id.
func (a *ZaloAdapter) Aliases(bot bots.BotConfig) []string {
	if id := strings.TrimSpace(bot.Zalo.OAID); id != "" {
		return []string{id}
	}
	return nil
}

func (a *ZaloAdapter) Apology(kind channel.ApologyKind) string {
	return vietnameseApologies[kind]
}

func (a *ZaloAdapter) Greetings() []string {
	return nil
}

func (a *ZaloAdapter) Welcome(bot bots.BotConfig) string {
	return common.VietnameseWelcome(bot)
}

// ParseHandshake reads the verify_token and challenge query parameters.
func (a *ZaloAdapter) ParseHandshake(query url.Values) (channel.Handshake, bool) {
	hs := channel.Handshake{
		Token:     strings.TrimSpace(query.Get("verify_token")),
		Challenge: strings.TrimSpace(query.Get("challenge")),
	}
	if hs.Token == "" || hs.Challenge == "" {
		return channel.Handshake{}, false
	}
	return hs, true
}

func (a *ZaloAdapter) MatchHandshake(bot bots.BotConfig, hs channel.Handshake) bool {
	return channel.VerifyToken(hs.Token, bot.Zalo.VerifyToken) == nil
}

// Optimistic is true: Zalo registration expects the challenge back even
// before the verify token is stored on the bot.
func (a *ZaloAdapter) Optimistic() bool {
	return true
}

func (a *ZaloAdapter) HandshakeReply(hs channel.Handshake) any {
	return map[string]string{
		"challenge":    hs.Challenge,
		"verify_token": hs.Token,
		"status":       "verified",
	}
}

// flexString decodes JSON strings and numbers alike.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(raw)
	return nil
}

type zaloEvent struct {
	AppID     flexString `json:"app_id"`
	EventName string     `json:"event_name"`
	Event     string     `json:"event"`
	Timestamp flexString `json:"timestamp"`
	OAID      flexString `json:"oa_id"`
	UserID    flexString `json:"user_id"`
	Sender    struct {
		ID flexString `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID flexString `json:"id"`
	} `json:"recipient"`
	Message struct {
		MsgID string `json:"msg_id"`
		Text  string `json:"text"`
	} `json:"message"`
}

func (e zaloEvent) name() string {
	if e.EventName != "" {
		return e.EventName
	}
	return e.Event
}

func (e zaloEvent) senderID() string {
	if id := strings.TrimSpace(string(e.Sender.ID)); id != "" {
		return id
	}
	return strings.TrimSpace(string(e.UserID))
}

func (e zaloEvent) oaID() string {
	if id := strings.TrimSpace(string(e.Recipient.ID)); id != "" {
		return id
	}
	return strings.TrimSpace(string(e.OAID))
}

// Normalize keeps user_send_text events. The OA id becomes the bot hint.
func (a *ZaloAdapter) Normalize(payload []byte) ([]channel.InboundMessage, error) {
	var ev zaloEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode zalo event: %w", err)
	}
	if ev.name() != textEvent {
		return nil, nil
	}
	userID := ev.senderID()
	text := strings.TrimSpace(ev.Message.Text)
	if userID == "" || text == "" {
		return nil, nil
	}
	oaID := ev.oaID()
	msg := channel.InboundMessage{
		Channel:   Type,
		ID:        ev.Message.MsgID,
		SenderID:  userID,
		Target:    userID,
		Text:      text,
		BotHint:   oaID,
		SessionID: fmt.Sprintf("zalo_%s_%s", oaID, userID),
		Meta:      map[string]string{"oa_id": oaID, "app_id": string(ev.AppID)},
	}
	if ms, err := strconv.ParseInt(string(ev.Timestamp), 10, 64); err == nil {
		msg.ReceivedAt = time.UnixMilli(ms).UTC()
	}
	return []channel.InboundMessage{msg}, nil
}

// Verify checks the event MAC computed with the OA secret key.
func (a *ZaloAdapter) Verify(payload []byte, header http.Header, bot bots.BotConfig) error {
	secret := strings.TrimSpace(bot.Zalo.SecurityToken)
	if secret == "" {
		return channel.ErrVerificationSkipped
	}
	var ev zaloEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return channel.ErrVerificationFailed
	}
	got := strings.TrimPrefix(strings.TrimSpace(header.Get(SignatureHeader)), "mac=")
	want := Sign(string(ev.AppID), payload, string(ev.Timestamp), secret)
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return channel.ErrVerificationFailed
	}
	return nil
}

// Sign computes the hex event MAC.
func Sign(appID string, payload []byte, timestamp, secret string) string {
	sum := sha256.Sum256([]byte(appID + string(payload) + timestamp + secret))
	return hex.EncodeToString(sum[:])
}

type apiResponse struct {
	Error   int             `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// APIError is a non-zero error code in a Zalo response body.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zalo API error %d: %s", e.Code, e.Message)
}

func (a *ZaloAdapter) Send(ctx context.Context, bot bots.BotConfig, reply channel.OutboundReply) error {
	to := strings.TrimSpace(reply.Target)
	if to == "" {
		return fmt.Errorf("zalo recipient is required")
	}
	body := map[string]any{
		"recipient": map[string]string{"user_id": to},
		"message":   map[string]string{"text": channel.TruncateText(reply.Text, zaloMaxMessageLength)},
	}
	_, err := a.call(ctx, bot, func(token string) (*http.Request, error) {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBase+"/oa/message", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("access_token", token)
		return req, nil
	})
	return err
}

// OAInfo describes the Official Account behind the bot's credentials.
type OAInfo struct {
	OAID   string `json:"oaId"`
	Name   string `json:"oaName"`
	Avatar string `json:"avatar,omitempty"`
}

func (a *ZaloAdapter) OAInfo(ctx context.Context, bot bots.BotConfig) (OAInfo, error) {
	resp, err := a.call(ctx, bot, func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiBase+"/oa/getoa", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("access_token", token)
		return req, nil
	})
	if err != nil {
		return OAInfo{}, err
	}
	var data struct {
		OAID   flexString `json:"oa_id"`
		Name   string     `json:"name"`
		Avatar string     `json:"avatar"`
	}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return OAInfo{}, fmt.Errorf("decode zalo oa info: %w", err)
		}
	}
	return OAInfo{OAID: string(data.OAID), Name: data.Name, Avatar: data.Avatar}, nil
}

// call runs an authenticated request once. A rejected token is returned as
// an *APIError; the cached token is only replaced on expiry or by RefreshToken.
func (a *ZaloAdapter) call(ctx context.Context, bot bots.BotConfig, build func(token string) (*http.Request, error)) (apiResponse, error) {
	token, err := a.accessToken(ctx, bot, false)
	if err != nil {
		return apiResponse{}, err
	}
	req, err := build(token)
	if err != nil {
		return apiResponse{}, fmt.Errorf("build zalo request: %w", err)
	}
	var resp apiResponse
	if err := common.Do(a.client, platform, req, &resp); err != nil {
		return apiResponse{}, err
	}
	if resp.Error != 0 {
		if resp.Error == errInvalidAccessToken {
			a.logger.Warn("zalo access token rejected", slog.String("bot_id", bot.BotID))
		}
		return resp, &APIError{Code: resp.Error, Message: resp.Message}
	}
	return resp, nil
}
