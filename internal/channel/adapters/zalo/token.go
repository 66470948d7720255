package zalo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/cache"
)

const defaultTokenLifetime = time.Hour

// TokenKey is the cache key of an app's OAuth token.
func TokenKey(appID, appSecret string) string {
	return appID + "_" + appSecret
}

// accessToken picks apiToken, then accessToken, then an OAuth
// client-credentials token. force skips the cached OAuth token.
func (a *ZaloAdapter) accessToken(ctx context.Context, bot bots.BotConfig, force bool) (string, error) {
	b := bot.Zalo
	if token := strings.TrimSpace(b.APIToken); token != "" {
		return token, nil
	}
	if token := strings.TrimSpace(b.AccessToken); token != "" {
		return token, nil
	}
	appID, appSecret := strings.TrimSpace(b.AppID), strings.TrimSpace(b.AppSecret)
	if appID == "" || appSecret == "" {
		return "", fmt.Errorf("zalo bot %s has no api token and no app credentials", bot.BotID)
	}
	token, err := a.tokens.Get(ctx, TokenKey(appID, appSecret), a.fetchToken(appID, appSecret), force)
	if err != nil {
		return "", fmt.Errorf("zalo access token: %w", err)
	}
	return token, nil
}

// RefreshToken replaces the cached OAuth token of the bot's app. Bots with a
// static token are left untouched.
func (a *ZaloAdapter) RefreshToken(ctx context.Context, bot bots.BotConfig) error {
	if strings.TrimSpace(bot.Zalo.APIToken) != "" || strings.TrimSpace(bot.Zalo.AccessToken) != "" {
		return nil
	}
	_, err := a.accessToken(ctx, bot, true)
	return err
}

func (a *ZaloAdapter) fetchToken(appID, appSecret string) cache.TokenFetcher {
	return func(ctx context.Context) (cache.Token, error) {
		cfg := clientcredentials.Config{
			ClientID:     appID,
			ClientSecret: appSecret,
			TokenURL:     a.oauthURL,
			AuthStyle:    oauth2.AuthStyleInParams,
			EndpointParams: url.Values{
				"app_id":     {appID},
				"app_secret": {appSecret},
			},
		}
		tok, err := cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, a.client))
		if err != nil {
			return cache.Token{}, err
		}
		expiresAt := tok.Expiry
		if expiresAt.IsZero() {
			expiresAt = time.Now().Add(defaultTokenLifetime)
		}
		return cache.Token{Value: tok.AccessToken, ExpiresAt: expiresAt}, nil
	}
}
