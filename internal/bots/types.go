package bots

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultWelcomeMessage is used when a bot has no welcome text configured.
const DefaultWelcomeMessage = "Hello! How can I help you today?"

// BotConfig is the configuration snapshot of a bot as written by the
// configuration service. The gateway only reads it.
type BotConfig struct {
	BotID          string             `json:"botId"`
	UserID         string             `json:"userId"`
	Name           string             `json:"name"`
	WelcomeMessage string             `json:"welcomeMessage,omitempty"`
	FAQs           []string           `json:"faqs,omitempty"`
	Documents      []DocumentSource   `json:"documents,omitempty"`
	URLs           []URLSource        `json:"urls,omitempty"`
	StructuredData []StructuredSource `json:"structuredData,omitempty"`
	Categories     []string           `json:"categories,omitempty"`
	Model          string             `json:"model,omitempty"`
	APIKey         string             `json:"apiKey,omitempty"`

	Web       WebBinding       `json:"web"`
	Telegram  TelegramBinding  `json:"telegram"`
	Messenger MessengerBinding `json:"messenger"`
	WhatsApp  WhatsAppBinding  `json:"whatsapp"`
	Discord   DiscordBinding   `json:"discord"`
	Zalo      ZaloBinding      `json:"zalo"`

	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Welcome returns the configured welcome text or the default one.
func (b BotConfig) Welcome() string {
	if text := strings.TrimSpace(b.WelcomeMessage); text != "" {
		return text
	}
	return DefaultWelcomeMessage
}

// KnowledgeBase returns the knowledge sources of the bot.
func (b BotConfig) KnowledgeBase() KnowledgeBase {
	return KnowledgeBase{
		FAQs:           b.FAQs,
		Documents:      b.Documents,
		URLs:           b.URLs,
		StructuredData: b.StructuredData,
	}
}

// KnowledgeBase groups the sources used to build the completion context.
type KnowledgeBase struct {
	FAQs           []string
	Documents      []DocumentSource
	URLs           []URLSource
	StructuredData []StructuredSource
}

// DocumentKind tags extracted documents.
type DocumentKind string

const (
	DocumentPDF  DocumentKind = "pdf"
	DocumentDOCX DocumentKind = "docx"
	DocumentText DocumentKind = "txt"
)

type DocumentSource struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Type       DocumentKind `json:"type"`
	Content    string       `json:"content"`
	Enabled    bool         `json:"enabled"`
	Category   string       `json:"category,omitempty"`
	Tags       []string     `json:"tags,omitempty"`
	UploadedAt time.Time    `json:"uploadedAt,omitempty"`
}

type URLSource struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Enabled   bool      `json:"enabled"`
	Category  string    `json:"category,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	ScrapedAt time.Time `json:"scrapedAt,omitempty"`
}

// StructuredKind tags structured-data records.
type StructuredKind string

const (
	StructuredProducts StructuredKind = "products"
	StructuredPricing  StructuredKind = "pricing"
	StructuredServices StructuredKind = "services"
	StructuredCatalog  StructuredKind = "catalog"
)

type StructuredSource struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     StructuredKind  `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	Enabled  bool            `json:"enabled"`
	Category string          `json:"category,omitempty"`
	Tags     []string        `json:"tags,omitempty"`
}

// WebhookMeta records where the channel webhook was last registered.
type WebhookMeta struct {
	WebhookURL   string    `json:"webhookUrl,omitempty"`
	WebhookSetAt time.Time `json:"webhookSetAt,omitempty"`
}

type WebBinding struct {
	Enabled bool   `json:"enabled"`
	Secret  string `json:"secret,omitempty"`
}

type TelegramBinding struct {
	Enabled     bool   `json:"enabled"`
	BotToken    string `json:"botToken,omitempty"`
	BotUsername string `json:"botUsername,omitempty"`
	SecretToken string `json:"secretToken,omitempty"`
	WebhookMeta
}

type MessengerBinding struct {
	Enabled         bool   `json:"enabled"`
	PageAccessToken string `json:"pageAccessToken,omitempty"`
	VerifyToken     string `json:"verifyToken,omitempty"`
	AppSecret       string `json:"appSecret,omitempty"`
	PageID          string `json:"pageId,omitempty"`
	PageName        string `json:"pageName,omitempty"`
	WebhookMeta
}

type WhatsAppBinding struct {
	Enabled           bool   `json:"enabled"`
	AccessToken       string `json:"accessToken,omitempty"`
	PhoneNumberID     string `json:"phoneNumberId,omitempty"`
	BusinessAccountID string `json:"businessAccountId,omitempty"`
	VerifyToken       string `json:"verifyToken,omitempty"`
	AppSecret         string `json:"appSecret,omitempty"`
	PhoneNumber       string `json:"phoneNumber,omitempty"`
	VerifiedName      string `json:"verifiedName,omitempty"`
	WebhookMeta
}

type DiscordBinding struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"botToken,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
	GuildID   string `json:"guildId,omitempty"`
	PublicKey string `json:"publicKey,omitempty"`
	WebhookMeta
}

type ZaloBinding struct {
	Enabled       bool   `json:"enabled"`
	AppID         string `json:"appId,omitempty"`
	AppSecret     string `json:"appSecret,omitempty"`
	AccessToken   string `json:"accessToken,omitempty"`
	APIToken      string `json:"apiToken,omitempty"`
	SecurityToken string `json:"securityToken,omitempty"`
	OAID          string `json:"oaId,omitempty"`
	OAName        string `json:"oaName,omitempty"`
	VerifyToken   string `json:"verifyToken,omitempty"`
	WebhookMeta
}
