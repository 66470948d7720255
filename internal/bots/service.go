package bots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/memohai/chatgate/internal/db"
)

const (
	getBotSQL    = `SELECT document, updated_at FROM bot_settings WHERE bot_id = $1`
	listBotsSQL  = `SELECT document, updated_at FROM bot_settings ORDER BY bot_id`
	upsertBotSQL = `INSERT INTO bot_settings (bot_id, user_id, document, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (bot_id) DO UPDATE SET user_id = EXCLUDED.user_id, document = EXCLUDED.document, updated_at = now()`
)

// Service reads bot documents from the bot_settings table.
type Service struct {
	conn   db.DBTX
	logger *slog.Logger
}

func NewService(log *slog.Logger, conn db.DBTX) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		conn:   conn,
		logger: log.With(slog.String("service", "bots")),
	}
}

func (s *Service) Get(ctx context.Context, botID string) (BotConfig, error) {
	if s.conn == nil {
		return BotConfig{}, fmt.Errorf("bots store not configured")
	}
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return BotConfig{}, fmt.Errorf("%w: empty id", ErrBotNotFound)
	}
	var (
		payload   []byte
		updatedAt time.Time
	)
	if err := s.conn.QueryRow(ctx, getBotSQL, botID).Scan(&payload, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BotConfig{}, fmt.Errorf("%w: %s", ErrBotNotFound, botID)
		}
		return BotConfig{}, fmt.Errorf("get bot %s: %w", botID, err)
	}
	return decodeDocument(payload, updatedAt)
}

// List returns every bot ordered by id. Documents that fail to decode are
// skipped and logged so a single corrupt row does not hide the others.
func (s *Service) List(ctx context.Context) ([]BotConfig, error) {
	if s.conn == nil {
		return nil, fmt.Errorf("bots store not configured")
	}
	rows, err := s.conn.Query(ctx, listBotsSQL)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()
	items := make([]BotConfig, 0)
	for rows.Next() {
		var (
			payload   []byte
			updatedAt time.Time
		)
		if err := rows.Scan(&payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		cfg, err := decodeDocument(payload, updatedAt)
		if err != nil {
			s.logger.Warn("skip undecodable bot document", slog.Any("error", err))
			continue
		}
		items = append(items, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	return items, nil
}

func (s *Service) Upsert(ctx context.Context, cfg BotConfig) error {
	if s.conn == nil {
		return fmt.Errorf("bots store not configured")
	}
	if strings.TrimSpace(cfg.BotID) == "" {
		return fmt.Errorf("bot id is required")
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode bot %s: %w", cfg.BotID, err)
	}
	if _, err := s.conn.Exec(ctx, upsertBotSQL, cfg.BotID, cfg.UserID, payload); err != nil {
		return fmt.Errorf("upsert bot %s: %w", cfg.BotID, err)
	}
	return nil
}

func decodeDocument(payload []byte, updatedAt time.Time) (BotConfig, error) {
	var cfg BotConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return BotConfig{}, fmt.Errorf("decode bot document: %w", err)
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = updatedAt
	}
	return cfg, nil
}
