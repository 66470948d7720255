package bots

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRow implements pgx.Row with a custom scan function.
type fakeRow struct {
	scanFunc func(dest ...any) error
}

func (r *fakeRow) Scan(dest ...any) error {
	return r.scanFunc(dest...)
}

// fakeRows implements pgx.Rows over in-memory documents.
type fakeRows struct {
	docs [][]byte
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.docs) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	*dest[0].(*[]byte) = r.docs[r.idx-1]
	*dest[1].(*time.Time) = time.Unix(100, 0).UTC()
	return nil
}

// fakeDBTX implements db.DBTX for unit testing.
type fakeDBTX struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	rows         *fakeRows
	execArgs     []any
}

func (d *fakeDBTX) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	d.execArgs = args
	return pgconn.CommandTag{}, nil
}

func (d *fakeDBTX) Query(context.Context, string, ...any) (pgx.Rows, error) {
	if d.rows == nil {
		return &fakeRows{}, nil
	}
	return d.rows, nil
}

func (d *fakeDBTX) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if d.queryRowFunc != nil {
		return d.queryRowFunc(ctx, sql, args...)
	}
	return &fakeRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func TestServiceGetNotFound(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &fakeDBTX{})
	_, err := svc.Get(context.Background(), "missing")
	if !errors.Is(err, ErrBotNotFound) {
		t.Fatalf("expected ErrBotNotFound, got %v", err)
	}
}

func TestServiceGetDecodesDocument(t *testing.T) {
	t.Parallel()

	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	conn := &fakeDBTX{
		queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
			if args[0] != "b1" {
				t.Fatalf("unexpected bot id arg: %v", args[0])
			}
			return &fakeRow{scanFunc: func(dest ...any) error {
				*dest[0].(*[]byte) = []byte(`{"botId":"b1","name":"Shop","faqs":["Hours: 9-5"],"telegram":{"enabled":true,"botToken":"tok"}}`)
				*dest[1].(*time.Time) = updated
				return nil
			}}
		},
	}
	cfg, err := NewService(nil, conn).Get(context.Background(), "b1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "Shop" || len(cfg.FAQs) != 1 || !cfg.Telegram.Enabled || cfg.Telegram.BotToken != "tok" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !cfg.UpdatedAt.Equal(updated) {
		t.Fatalf("expected updated_at from row, got %v", cfg.UpdatedAt)
	}
}

func TestServiceListSkipsCorruptDocuments(t *testing.T) {
	t.Parallel()

	conn := &fakeDBTX{rows: &fakeRows{docs: [][]byte{
		[]byte(`{"botId":"a"}`),
		[]byte(`{not json`),
		[]byte(`{"botId":"c"}`),
	}}}
	items, err := NewService(nil, conn).List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0].BotID != "a" || items[1].BotID != "c" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestServiceUpsertEncodesDocument(t *testing.T) {
	t.Parallel()

	conn := &fakeDBTX{}
	err := NewService(nil, conn).Upsert(context.Background(), BotConfig{BotID: "b1", UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conn.execArgs) != 3 || conn.execArgs[0] != "b1" || conn.execArgs[1] != "u1" {
		t.Fatalf("unexpected exec args: %v", conn.execArgs)
	}
}

func TestMemoryStoreListIsOrdered(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(BotConfig{BotID: "z"}, BotConfig{BotID: "a"}, BotConfig{BotID: "m"})
	items, _ := store.List(context.Background())
	if items[0].BotID != "a" || items[1].BotID != "m" || items[2].BotID != "z" {
		t.Fatalf("unexpected order: %+v", items)
	}
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrBotNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestParseSeed(t *testing.T) {
	t.Parallel()

	seed := []byte(`
bots:
  - botId: b1
    userId: u1
    name: Shop
    faqs:
      - "Hours: 9-5"
    structuredData:
      - id: s1
        type: pricing
        enabled: true
        data: {plan: basic, price: 10}
    telegram:
      enabled: true
      botToken: "123:abc"
`)
	items, err := ParseSeed(seed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one bot, got %d", len(items))
	}
	cfg := items[0]
	if cfg.Telegram.BotToken != "123:abc" || cfg.FAQs[0] != "Hours: 9-5" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if string(cfg.StructuredData[0].Data) != `{"plan":"basic","price":10}` {
		t.Fatalf("unexpected structured data: %s", cfg.StructuredData[0].Data)
	}
}

func TestParseSeedRequiresBotID(t *testing.T) {
	t.Parallel()

	if _, err := ParseSeed([]byte("bots:\n  - name: nameless\n")); err == nil {
		t.Fatalf("expected error for missing botId")
	}
}

func TestWelcomeDefault(t *testing.T) {
	t.Parallel()

	if got := (BotConfig{}).Welcome(); got != DefaultWelcomeMessage {
		t.Fatalf("unexpected welcome: %q", got)
	}
	if got := (BotConfig{WelcomeMessage: " Hi there "}).Welcome(); got != "Hi there" {
		t.Fatalf("unexpected welcome: %q", got)
	}
}
