package tracking

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/memohai/chatgate/internal/db"
)

const insertRecordSQL = `INSERT INTO conversation_records
(id, user_id, bot_id, channel, message, response, session_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// PGStore writes records to the conversation_records table.
type PGStore struct {
	conn db.DBTX
}

func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{conn: conn}
}

func (s *PGStore) Insert(ctx context.Context, rec Record) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("invalid record id %q: %w", rec.ID, err)
	}
	if _, err := s.conn.Exec(ctx, insertRecordSQL,
		id, rec.UserID, rec.BotID, rec.Channel, rec.Message, rec.Response, rec.SessionID, rec.Timestamp,
	); err != nil {
		return fmt.Errorf("insert conversation record: %w", err)
	}
	return nil
}

// MemoryStore keeps records in memory.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of everything inserted so far.
func (s *MemoryStore) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}
