package store

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"chatd/pkg/types"
)

// Store is the durable persistence adapter for users, sessions, messages
// and named model configs. It is safe for concurrent use; atomicity for
// the two-message exchange unit is provided here, not by callers.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the SQLite database at path and runs
// migrations. Use ":memory:" for an ephemeral store.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, persistErr("open", err)
	}
	// SQLite does not enforce FK constraints unless asked.
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, persistErr("pragma", err)
	}
	if err := db.AutoMigrate(&User{}, &ChatSession{}, &ChatMessage{}, &ModelConfigRecord{}); err != nil {
		return nil, persistErr("migrate", err)
	}
	log.Debug().Str("path", path).Msg("store opened")
	return &Store{db: db, log: log}, nil
}

// EnsureUser returns the user with the given id, creating the row if absent.
// An empty id gets a generated one.
func (s *Store) EnsureUser(ctx context.Context, id string) (User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	u := User{ID: id}
	if err := s.db.WithContext(ctx).FirstOrCreate(&u, User{ID: id}).Error; err != nil {
		return User{}, persistErr("ensure user", err)
	}
	return u, nil
}

// GetUser fetches a user row; the bool is false when it does not exist.
func (s *Store) GetUser(ctx context.Context, id string) (User, bool, error) {
	var u User
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, persistErr("get user", err)
	}
	return u, true, nil
}

// CreateSession inserts a new session row owned by userID.
func (s *Store) CreateSession(ctx context.Context, userID string) (ChatSession, error) {
	sess := ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return ChatSession{}, persistErr("create session", err)
	}
	return sess, nil
}

// GetSession fetches a session row; the bool is false when it does not exist.
func (s *Store) GetSession(ctx context.Context, id string) (ChatSession, bool, error) {
	var sess ChatSession
	err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ChatSession{}, false, nil
	}
	if err != nil {
		return ChatSession{}, false, persistErr("get session", err)
	}
	return sess, true, nil
}

// ListSessionsByUser returns userID's sessions, most recently active first.
// A session with no messages yet sorts by its creation time: the sort key
// is COALESCE(last_message_at, created_at) DESC.
func (s *Store) ListSessionsByUser(ctx context.Context, userID string) ([]ChatSession, error) {
	var out []ChatSession
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("COALESCE(last_message_at, created_at) DESC").
		Find(&out).Error
	if err != nil {
		return nil, persistErr("list sessions", err)
	}
	return out, nil
}

// ListMessages returns a session's messages in timestamp order; insertion
// order breaks ties so an exchange always reads user-then-assistant.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	var out []ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, persistErr("list messages", err)
	}
	return out, nil
}

// AppendExchange commits one user/assistant pair as a single transaction
// and bumps the session's last_message_at to the assistant timestamp.
// Either both messages land or neither does.
func (s *Store) AppendExchange(ctx context.Context, sessionID string, userMsg, assistantMsg types.ChatMessage) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows := []ChatMessage{
			{SessionID: sessionID, Role: userMsg.Role, Content: userMsg.Content, Timestamp: userMsg.Timestamp},
			{SessionID: sessionID, Role: assistantMsg.Role, Content: assistantMsg.Content, Timestamp: assistantMsg.Timestamp},
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		res := tx.Model(&ChatSession{}).
			Where("id = ?", sessionID).
			Update("last_message_at", assistantMsg.Timestamp)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return persistErr("append exchange", err)
	}
	return nil
}

// DeleteSession removes a session and all of its messages. Deleting a
// session that does not exist is a no-op, not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&ChatSession{}).Error
	})
	if err != nil {
		return persistErr("delete session", err)
	}
	return nil
}

// SaveModelConfig upserts a named config, keyed by its unique name.
func (s *Store) SaveModelConfig(ctx context.Context, cfg types.ModelConfig) error {
	rec := ModelConfigRecord{
		Name:            cfg.Name,
		ModelPath:       cfg.ModelPath,
		ContextWindow:   cfg.ContextWindow,
		MaxTokens:       cfg.MaxTokens,
		Temperature:     cfg.Temperature,
		DoSample:        cfg.DoSample,
		TopP:            cfg.TopP,
		TopK:            cfg.TopK,
		DType:           cfg.DType,
		TrustRemoteCode: cfg.TrustRemoteCode,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"model_path", "context_window", "max_tokens", "temperature",
			"do_sample", "top_p", "top_k", "d_type", "trust_remote_code",
		}),
	}).Create(&rec).Error
	if err != nil {
		return persistErr("save model config", err)
	}
	return nil
}

// GetModelConfig fetches a named config; the bool is false when absent.
func (s *Store) GetModelConfig(ctx context.Context, name string) (types.ModelConfig, bool, error) {
	var rec ModelConfigRecord
	err := s.db.WithContext(ctx).First(&rec, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ModelConfig{}, false, nil
	}
	if err != nil {
		return types.ModelConfig{}, false, persistErr("get model config", err)
	}
	return types.ModelConfig{
		Name:            rec.Name,
		ModelPath:       rec.ModelPath,
		ContextWindow:   rec.ContextWindow,
		MaxTokens:       rec.MaxTokens,
		Temperature:     rec.Temperature,
		DoSample:        rec.DoSample,
		TopP:            rec.TopP,
		TopK:            rec.TopK,
		DType:           rec.DType,
		TrustRemoteCode: rec.TrustRemoteCode,
	}, true, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return persistErr("close", err)
	}
	return db.Close()
}
