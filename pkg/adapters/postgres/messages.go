// Package postgres implements a durable ports.MessageLog on Postgres through GORM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/google/uuid"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// MessageLog implements ports.MessageLog.
type MessageLog struct {
	db *gorm.DB
}

// Open connects to Postgres with dsn and migrates the chat_messages table.
func Open(dsn string) (*MessageLog, error) {
	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db)
}

// New wraps an open connection and migrates the chat_messages table.
func New(db *gorm.DB) (*MessageLog, error) {
	if err := db.AutoMigrate(&ChatMessage{}); err != nil {
		return nil, fmt.Errorf("migrate chat_messages: %w", err)
	}
	return &MessageLog{db: db}, nil
}

// Close closes the underlying connection pool.
func (l *MessageLog) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append inserts msg. Messages without an ID get a generated one.
func (l *MessageLog) Append(ctx context.Context, msg *domain.ChatMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = "local-" + uuid.NewString()
	}
	row, err := fromDomain(msg)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	err = l.db.WithContext(ctx).Create(row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateMessage, msg.MessageID)
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// LastOutgoing returns the newest outgoing message for phone.
func (l *MessageLog) LastOutgoing(ctx context.Context, phone string) (*domain.ChatMessage, error) {
	var row ChatMessage
	err := l.db.WithContext(ctx).
		Where("phone = ? AND direction = ?", phone, domain.DirectionOutgoing).
		Order("timestamp desc, id desc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no outgoing message for %s", domain.ErrMessageNotFound, phone)
	}
	if err != nil {
		return nil, err
	}
	m := row.toDomain()
	return &m, nil
}

// UpdateStatus sets the status of a logged message.
func (l *MessageLog) UpdateStatus(ctx context.Context, messageID, status string) error {
	res := l.db.WithContext(ctx).
		Model(&ChatMessage{}).
		Where("message_id = ?", messageID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrMessageNotFound, messageID)
	}
	return nil
}

// History returns up to limit messages for phone, oldest first.
func (l *MessageLog) History(ctx context.Context, phone string, limit int) ([]domain.ChatMessage, error) {
	q := l.db.WithContext(ctx).Where("phone = ?", phone).Order("timestamp desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []ChatMessage
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]domain.ChatMessage, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = rows[i].toDomain()
	}
	return out, nil
}

type conversationRow struct {
	Phone           string
	LastMessageTime time.Time
	UnreadCount     int
}

type phoneValue struct {
	Phone string
	Value string
}

// Conversations summarizes the log per contact, most recent first.
func (l *MessageLog) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	db := l.db.WithContext(ctx)

	var rows []conversationRow
	err := db.Model(&ChatMessage{}).
		Select("phone, MAX(timestamp) AS last_message_time, COUNT(*) FILTER (WHERE direction = ? AND status <> ?) AS unread_count",
			domain.DirectionIncoming, domain.StatusRead).
		Group("phone").
		Order("last_message_time DESC, phone").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	var last []phoneValue
	err = db.Raw(`SELECT DISTINCT ON (phone) phone, text AS value FROM chat_messages
		ORDER BY phone, timestamp DESC, id DESC`).Scan(&last).Error
	if err != nil {
		return nil, fmt.Errorf("last messages: %w", err)
	}
	var names []phoneValue
	err = db.Raw(`SELECT DISTINCT ON (phone) phone, metadata->>'contact_name' AS value FROM chat_messages
		WHERE COALESCE(metadata->>'contact_name', '') <> ''
		ORDER BY phone, timestamp DESC, id DESC`).Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("contact names: %w", err)
	}

	lastText := index(last)
	contact := index(names)
	out := make([]domain.Conversation, len(rows))
	for i, r := range rows {
		out[i] = domain.Conversation{
			Phone:           r.Phone,
			ContactName:     contact[r.Phone],
			LastMessage:     lastText[r.Phone],
			LastMessageTime: r.LastMessageTime,
			UnreadCount:     r.UnreadCount,
		}
	}
	return out, nil
}

func index(values []phoneValue) map[string]string {
	m := make(map[string]string, len(values))
	for _, v := range values {
		m[v.Phone] = v.Value
	}
	return m
}

// MarkRead marks the unread incoming messages of phone as read.
func (l *MessageLog) MarkRead(ctx context.Context, phone string) (int, error) {
	res := l.db.WithContext(ctx).
		Model(&ChatMessage{}).
		Where("phone = ? AND direction = ? AND status <> ?", phone, domain.DirectionIncoming, domain.StatusRead).
		Update("status", domain.StatusRead)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// UnreadCount counts unread incoming messages.
func (l *MessageLog) UnreadCount(ctx context.Context) (int, error) {
	var n int64
	err := l.db.WithContext(ctx).
		Model(&ChatMessage{}).
		Where("direction = ? AND status <> ?", domain.DirectionIncoming, domain.StatusRead).
		Count(&n).Error
	return int(n), err
}

// Search returns up to limit messages containing query, newest first.
func (l *MessageLog) Search(ctx context.Context, query, phone string, limit int) ([]domain.ChatMessage, error) {
	q := l.db.WithContext(ctx).
		Where("text ILIKE ?", "%"+likeEscaper.Replace(query)+"%").
		Order("timestamp desc, id desc")
	if phone != "" {
		q = q.Where("phone = ?", phone)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []ChatMessage
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ChatMessage, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// DeleteConversation drops every message of phone.
func (l *MessageLog) DeleteConversation(ctx context.Context, phone string) (int, error) {
	res := l.db.WithContext(ctx).Where("phone = ?", phone).Delete(&ChatMessage{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
