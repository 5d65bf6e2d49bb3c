package postgres

import (
	"encoding/json"
	"time"

	"github.com/aretw0/wabuilder/pkg/domain"
	"gorm.io/datatypes"
)

// ChatMessage is the table row behind domain.ChatMessage.
type ChatMessage struct {
	ID           uint           `gorm:"primaryKey"`
	MessageID    string         `gorm:"uniqueIndex;size:128"`
	Phone        string         `gorm:"size:32;index:idx_chat_phone_time,priority:1"`
	Direction    string         `gorm:"size:16;index"`
	Type         string         `gorm:"size:32"`
	Text         string         `gorm:"type:text"`
	Status       string         `gorm:"size:16"`
	Timestamp    time.Time      `gorm:"index:idx_chat_phone_time,priority:2"`
	TemplateID   string         `gorm:"size:128"`
	TemplateName string         `gorm:"size:255"`
	MessageLevel string         `gorm:"size:64"`
	NextLevel    string         `gorm:"size:64"`
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

func fromDomain(m *domain.ChatMessage) (*ChatMessage, error) {
	row := &ChatMessage{
		MessageID:    m.MessageID,
		Phone:        m.Phone,
		Direction:    m.Direction,
		Type:         m.Type,
		Text:         m.Text,
		Status:       m.Status,
		Timestamp:    m.Timestamp,
		TemplateID:   m.TemplateID,
		TemplateName: m.TemplateName,
		MessageLevel: m.MessageLevel,
		NextLevel:    m.NextLevel,
	}
	if len(m.Metadata) > 0 {
		raw, err := json.Marshal(m.Metadata)
		if err != nil {
			return nil, err
		}
		row.Metadata = datatypes.JSON(raw)
	}
	return row, nil
}

func (r *ChatMessage) toDomain() domain.ChatMessage {
	m := domain.ChatMessage{
		MessageID:    r.MessageID,
		Phone:        r.Phone,
		Direction:    r.Direction,
		Type:         r.Type,
		Text:         r.Text,
		Status:       r.Status,
		Timestamp:    r.Timestamp,
		TemplateID:   r.TemplateID,
		TemplateName: r.TemplateName,
		MessageLevel: r.MessageLevel,
		NextLevel:    r.NextLevel,
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &m.Metadata)
	}
	return m
}
