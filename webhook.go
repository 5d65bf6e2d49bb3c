package wabuilder

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/aretw0/wabuilder/pkg/routing"
	"github.com/aretw0/wabuilder/pkg/session"
	"github.com/google/uuid"
)

// SignatureHeader carries the HMAC of the webhook body signed with the app secret.
const SignatureHeader = "X-Hub-Signature-256"

// notification is the envelope of a WhatsApp Cloud API webhook call.
type notification struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string      `json:"field"`
			Value changeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type changeValue struct {
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []json.RawMessage `json:"messages"`
	Statuses []struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		RecipientID string `json:"recipient_id"`
	} `json:"statuses"`
}

// inbound is the part of an incoming message the builder reads.
type inbound struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`

	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
	Image    *media `json:"image"`
	Video    *media `json:"video"`
	Audio    *media `json:"audio"`
	Voice    *media `json:"voice"`
	Document *media `json:"document"`
	Sticker  *media `json:"sticker"`
	Location *struct {
		Name string `json:"name"`
	} `json:"location"`
	Contacts []struct {
		Name struct {
			FormattedName string `json:"formatted_name"`
		} `json:"name"`
	} `json:"contacts"`
}

type media struct {
	ID       string `json:"id"`
	Caption  string `json:"caption"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename"`
}

// VerifyWebhook answers the Meta subscription challenge for the record configName.
// It returns the challenge to echo back, or ErrVerificationFailed.
func (b *Builder) VerifyWebhook(ctx context.Context, configName, mode, token, challenge string) (string, error) {
	cfg, err := b.store.Get(ctx, b.name(configName))
	if err != nil {
		return "", err
	}
	if mode != "subscribe" || cfg.WebhookToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(cfg.WebhookToken)) != 1 {
		b.logger.Warn("webhook verification failed", "config", cfg.Name, "mode", mode)
		return "", ErrVerificationFailed
	}
	return challenge, nil
}

// VerifySignature checks the X-Hub-Signature-256 header of a webhook body
// against the record's app secret. Records without a secret accept any body.
func (b *Builder) VerifySignature(ctx context.Context, configName, signature string, body []byte) error {
	cfg, err := b.store.Get(ctx, b.name(configName))
	if err != nil {
		return err
	}
	if cfg.AppSecret == "" {
		return nil
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil || len(got) == 0 {
		return fmt.Errorf("%w: malformed signature", ErrVerificationFailed)
	}
	mac := hmac.New(sha256.New, []byte(cfg.AppSecret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return fmt.Errorf("%w: signature mismatch", ErrVerificationFailed)
	}
	return nil
}

// HandleWebhook ingests a WhatsApp webhook notification for the record configName.
// Incoming messages are logged once per message id, status updates are applied,
// and a reply template is resolved for text, button and interactive messages.
// Replies are recorded in the message log, not sent.
// It returns the number of new incoming messages.
func (b *Builder) HandleWebhook(ctx context.Context, configName string, payload []byte) (int, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(n.Entry) == 0 {
		return 0, nil
	}

	name := b.name(configName)
	_, flow, _, err := b.loadFlow(ctx, name, "")
	if err != nil {
		return 0, err
	}
	engine := routing.New(b.routable(name, flow, ""), routing.WithLogger(b.logger))

	processed := 0
	for _, entry := range n.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			for _, raw := range value.Messages {
				ok, err := b.intake(ctx, name, engine, value, raw)
				if err != nil {
					return processed, err
				}
				if ok {
					processed++
				}
			}
			for _, st := range value.Statuses {
				status := mapStatus(st.Status)
				err := b.messages.UpdateStatus(ctx, st.ID, status)
				if errors.Is(err, domain.ErrMessageNotFound) {
					b.logger.Debug("status for unknown message", "message_id", st.ID, "status", status)
					continue
				}
				if err != nil {
					return processed, fmt.Errorf("update status of %s: %w", st.ID, err)
				}
				b.logger.Info("message status updated", "message_id", st.ID, "status", status)
			}
		}
	}
	return processed, nil
}

// intake logs one incoming message and records the reply, holding the contact lock.
// It reports false for duplicates and messages dropped on lock timeout.
func (b *Builder) intake(ctx context.Context, name string, engine *routing.Engine, value changeValue, raw json.RawMessage) (bool, error) {
	var m inbound
	if err := json.Unmarshal(raw, &m); err != nil {
		return false, fmt.Errorf("%w: message: %v", ErrInvalidPayload, err)
	}
	if m.Type == "" {
		m.Type = domain.TypeText
	}
	phone := domain.NormalizePhone(m.From)
	if phone == "" {
		b.logger.Warn("message without sender ignored", "message_id", m.ID)
		return false, nil
	}

	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil || metadata == nil {
		metadata = make(map[string]any)
	}

	text, mediaID, mediaType := describe(m)
	msg := &domain.ChatMessage{
		MessageID: m.ID,
		Phone:     phone,
		Direction: domain.DirectionIncoming,
		Type:      m.Type,
		Text:      text,
		Status:    domain.StatusDelivered,
		Timestamp: parseTimestamp(m.Timestamp),
		Metadata:  metadata,
	}
	if contact := contactName(value, phone); contact != "" {
		msg.Metadata["contact_name"] = contact
	}
	if mediaID != "" {
		msg.Metadata["media_id"] = mediaID
		msg.Metadata["media_type"] = mediaType
	}

	isNew := false
	err := b.sessions.WithLock(ctx, phone, func(ctx context.Context) error {
		if err := b.messages.Append(ctx, msg); err != nil {
			if errors.Is(err, domain.ErrDuplicateMessage) {
				b.logger.Debug("duplicate message ignored", "message_id", m.ID, "phone", phone)
				b.emitWebhook(ctx, name, phone, m.Type, true)
				return nil
			}
			return fmt.Errorf("log message %s: %w", m.ID, err)
		}
		isNew = true
		b.logger.Info("incoming message saved", "phone", phone, "message_id", m.ID, "type", m.Type)
		b.emitWebhook(ctx, name, phone, m.Type, false)

		input, routable := replyInput(m)
		if !routable {
			return nil
		}
		input, err := SanitizeInput(input)
		if err != nil {
			b.logger.Warn("unroutable input", "phone", phone, "message_id", m.ID, "error", err)
			return nil
		}
		_, err = b.reply(ctx, name, engine, phone, input)
		return err
	})
	if errors.Is(err, session.ErrLockTimeout) {
		b.logger.Error("contact busy, message dropped", "phone", phone, "message_id", m.ID, "error", err)
		return false, nil
	}
	return isNew, err
}

// reply resolves the template answering input and records it as the contact's
// last outgoing message. The input is first saved under the user prop named
// by the previous template, if any.
func (b *Builder) reply(ctx context.Context, name string, engine *routing.Engine, phone, input string) (*Resolution, error) {
	last, err := b.lastOutgoing(ctx, phone)
	if err != nil {
		return nil, err
	}
	if last != nil {
		if prev, ok := engine.Template(last.TemplateID); ok && prev.Settings.Prop != "" {
			if err := b.state.SaveProp(ctx, phone, prev.Settings.Prop, input); err != nil {
				b.logger.Warn("saving user prop failed", "phone", phone, "prop", prev.Settings.Prop, "error", err)
			}
		}
	}

	res := b.route(ctx, name, engine, last, phone, input)
	if res.Template == nil {
		return res, nil
	}
	t := res.Template
	out := &domain.ChatMessage{
		MessageID:    "local-" + uuid.NewString(),
		Phone:        phone,
		Direction:    domain.DirectionOutgoing,
		Type:         t.Type,
		Text:         t.Name,
		Status:       domain.StatusSent,
		Timestamp:    time.Now().UTC(),
		TemplateID:   t.ID,
		TemplateName: t.Name,
		MessageLevel: t.Settings.MessageLevel,
		NextLevel:    t.Settings.NextLevel,
		Metadata:     map[string]any{"match": string(res.Match)},
	}
	if err := b.messages.Append(ctx, out); err != nil {
		return nil, fmt.Errorf("log reply to %s: %w", phone, err)
	}
	b.logger.Info("reply resolved", "phone", phone, "template", t.ID, "match", res.Match)
	return res, nil
}

func (b *Builder) emitWebhook(ctx context.Context, name, phone, typ string, duplicate bool) {
	if b.hooks.OnWebhook == nil {
		return
	}
	b.hooks.OnWebhook(ctx, &domain.WebhookEvent{
		EventBase:   domain.EventBase{Timestamp: time.Now(), Type: domain.EventWebhook, Config: name},
		Phone:       phone,
		MessageType: typ,
		Duplicate:   duplicate,
	})
}

// describe renders the text stored for an incoming message, plus its media reference.
func describe(m inbound) (text, mediaID, mediaType string) {
	switch m.Type {
	case "text":
		if m.Text != nil {
			text = m.Text.Body
		}
	case "image", "video", "audio", "voice", "document", "sticker":
		md := mediaOf(m)
		if md == nil {
			md = &media{}
		}
		mediaID, mediaType = md.ID, m.Type
		switch m.Type {
		case "audio":
			mime := md.MimeType
			if mime == "" {
				mime = "audio"
			}
			text = fmt.Sprintf("Audio message (%s)", mime)
		case "voice":
			text = "Voice message"
		case "document":
			text = md.Filename
			if text == "" {
				text = "Document"
			}
		case "sticker":
			text = "Sticker"
		default:
			text = md.Caption
		}
	case "location":
		name := "Shared location"
		if m.Location != nil && m.Location.Name != "" {
			name = m.Location.Name
		}
		text = "Location: " + name
	case "contacts":
		if len(m.Contacts) > 0 {
			name := m.Contacts[0].Name.FormattedName
			if name == "" {
				name = "Contact"
			}
			text = "Contact: " + name
		}
	case "button":
		label := "Button clicked"
		if m.Button != nil && m.Button.Text != "" {
			label = m.Button.Text
		}
		text = "Button: " + label
	case "interactive":
		text = "Interactive message"
		if m.Interactive != nil {
			switch {
			case m.Interactive.ButtonReply != nil:
				text = "Button: " + m.Interactive.ButtonReply.Title
			case m.Interactive.ListReply != nil:
				text = "Selected: " + m.Interactive.ListReply.Title
			}
		}
	default:
		text = "Unsupported message type: " + m.Type
	}
	return text, mediaID, mediaType
}

func mediaOf(m inbound) *media {
	switch m.Type {
	case "image":
		return m.Image
	case "video":
		return m.Video
	case "audio":
		return m.Audio
	case "voice":
		return m.Voice
	case "document":
		return m.Document
	case "sticker":
		return m.Sticker
	}
	return nil
}

// replyInput returns the text routed for m. Only typed text, quick-reply
// buttons and interactive replies drive the flow.
func replyInput(m inbound) (string, bool) {
	switch m.Type {
	case "text":
		if m.Text != nil {
			return m.Text.Body, true
		}
	case "button":
		if m.Button != nil {
			return m.Button.Text, true
		}
	case "interactive":
		if m.Interactive == nil {
			return "", false
		}
		if r := m.Interactive.ButtonReply; r != nil && r.Title != "" {
			return r.Title, true
		}
		if r := m.Interactive.ListReply; r != nil && r.Title != "" {
			return r.Title, true
		}
	}
	return "", false
}

func contactName(value changeValue, phone string) string {
	for _, c := range value.Contacts {
		if domain.NormalizePhone(c.WaID) == phone {
			return c.Profile.Name
		}
	}
	return ""
}

func mapStatus(s string) string {
	switch s {
	case domain.StatusSent, domain.StatusDelivered, domain.StatusRead, domain.StatusFailed:
		return s
	}
	return domain.StatusSent
}

func parseTimestamp(s string) time.Time {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC()
	}
	return time.Now().UTC()
}
