package wabuilder_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/aretw0/wabuilder"
	"github.com/aretw0/wabuilder/pkg/adapters/memory"
	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contact = "263770000001"

func textPayload(id, body string) []byte {
	return []byte(fmt.Sprintf(`{
	  "object": "whatsapp_business_account",
	  "entry": [{"id": "1", "changes": [{"field": "messages", "value": {
	    "messaging_product": "whatsapp",
	    "contacts": [{"wa_id": "+263 77 000 0001", "profile": {"name": "Ann"}}],
	    "messages": [{"from": "+263770000001", "id": %q, "timestamp": "1700000000", "type": "text", "text": {"body": %q}}]
	  }}]}]
	}`, id, body))
}

func buttonReplyPayload(id, title string) []byte {
	return []byte(fmt.Sprintf(`{
	  "entry": [{"changes": [{"value": {
	    "messages": [{"from": %q, "id": %q, "type": "interactive",
	      "interactive": {"type": "button_reply", "button_reply": {"id": "b1", "title": %q}}}]
	  }}]}]
	}`, contact, id, title))
}

func newWebhookBuilder(t *testing.T, opts ...wabuilder.Option) (*wabuilder.Builder, *memory.MessageLog) {
	t.Helper()
	log := memory.NewMessageLog()
	b, _ := newBuilder(t, append([]wabuilder.Option{wabuilder.WithMessageLog(log)}, opts...)...)
	return b, log
}

func TestVerifyWebhook(t *testing.T) {
	ctx := context.Background()
	b, err := wabuilder.New()
	require.NoError(t, err)
	require.NoError(t, b.UpdateConfig(ctx, &domain.BotConfig{WebhookToken: "s3cret"}))

	challenge, err := b.VerifyWebhook(ctx, "", "subscribe", "s3cret", "1158201444")
	require.NoError(t, err)
	assert.Equal(t, "1158201444", challenge)

	_, err = b.VerifyWebhook(ctx, "", "subscribe", "wrong", "1158201444")
	assert.ErrorIs(t, err, wabuilder.ErrVerificationFailed)

	_, err = b.VerifyWebhook(ctx, "", "unsubscribe", "s3cret", "1158201444")
	assert.ErrorIs(t, err, wabuilder.ErrVerificationFailed)
}

func TestVerifySignature(t *testing.T) {
	ctx := context.Background()
	b, err := wabuilder.New()
	require.NoError(t, err)
	require.NoError(t, b.UpdateConfig(ctx, &domain.BotConfig{AppSecret: "app-secret"}))

	body := textPayload("wamid.1", "hi")
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.NoError(t, b.VerifySignature(ctx, "", sig, body))
	assert.ErrorIs(t, b.VerifySignature(ctx, "", sig, append(body, ' ')), wabuilder.ErrVerificationFailed)
	assert.ErrorIs(t, b.VerifySignature(ctx, "", "sha256=zz", body), wabuilder.ErrVerificationFailed)
}

func TestHandleWebhook_TextMessage(t *testing.T) {
	ctx := context.Background()
	var events []*domain.WebhookEvent
	b, log := newWebhookBuilder(t, wabuilder.WithLifecycleHooks(domain.LifecycleHooks{
		OnWebhook: func(_ context.Context, e *domain.WebhookEvent) { events = append(events, e) },
	}))

	n, err := b.HandleWebhook(ctx, "", textPayload("wamid.1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	history, err := log.History(ctx, contact, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)

	in := history[0]
	assert.Equal(t, "wamid.1", in.MessageID)
	assert.Equal(t, domain.DirectionIncoming, in.Direction)
	assert.Equal(t, "hello", in.Text)
	assert.Equal(t, "Ann", in.Metadata["contact_name"])

	out := history[1]
	assert.Equal(t, domain.DirectionOutgoing, out.Direction)
	assert.Equal(t, "welcome", out.TemplateID)
	assert.Equal(t, "L1", out.NextLevel)

	require.Len(t, events, 1)
	assert.Equal(t, contact, events[0].Phone)
	assert.False(t, events[0].Duplicate)
}

func TestHandleWebhook_FollowsConversation(t *testing.T) {
	ctx := context.Background()
	b, log := newWebhookBuilder(t)

	_, err := b.HandleWebhook(ctx, "", textPayload("wamid.1", "hi"))
	require.NoError(t, err)
	_, err = b.HandleWebhook(ctx, "", textPayload("wamid.2", "open the MENU please"))
	require.NoError(t, err)

	last, err := log.LastOutgoing(ctx, contact)
	require.NoError(t, err)
	assert.Equal(t, "menu", last.TemplateID)

	_, err = b.HandleWebhook(ctx, "", buttonReplyPayload("wamid.3", "Billing"))
	require.NoError(t, err)

	last, err = log.LastOutgoing(ctx, contact)
	require.NoError(t, err)
	assert.Equal(t, "billing", last.TemplateID)

	choice, err := b.Sessions().Prop(ctx, contact, "choice")
	require.NoError(t, err)
	assert.Equal(t, "Billing", choice, "reply to a template with a prop is saved")
}

func TestHandleWebhook_Duplicate(t *testing.T) {
	ctx := context.Background()
	var duplicates int
	b, log := newWebhookBuilder(t, wabuilder.WithLifecycleHooks(domain.LifecycleHooks{
		OnWebhook: func(_ context.Context, e *domain.WebhookEvent) {
			if e.Duplicate {
				duplicates++
			}
		},
	}))

	payload := textPayload("wamid.dup", "hello")
	n, err := b.HandleWebhook(ctx, "", payload)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = b.HandleWebhook(ctx, "", payload)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, duplicates)

	history, err := log.History(ctx, contact, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2, "a redelivered message gets no second reply")
}

func TestHandleWebhook_Statuses(t *testing.T) {
	ctx := context.Background()
	b, log := newWebhookBuilder(t)
	_, err := b.HandleWebhook(ctx, "", textPayload("wamid.1", "hello"))
	require.NoError(t, err)

	payload := []byte(`{"entry": [{"changes": [{"value": {"statuses": [
	  {"id": "wamid.1", "status": "read", "recipient_id": "263770000001"},
	  {"id": "wamid.unknown", "status": "delivered"}
	]}}]}]}`)
	n, err := b.HandleWebhook(ctx, "", payload)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	history, err := log.History(ctx, contact, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRead, history[0].Status)
}

func TestHandleWebhook_MediaIsLoggedNotRouted(t *testing.T) {
	ctx := context.Background()
	b, log := newWebhookBuilder(t)

	payload := []byte(`{"entry": [{"changes": [{"value": {"messages": [
	  {"from": "263770000001", "id": "wamid.img", "type": "image", "image": {"id": "media-1", "caption": "receipt"}}
	]}}]}]}`)
	n, err := b.HandleWebhook(ctx, "", payload)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	history, err := log.History(ctx, contact, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "receipt", history[0].Text)
	assert.Equal(t, "media-1", history[0].Metadata["media_id"])
}

func TestHandleWebhook_InvalidPayload(t *testing.T) {
	b, _ := newWebhookBuilder(t)
	_, err := b.HandleWebhook(context.Background(), "", []byte(`[1, 2`))
	assert.ErrorIs(t, err, wabuilder.ErrInvalidPayload)

	n, err := b.HandleWebhook(context.Background(), "", []byte(`{"object": "whatsapp_business_account"}`))
	require.NoError(t, err)
	assert.Zero(t, n)
}
