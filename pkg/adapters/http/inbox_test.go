package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInbox(t *testing.T) {
	h, _, _ := newTestServer(t)

	for _, payload := range []string{
		`{"entry":[{"changes":[{"value":{
			"contacts":[{"wa_id":"15550001","profile":{"name":"Ann"}}],
			"messages":[{"from":"15550001","id":"wamid.1","timestamp":"1700000000","type":"text","text":{"body":"hello"}}]}}]}]}`,
		`{"entry":[{"changes":[{"value":{
			"contacts":[{"wa_id":"15550002","profile":{"name":"Bob"}}],
			"messages":[{"from":"15550002","id":"wamid.2","timestamp":"1700000100","type":"text","text":{"body":"billing please"}}]}}]}]}`,
	} {
		w := do(h, "POST", "/webhook/support", payload)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := do(h, "GET", "/api/conversations", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var convs struct {
		Conversations []domain.Conversation `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &convs))
	require.Len(t, convs.Conversations, 2)

	w = do(h, "GET", "/api/conversations/unread", "")
	assert.JSONEq(t, `{"unread":2}`, w.Body.String())

	w = do(h, "GET", "/api/contacts?q=ann", "")
	require.Equal(t, http.StatusOK, w.Code)
	var contacts struct {
		Contacts []domain.Conversation `json:"contacts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &contacts))
	require.Len(t, contacts.Contacts, 1)
	assert.Equal(t, "15550001", contacts.Contacts[0].Phone)

	w = do(h, "GET", "/api/messages/search?q=BILLING", "")
	require.Equal(t, http.StatusOK, w.Code)
	var found struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	require.Len(t, found.Messages, 1)
	assert.Equal(t, "wamid.2", found.Messages[0].MessageID)

	w = do(h, "GET", "/api/messages/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "q is required")

	w = do(h, "GET", "/api/conversations/15550001/messages?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(h, "GET", "/api/conversations/15550001/messages", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var history struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history.Messages, 2)

	w = do(h, "GET", "/api/conversations/unread", "")
	assert.JSONEq(t, `{"unread":1}`, w.Body.String(), "reading a conversation marks it read")

	w = do(h, "POST", "/api/conversations/15550002/read", "")
	assert.JSONEq(t, `{"marked":1}`, w.Body.String())

	w = do(h, "DELETE", "/api/conversations/15550001", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"deleted":2}`, w.Body.String())

	w = do(h, "DELETE", "/api/conversations/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
