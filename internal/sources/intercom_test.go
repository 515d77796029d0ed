package sources

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"testing"

	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/types"
)

const intercomTestSecret = "ic-client-secret"

func intercomSource() *types.IntegrationSource {
	return &types.IntegrationSource{
		Type:          types.SourceTypeIntercom,
		SigningSecret: intercomTestSecret,
	}
}

func intercomSign(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestIntercomValidateInbound(t *testing.T) {
	adapter := NewIntercomAdapter()
	body := []byte(`{"type":"notification_event"}`)

	h := http.Header{}
	h.Set("X-Hub-Signature", intercomSign(intercomTestSecret, body))
	if err := adapter.ValidateInbound(intercomSource(), h, body); err != nil {
		t.Fatalf("expected valid delivery, got %v", err)
	}

	h.Set("X-Hub-Signature", intercomSign("wrong", body))
	if err := adapter.ValidateInbound(intercomSource(), h, body); !errorsx.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	if err := adapter.ValidateInbound(intercomSource(), http.Header{}, body); !errorsx.IsValidation(err) {
		t.Fatalf("expected ValidationError for missing header, got %v", err)
	}
}

func TestIntercomParseInbound(t *testing.T) {
	adapter := NewIntercomAdapter()

	body := []byte(`{
		"type": "notification_event",
		"topic": "conversation.user.replied",
		"data": {"item": {
			"type": "conversation",
			"id": "conv-9",
			"created_at": 1712000000,
			"source": {
				"id": "msg-1",
				"body": "<p>The app <b>crashes</b> on login</p>",
				"author": {"type": "user", "id": "u-7", "name": "Sam"}
			},
			"conversation_parts": {"conversation_parts": [
				{"id": "part-2", "body": "<p>Also please add SSO</p>", "created_at": 1712000100,
				 "author": {"type": "user", "id": "u-7", "name": "Sam"}},
				{"id": "part-3", "body": "<p>Thanks, looking into it</p>", "created_at": 1712000200,
				 "author": {"type": "admin", "id": "a-1", "name": "Support"}}
			]}
		}}
	}`)

	msgs, err := adapter.ParseInbound(intercomSource(), body)
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (admin part dropped)", len(msgs))
	}

	if msgs[0].ExternalID != "conv-9:msg-1" || msgs[1].ExternalID != "conv-9:part-2" {
		t.Fatalf("external ids: %q, %q", msgs[0].ExternalID, msgs[1].ExternalID)
	}
	if msgs[0].Body != "The app crashes on login" {
		t.Fatalf("html not flattened: %q", msgs[0].Body)
	}
	if msgs[0].ThreadID != "conv-9" || msgs[1].ThreadID != "conv-9" {
		t.Fatal("thread id must be the conversation id")
	}
	if msgs[1].SentAt == nil || msgs[1].SentAt.Unix() != 1712000100 {
		t.Fatalf("part sent_at wrong: %v", msgs[1].SentAt)
	}
}

func TestIntercomParseInboundNonConversation(t *testing.T) {
	adapter := NewIntercomAdapter()
	msgs, err := adapter.ParseInbound(intercomSource(), []byte(`{"type":"notification_event","data":{"item":{"type":"ping"}}}`))
	if err != nil || len(msgs) != 0 {
		t.Fatalf("expected nothing for non-conversation items, got %v / %v", msgs, err)
	}
}
