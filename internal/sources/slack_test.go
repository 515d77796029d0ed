package sources

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/types"
	"gorm.io/datatypes"
)

const slackTestSecret = "8f742231b10e8888abcd99yyyzzz85a5"

func slackSign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func slackSource(settings string) *types.IntegrationSource {
	src := &types.IntegrationSource{
		Type:          types.SourceTypeSlack,
		SigningSecret: slackTestSecret,
	}
	if settings != "" {
		src.Settings = datatypes.JSON(settings)
	}
	return src
}

func signedHeaders(ts string, body []byte) http.Header {
	h := http.Header{}
	h.Set("X-Slack-Request-Timestamp", ts)
	h.Set("X-Slack-Signature", slackSign(slackTestSecret, ts, body))
	return h
}

func TestSlackValidateInbound(t *testing.T) {
	adapter := NewSlackAdapter().(*slackAdapter)
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	adapter.now = func() time.Time { return now }

	body := []byte(`{"type":"event_callback"}`)
	freshTS := strconv.FormatInt(now.Unix(), 10)

	t.Run("valid signature passes", func(t *testing.T) {
		if err := adapter.ValidateInbound(slackSource(""), signedHeaders(freshTS, body), body); err != nil {
			t.Fatalf("expected valid delivery, got %v", err)
		}
	})

	t.Run("tampered body rejected", func(t *testing.T) {
		err := adapter.ValidateInbound(slackSource(""), signedHeaders(freshTS, body), []byte(`{"type":"tampered"}`))
		if !errorsx.IsValidation(err) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Slack-Request-Timestamp", freshTS)
		h.Set("X-Slack-Signature", slackSign("other-secret", freshTS, body))
		if err := adapter.ValidateInbound(slackSource(""), h, body); !errorsx.IsValidation(err) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("stale timestamp rejected", func(t *testing.T) {
		stale := strconv.FormatInt(now.Add(-6*time.Minute).Unix(), 10)
		err := adapter.ValidateInbound(slackSource(""), signedHeaders(stale, body), body)
		if !errorsx.IsValidation(err) {
			t.Fatalf("expected replay-window rejection, got %v", err)
		}
	})

	t.Run("missing headers rejected", func(t *testing.T) {
		if err := adapter.ValidateInbound(slackSource(""), http.Header{}, body); !errorsx.IsValidation(err) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func slackEventBody(channel, user, text, ts string) []byte {
	return []byte(fmt.Sprintf(`{
		"type": "event_callback",
		"event": {"type": "message", "user": %q, "text": %q, "channel": %q, "ts": %q}
	}`, user, text, channel, ts))
}

func TestSlackParseInbound(t *testing.T) {
	adapter := NewSlackAdapter()

	t.Run("plain message normalizes", func(t *testing.T) {
		msgs, err := adapter.ParseInbound(slackSource(""), slackEventBody("C123", "U42", "the export button is broken", "1712345678.000123"))
		if err != nil {
			t.Fatalf("ParseInbound: %v", err)
		}
		if len(msgs) != 1 {
			t.Fatalf("got %d messages, want 1", len(msgs))
		}
		m := msgs[0]
		if m.ExternalID != "C123:1712345678.000123" {
			t.Fatalf("external id = %q", m.ExternalID)
		}
		if m.Channel != "C123" || m.AuthorExternalID != "U42" {
			t.Fatalf("unexpected message: %+v", m)
		}
		if m.SentAt == nil || m.SentAt.Unix() != 1712345678 {
			t.Fatalf("sent_at not derived from ts: %v", m.SentAt)
		}
	})

	t.Run("bot and subtype events dropped", func(t *testing.T) {
		bot := []byte(`{"type":"event_callback","event":{"type":"message","bot_id":"B1","text":"automated","channel":"C123","ts":"1.2"}}`)
		edited := []byte(`{"type":"event_callback","event":{"type":"message","subtype":"message_changed","text":"edited","channel":"C123","ts":"1.3"}}`)
		for _, body := range [][]byte{bot, edited} {
			msgs, err := adapter.ParseInbound(slackSource(""), body)
			if err != nil || len(msgs) != 0 {
				t.Fatalf("expected drop, got msgs=%v err=%v", msgs, err)
			}
		}
	})

	t.Run("url verification ignored", func(t *testing.T) {
		msgs, err := adapter.ParseInbound(slackSource(""), []byte(`{"type":"url_verification","challenge":"x"}`))
		if err != nil || len(msgs) != 0 {
			t.Fatalf("expected no messages, got %v / %v", msgs, err)
		}
	})

	t.Run("channel filter applies", func(t *testing.T) {
		src := slackSource(`{"channels":["C999"]}`)
		msgs, err := adapter.ParseInbound(src, slackEventBody("C123", "U1", "feedback text here", "2.0"))
		if err != nil || len(msgs) != 0 {
			t.Fatalf("unwatched channel must be dropped, got %v / %v", msgs, err)
		}
	})

	t.Run("keyword filter applies", func(t *testing.T) {
		src := slackSource(`{"keywords":["export"]}`)
		hit, err := adapter.ParseInbound(src, slackEventBody("C123", "U1", "the EXPORT flow fails", "3.0"))
		if err != nil || len(hit) != 1 {
			t.Fatalf("keyword match should pass, got %v / %v", hit, err)
		}
		miss, err := adapter.ParseInbound(src, slackEventBody("C123", "U1", "hello there everyone", "3.1"))
		if err != nil || len(miss) != 0 {
			t.Fatalf("non-matching text should drop, got %v / %v", miss, err)
		}
	})
}

func TestSlackFetchPageRejected(t *testing.T) {
	_, err := NewSlackAdapter().FetchPage(t.Context(), slackSource(""), "")
	if err == nil {
		t.Fatal("slack is push-only; FetchPage must fail")
	}
}
