package sources

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/types"
)

type intercomAdapter struct{}

func NewIntercomAdapter() Adapter {
	return &intercomAdapter{}
}

// ValidateInbound checks Intercom's X-Hub-Signature header: "sha1=" plus
// the hex HMAC-SHA1 of the raw body under the client secret. Intercom does
// not sign a timestamp, so there is no replay window to enforce here.
func (a *intercomAdapter) ValidateInbound(src *types.IntegrationSource, headers http.Header, body []byte) error {
	if src.SigningSecret == "" {
		return &errorsx.ValidationError{Msg: "intercom source has no client secret configured"}
	}
	sigHeader := headers.Get("X-Hub-Signature")
	if sigHeader == "" {
		return &errorsx.ValidationError{Msg: "missing X-Hub-Signature header"}
	}

	mac := hmac.New(sha1.New, []byte(src.SigningSecret))
	mac.Write(body)
	expected := "sha1=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sigHeader)) {
		return &errorsx.ValidationError{Msg: "intercom signature mismatch"}
	}
	return nil
}

type intercomPart struct {
	ID     string `json:"id"`
	Body   string `json:"body"`
	Author struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"author"`
	CreatedAt int64 `json:"created_at"`
}

type intercomNotification struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  struct {
		Item struct {
			Type   string `json:"type"`
			ID     string `json:"id"`
			Source struct {
				ID     string `json:"id"`
				Body   string `json:"body"`
				Author struct {
					Type string `json:"type"`
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"author"`
			} `json:"source"`
			CreatedAt         int64 `json:"created_at"`
			ConversationParts struct {
				ConversationParts []intercomPart `json:"conversation_parts"`
			} `json:"conversation_parts"`
		} `json:"item"`
	} `json:"data"`
}

// stripHTML flattens Intercom's HTML message bodies to plain text. Good
// enough for extraction input; not a general sanitizer.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ParseInbound emits one canonical message per user-authored conversation
// part. Admin and bot parts are dropped; only customer voice feeds the
// pipeline.
func (a *intercomAdapter) ParseInbound(src *types.IntegrationSource, body []byte) ([]CanonicalMessage, error) {
	var n intercomNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, &errorsx.ValidationError{Msg: "malformed intercom payload: " + err.Error()}
	}
	item := n.Data.Item
	if item.Type != "conversation" || item.ID == "" {
		return nil, nil
	}

	var out []CanonicalMessage

	if item.Source.Author.Type == "user" || item.Source.Author.Type == "lead" {
		if text := stripHTML(item.Source.Body); text != "" {
			sent := time.Unix(item.CreatedAt, 0).UTC()
			out = append(out, CanonicalMessage{
				ExternalID:       item.ID + ":" + item.Source.ID,
				ThreadID:         item.ID,
				AuthorName:       item.Source.Author.Name,
				AuthorExternalID: item.Source.Author.ID,
				Channel:          "intercom",
				Body:             text,
				Metadata:         map[string]any{"topic": n.Topic},
				SentAt:           &sent,
			})
		}
	}
	for _, part := range item.ConversationParts.ConversationParts {
		if part.Author.Type != "user" && part.Author.Type != "lead" {
			continue
		}
		text := stripHTML(part.Body)
		if text == "" {
			continue
		}
		sent := time.Unix(part.CreatedAt, 0).UTC()
		out = append(out, CanonicalMessage{
			ExternalID:       item.ID + ":" + part.ID,
			ThreadID:         item.ID,
			AuthorName:       part.Author.Name,
			AuthorExternalID: part.Author.ID,
			Channel:          "intercom",
			Body:             text,
			Metadata:         map[string]any{"topic": n.Topic},
			SentAt:           &sent,
		})
	}
	return out, nil
}

func (a *intercomAdapter) FetchPage(_ context.Context, src *types.IntegrationSource, _ string) (*Page, error) {
	return nil, errPushOnly(types.SourceTypeIntercom)
}
