package sources

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/types"
)

// Slack rejects webhook deliveries older than this to block replays.
const slackReplayWindow = 5 * time.Minute

type slackAdapter struct {
	now func() time.Time
}

func NewSlackAdapter() Adapter {
	return &slackAdapter{now: time.Now}
}

type slackSettings struct {
	Channels []string `json:"channels"`
	Keywords []string `json:"keywords"`
}

func parseSlackSettings(src *types.IntegrationSource) slackSettings {
	var s slackSettings
	if len(src.Settings) > 0 {
		_ = json.Unmarshal(src.Settings, &s)
	}
	return s
}

// ValidateInbound checks Slack's v0 signing scheme: the hex HMAC-SHA256 of
// "v0:{timestamp}:{body}" under the signing secret, with a timestamp
// replay window.
func (a *slackAdapter) ValidateInbound(src *types.IntegrationSource, headers http.Header, body []byte) error {
	if src.SigningSecret == "" {
		return &errorsx.ValidationError{Msg: "slack source has no signing secret configured"}
	}
	tsHeader := headers.Get("X-Slack-Request-Timestamp")
	sigHeader := headers.Get("X-Slack-Signature")
	if tsHeader == "" || sigHeader == "" {
		return &errorsx.ValidationError{Msg: "missing slack signature headers"}
	}

	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return &errorsx.ValidationError{Msg: "malformed slack timestamp header"}
	}
	age := a.now().UTC().Sub(time.Unix(ts, 0).UTC())
	if math.Abs(age.Seconds()) > slackReplayWindow.Seconds() {
		return &errorsx.ValidationError{Msg: "slack timestamp outside replay window"}
	}

	mac := hmac.New(sha256.New, []byte(src.SigningSecret))
	mac.Write([]byte("v0:" + tsHeader + ":"))
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sigHeader)) {
		return &errorsx.ValidationError{Msg: "slack signature mismatch"}
	}
	return nil
}

type slackEventEnvelope struct {
	Type  string `json:"type"`
	Event struct {
		Type     string `json:"type"`
		Subtype  string `json:"subtype"`
		BotID    string `json:"bot_id"`
		User     string `json:"user"`
		Username string `json:"username"`
		Text     string `json:"text"`
		Channel  string `json:"channel"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
	} `json:"event"`
}

func slackTimestamp(ts string) *time.Time {
	parts := strings.SplitN(ts, ".", 2)
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func matchesKeywords(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func channelWatched(channel string, channels []string) bool {
	if len(channels) == 0 {
		return true
	}
	for _, c := range channels {
		if c == channel {
			return true
		}
	}
	return false
}

// ParseInbound turns an event_callback into at most one canonical message.
// Bot messages and message subtypes (edits, joins, deletions) are dropped.
func (a *slackAdapter) ParseInbound(src *types.IntegrationSource, body []byte) ([]CanonicalMessage, error) {
	var env slackEventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &errorsx.ValidationError{Msg: "malformed slack event payload: " + err.Error()}
	}
	if env.Type != "event_callback" || env.Event.Type != "message" {
		return nil, nil
	}
	ev := env.Event
	if ev.BotID != "" || ev.Subtype != "" || strings.TrimSpace(ev.Text) == "" {
		return nil, nil
	}

	settings := parseSlackSettings(src)
	if !channelWatched(ev.Channel, settings.Channels) {
		return nil, nil
	}
	if !matchesKeywords(ev.Text, settings.Keywords) {
		return nil, nil
	}

	author := ev.Username
	if author == "" {
		author = ev.User
	}
	return []CanonicalMessage{{
		ExternalID:       ev.Channel + ":" + ev.TS,
		ThreadID:         ev.ThreadTS,
		AuthorName:       author,
		AuthorExternalID: ev.User,
		Channel:          ev.Channel,
		Body:             ev.Text,
		Metadata:         map[string]any{"slack_ts": ev.TS},
		SentAt:           slackTimestamp(ev.TS),
	}}, nil
}

func (a *slackAdapter) FetchPage(_ context.Context, src *types.IntegrationSource, _ string) (*Page, error) {
	return nil, errPushOnly(types.SourceTypeSlack)
}
