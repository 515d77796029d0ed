package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/types"
)

// The RSS review feed caps out at page 10.
const appStoreMaxPage = 10

type appStoreAdapter struct {
	httpClient *http.Client
	baseURL    string
}

func NewAppStoreAdapter(httpClient *http.Client) Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &appStoreAdapter{
		httpClient: httpClient,
		baseURL:    "https://itunes.apple.com",
	}
}

type appStoreSettings struct {
	AppID   string `json:"app_id"`
	Country string `json:"country"`
}

func (a *appStoreAdapter) ValidateInbound(src *types.IntegrationSource, _ http.Header, _ []byte) error {
	return errPullOnly(types.SourceTypeAppStore)
}

func (a *appStoreAdapter) ParseInbound(src *types.IntegrationSource, _ []byte) ([]CanonicalMessage, error) {
	return nil, errPullOnly(types.SourceTypeAppStore)
}

type rssLabel struct {
	Label string `json:"label"`
}

type rssEntry struct {
	ID      rssLabel `json:"id"`
	Title   rssLabel `json:"title"`
	Content rssLabel `json:"content"`
	Rating  rssLabel `json:"im:rating"`
	Version rssLabel `json:"im:version"`
	Updated rssLabel `json:"updated"`
	Author  struct {
		Name rssLabel `json:"name"`
	} `json:"author"`
}

type rssFeed struct {
	Feed struct {
		Entry []rssEntry `json:"entry"`
	} `json:"feed"`
}

// FetchPage pulls one page of the public customer-review RSS feed. The
// cursor is the page number; an empty next cursor ends the sync.
func (a *appStoreAdapter) FetchPage(ctx context.Context, src *types.IntegrationSource, cursor string) (*Page, error) {
	var settings appStoreSettings
	if len(src.Settings) > 0 {
		_ = json.Unmarshal(src.Settings, &settings)
	}
	if settings.AppID == "" {
		return nil, &errorsx.ValidationError{Msg: "appstore source has no app_id configured"}
	}
	country := settings.Country
	if country == "" {
		country = "us"
	}

	page := 1
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("bad appstore page cursor %q: %w", cursor, errorsx.ErrInvalidArgument)
		}
		page = parsed
	}

	url := fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%s/sortby=mostrecent/json",
		a.baseURL, country, page, settings.AppID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &errorsx.TransportError{Op: "appstore.fetch", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &errorsx.TransportError{Op: "appstore.fetch", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errorsx.TransportError{Op: "appstore.fetch", Err: err}
	}

	var feed rssFeed
	if err := json.Unmarshal(raw, &feed); err != nil {
		return nil, &errorsx.ParseError{Op: "appstore.fetch", Msg: "malformed review feed: " + err.Error()}
	}

	out := &Page{}
	for _, e := range feed.Feed.Entry {
		// The feed interleaves an app-metadata entry with no rating.
		if e.ID.Label == "" || e.Rating.Label == "" {
			continue
		}
		body := e.Title.Label
		if e.Content.Label != "" {
			body = e.Title.Label + "\n\n" + e.Content.Label
		}
		var sentAt *time.Time
		if t, perr := time.Parse(time.RFC3339, e.Updated.Label); perr == nil {
			utc := t.UTC()
			sentAt = &utc
		}
		out.Messages = append(out.Messages, CanonicalMessage{
			ExternalID: e.ID.Label,
			AuthorName: e.Author.Name.Label,
			Channel:    "appstore:" + country,
			Body:       body,
			Metadata: map[string]any{
				"rating":  e.Rating.Label,
				"version": e.Version.Label,
			},
			SentAt: sentAt,
		})
	}

	if len(out.Messages) > 0 && page < appStoreMaxPage {
		out.NextCursor = strconv.Itoa(page + 1)
	}
	return out, nil
}
