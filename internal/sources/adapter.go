package sources

import (
	"context"
	"fmt"
	"net/http"
	"time"

	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/types"
)

// CanonicalMessage is the normalized shape every adapter emits. ExternalID
// is the per-source dedup key half of (source_id, external_id).
type CanonicalMessage struct {
	ExternalID       string
	ThreadID         string
	AuthorName       string
	AuthorExternalID string
	Channel          string
	Body             string
	Metadata         map[string]any
	SentAt           *time.Time
}

// Page is one fetch of a pull-based source. An empty NextCursor means the
// sync is complete.
type Page struct {
	Messages   []CanonicalMessage
	NextCursor string
}

// Adapter is the single capability surface every source variant implements.
// Push-only sources reject FetchPage; pull-only sources reject
// ValidateInbound/ParseInbound.
type Adapter interface {
	// ValidateInbound authenticates a webhook delivery (signature plus
	// timestamp replay window). A failure is a ValidationError: logged and
	// dropped, never retried.
	ValidateInbound(src *types.IntegrationSource, headers http.Header, body []byte) error
	// ParseInbound normalizes one webhook payload into zero or more
	// canonical messages.
	ParseInbound(src *types.IntegrationSource, body []byte) ([]CanonicalMessage, error)
	// FetchPage pulls one page of history for sources without webhooks.
	FetchPage(ctx context.Context, src *types.IntegrationSource, cursor string) (*Page, error)
}

// Registry dispatches by the source-type enum. Fixed set of variants; no
// dynamic registration at runtime.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters map[string]Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// DefaultRegistry wires the three supported source types.
func DefaultRegistry(httpClient *http.Client) *Registry {
	return NewRegistry(map[string]Adapter{
		types.SourceTypeSlack:    NewSlackAdapter(),
		types.SourceTypeIntercom: NewIntercomAdapter(),
		types.SourceTypeAppStore: NewAppStoreAdapter(httpClient),
	})
}

func (r *Registry) For(sourceType string) (Adapter, error) {
	a, ok := r.adapters[sourceType]
	if !ok {
		return nil, fmt.Errorf("no adapter for source type %q: %w", sourceType, errorsx.ErrInvalidArgument)
	}
	return a, nil
}

// errPullOnly / errPushOnly are the shared capability rejections.
func errPullOnly(sourceType string) error {
	return &errorsx.ValidationError{Msg: sourceType + " has no inbound webhook surface"}
}

func errPushOnly(sourceType string) error {
	return fmt.Errorf("%s is not a pull-based source: %w", sourceType, errorsx.ErrInvalidArgument)
}
