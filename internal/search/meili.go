package search

import (
	"context"
	"strings"

	"github.com/meilisearch/meilisearch-go"
	"github.com/microcosm-cc/bluemonday"

	"github.com/tbourn/go-swap-backend/internal/domain"
)

// DefaultListingsIndex is the Meilisearch index holding browsable listings.
const DefaultListingsIndex = "listings"

// Syncer keeps an external browse index aligned with the active listing set.
// Upsert is called for listings that became browsable; Remove for listings
// that left the active set.
type Syncer interface {
	Upsert(ctx context.Context, l domain.Listing) error
	Remove(ctx context.Context, listingID string) error
}

// NopSyncer discards every change. It is used when no external index is
// configured.
type NopSyncer struct{}

// Upsert implements Syncer.
func (NopSyncer) Upsert(context.Context, domain.Listing) error { return nil }

// Remove implements Syncer.
func (NopSyncer) Remove(context.Context, string) error { return nil }

// listingDoc is the document shape stored in Meilisearch.
type listingDoc struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Slug        string `json:"slug"`
	Intent      string `json:"intent"`
	CreatedAt   int64  `json:"created_at"`
}

// indexPolicy strips tags from indexed text. Its output stays entity
// escaped: clients render Meilisearch's highlighted fields as HTML.
var indexPolicy = bluemonday.StrictPolicy()

// indexText prepares stored plain text for the index. Only the index copy
// loses tag-like spans; the stored listing is left as written.
func indexText(s string) string {
	return strings.Join(strings.Fields(indexPolicy.Sanitize(s)), " ")
}

func toDoc(l domain.Listing) listingDoc {
	return listingDoc{
		ID:          l.ID,
		OwnerID:     l.OwnerID,
		Title:       indexText(l.Title),
		Description: indexText(l.Description),
		Slug:        l.Slug,
		Intent:      l.Intent,
		CreatedAt:   l.CreatedAt.Unix(),
	}
}

// MeiliSync pushes listing documents to a Meilisearch index. Only active
// listings are ever present; every other status is removed.
type MeiliSync struct {
	client meilisearch.ServiceManager
	index  string
}

// NewMeiliSync connects to host with apiKey and targets index (defaults to
// DefaultListingsIndex).
func NewMeiliSync(host, apiKey, index string) *MeiliSync {
	if !strings.HasPrefix(host, "http") {
		host = "http://" + host
	}
	if index == "" {
		index = DefaultListingsIndex
	}
	return &MeiliSync{
		client: meilisearch.New(host, meilisearch.WithAPIKey(apiKey)),
		index:  index,
	}
}

// EnsureSettings declares the filterable and sortable attributes browse
// relies on.
func (m *MeiliSync) EnsureSettings() error {
	filterable := []string{"intent", "owner_id"}
	filterableAny := make([]any, len(filterable))
	for i, v := range filterable {
		filterableAny[i] = v
	}
	if _, err := m.client.Index(m.index).UpdateFilterableAttributes(&filterableAny); err != nil {
		return err
	}
	sortable := []string{"created_at"}
	_, err := m.client.Index(m.index).UpdateSortableAttributes(&sortable)
	return err
}

// Upsert implements Syncer. Non-active listings are removed instead.
func (m *MeiliSync) Upsert(ctx context.Context, l domain.Listing) error {
	if l.Status != domain.ListingActive {
		return m.Remove(ctx, l.ID)
	}
	_, err := m.client.Index(m.index).AddDocuments([]listingDoc{toDoc(l)}, strPtr("id"))
	return err
}

// Remove implements Syncer.
func (m *MeiliSync) Remove(_ context.Context, listingID string) error {
	_, err := m.client.Index(m.index).DeleteDocument(listingID)
	return err
}

func strPtr(s string) *string { return &s }
