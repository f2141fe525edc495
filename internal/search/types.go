package search

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ProviderID identifies a content provider family.
type ProviderID string

// SortPreference values accepted in a Request.
const (
	SortRecent  = "recent"
	SortPopular = "popular"
)

// Request is the provider-agnostic search request. It is immutable once
// submitted; the controller persists it verbatim so an interrupted search can
// be re-issued.
type Request struct {
	Providers       []ProviderID `json:"providers"`
	Query           string       `json:"query,omitempty"`
	Tags            []string     `json:"tags,omitempty"`
	AuthorHandle    string       `json:"authorHandle,omitempty"`
	Region          string       `json:"region,omitempty"`
	IncludeSubItems bool         `json:"includeSubItems"`
	SortPreference  string       `json:"sortPreference,omitempty"`
	Limit           int          `json:"limit"`
	IssuedAt        time.Time    `json:"issuedAt"`
}

// Metrics holds the canonical engagement counters of an item. Each provider
// maps its own counter names onto these three slots during normalisation.
type Metrics struct {
	Primary   int64 `json:"primary"`
	Secondary int64 `json:"secondary"`
	Tertiary  int64 `json:"tertiary"`
}

// Item is a canonical normalised content record. ID is provider-scoped and
// globally unique when paired with Provider.
type Item struct {
	ID           string     `json:"id"`
	Provider     ProviderID `json:"provider"`
	AuthorHandle string     `json:"authorHandle"`
	CreatedAt    time.Time  `json:"createdAt"`
	Metrics      Metrics    `json:"metrics"`
	Text         string     `json:"text"`
	URL          string     `json:"url,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	SubItems     []SubItem  `json:"subItems,omitempty"`
}

// SubItem is a reply or comment attached to an Item by the enrichment
// cascade. EngagementScore is derived by the provider that produced it.
type SubItem struct {
	ID              string    `json:"id"`
	ParentItemID    string    `json:"parentItemId"`
	AuthorHandle    string    `json:"authorHandle"`
	Metrics         Metrics   `json:"metrics"`
	EngagementScore float64   `json:"engagementScore"`
	CreatedAt       time.Time `json:"createdAt"`
	Text            string    `json:"text,omitempty"`
}

// ResultStatus describes the outcome of one provider's query.
type ResultStatus string

const (
	StatusSuccess        ResultStatus = "success"
	StatusPartialFailure ResultStatus = "partial_failure"
	StatusFailed         ResultStatus = "failed"
)

// ProviderAnalytics summarises a single provider's result set.
type ProviderAnalytics struct {
	Fetched         int   `json:"fetched"`
	TotalEngagement int64 `json:"totalEngagement"`
}

// ProviderResult is one provider's contribution to a search. A provider's
// failure never invalidates a sibling's result.
type ProviderResult struct {
	Provider       ProviderID        `json:"provider"`
	Status         ResultStatus      `json:"status"`
	Items          []Item            `json:"items"`
	Analytics      ProviderAnalytics `json:"analytics"`
	ParametersUsed map[string]string `json:"parametersUsed,omitempty"`
	Error          *ProviderError    `json:"error,omitempty"`
}

// GlobalAnalytics describes the merged view across all providers.
type GlobalAnalytics struct {
	TotalFetched      int          `json:"totalFetched"`
	UniqueCount       int          `json:"uniqueCount"`
	DuplicateCount    int          `json:"duplicateCount"`
	OverlapPercentage float64      `json:"overlapPercentage"`
	ProvidersUsed     []ProviderID `json:"providersUsed"`
}

// AggregateResult is the deduplicated, ranked view across providers. It is
// derived data: recomputed on every merge, never mutated in place.
type AggregateResult struct {
	Items           []Item                         `json:"items"`
	ProviderResults map[ProviderID]*ProviderResult `json:"providerResults"`
	Analytics       GlobalAnalytics                `json:"globalAnalytics"`
}

// State is the lifecycle state of a search.
type State string

const (
	StateIdle      State = "idle"
	StateSearching State = "searching"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateError     State = "error"
)

// Terminal reports whether no further transitions happen from s without a new
// submit.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateError
}

// ProgressRecord is the persisted state of an in-flight or finished search.
// It is mutated only by the controller that owns it.
type ProgressRecord struct {
	SearchID      string    `json:"searchId"`
	Request       Request   `json:"request"`
	State         State     `json:"state"`
	StartedAt     time.Time `json:"startedAt"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	Error         string    `json:"error,omitempty"`
}

// Result is the response surfaced to the caller of Controller.Submit.
type Result struct {
	SearchID        string                         `json:"searchId"`
	State           State                          `json:"state"`
	Items           []Item                         `json:"items"`
	Analytics       GlobalAnalytics                `json:"analytics"`
	ProviderResults map[ProviderID]*ProviderResult `json:"providerResults"`
}

// Provider is one content source queried during a search. Implementations
// must honour ctx cancellation at their next network call and must normalise
// their payloads into the canonical Item shape, filling required fields with
// explicit defaults when the upstream omits them.
type Provider interface {
	ID() ProviderID
	// Search runs one provider query for req and returns the normalised
	// envelope. A returned error is converted into a Failed envelope by the
	// orchestrator; it never aborts sibling providers.
	Search(ctx context.Context, logger *logrus.Logger, req *Request) (*ProviderResult, error)
}

// Strategy is one rung of the enrichment cascade: a bounded fetch of
// sub-items for a single item. Implementations must be safe to call
// sequentially and should respect ctx.
type Strategy struct {
	Name  string
	Fetch func(ctx context.Context, item *Item, max int) ([]SubItem, error)
}
