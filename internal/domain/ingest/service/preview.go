package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/extractor"
)

// DefaultPreviewTTL bounds how long an extracted PDF waits for confirmation.
const DefaultPreviewTTL = 30 * time.Minute

// Preview is the reviewable result of ExtractPDF. Nothing in it has been
// persisted.
type Preview struct {
	ID         uuid.UUID                   `json:"id"`
	Owner      uuid.UUID                   `json:"owner"`
	BrokerID   uuid.UUID                   `json:"broker_id"`
	SourceName string                      `json:"source_name"`
	Pages      int                         `json:"pages"`
	Candidates []extractor.Candidate       `json:"candidates"`
	Factors    []extractor.FactorCandidate `json:"factors"`
	CreatedAt  time.Time                   `json:"created_at"`
	ExpiresAt  time.Time                   `json:"expires_at"`
}

// PreviewStore keeps previews in process memory until confirmed or expired.
type PreviewStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewPreviewStore(ttl time.Duration) *PreviewStore {
	if ttl <= 0 {
		ttl = DefaultPreviewTTL
	}
	return &PreviewStore{cache: cache.New(ttl, 2*ttl), ttl: ttl}
}

func (s *PreviewStore) Put(p *Preview) {
	p.ExpiresAt = p.CreatedAt.Add(s.ttl)
	s.cache.Set(p.ID.String(), p, cache.DefaultExpiration)
}

func (s *PreviewStore) Get(id uuid.UUID) (*Preview, bool) {
	v, ok := s.cache.Get(id.String())
	if !ok {
		return nil, false
	}
	p, ok := v.(*Preview)
	return p, ok
}

// Take removes and returns a preview so it can be confirmed only once.
func (s *PreviewStore) Take(id uuid.UUID) (*Preview, bool) {
	p, ok := s.Get(id)
	if ok {
		s.cache.Delete(id.String())
	}
	return p, ok
}

func (s *PreviewStore) Count() int {
	return s.cache.ItemCount()
}
