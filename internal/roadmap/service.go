package roadmap

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/mirkovic-academy/quantframe/internal/platform/cache"
)

// DefaultCacheTTL is how long a generated roadmap stays cached.
const DefaultCacheTTL = 24 * time.Hour

// Service generates roadmaps against one catalog, with optional result
// caching and narration.
type Service struct {
	catalog  *Catalog
	cache    cache.JSONCache
	ttl      time.Duration
	narrator *Narrator
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache caches generated roadmaps. A non-positive ttl uses
// DefaultCacheTTL.
func WithCache(c cache.JSONCache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		s.cache = c
		s.ttl = ttl
	}
}

// WithNarrator rephrases rationales after generation.
func WithNarrator(n *Narrator) ServiceOption {
	return func(s *Service) {
		s.narrator = n
	}
}

// NewService creates a service. A nil catalog uses DefaultCatalog.
func NewService(c *Catalog, opts ...ServiceOption) *Service {
	if c == nil {
		c = DefaultCatalog()
	}
	s := &Service{catalog: c}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the catalog the service generates against.
func (s *Service) Catalog() *Catalog { return s.catalog }

// Generate returns the roadmap for a profile, from cache when possible.
// Cache failures are logged and never fail the request.
func (s *Service) Generate(ctx context.Context, userID string, p Profile, opts Options) (Roadmap, error) {
	if err := p.Validate(); err != nil {
		return Roadmap{}, err
	}
	key := CacheKey(p, opts, s.catalog.Version, s.narrator != nil)

	if s.cache != nil {
		var cached Roadmap
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			slog.Warn("roadmap cache read failed", "key", key, "error", err)
		} else if hit {
			return cached, nil
		}
	}

	rm, err := Generate(p, s.catalog, opts)
	if err != nil {
		return Roadmap{}, err
	}
	if s.narrator != nil {
		rm, _ = s.narrator.Narrate(ctx, userID, rm)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, rm, s.ttl); err != nil {
			slog.Warn("roadmap cache write failed", "key", key, "error", err)
		}
	}
	return rm, nil
}

type cacheKeyInput struct {
	Profile  Profile `json:"profile"`
	Options  Options `json:"options"`
	Catalog  string  `json:"catalog"`
	Narrated bool    `json:"narrated"`
}

// CacheKey identifies a generation request: the blake2b-256 hash of the
// normalized profile, the options and the catalog version. Profiles that
// differ only in list order share a key.
func CacheKey(p Profile, opts Options, catalogVersion string, narrated bool) string {
	payload, _ := json.Marshal(cacheKeyInput{
		Profile:  p.Normalized(),
		Options:  opts,
		Catalog:  catalogVersion,
		Narrated: narrated,
	})
	sum := blake2b.Sum256(payload)
	return "roadmap:" + hex.EncodeToString(sum[:])
}
