package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/lexcorpus/regrag/internal/config"
	"github.com/lexcorpus/regrag/internal/embedding"
	"github.com/lexcorpus/regrag/internal/language"
)

// Retrieval modes, in descending order of capability. A language's effective
// mode is decided by what actually initialized, not by configuration intent.
const (
	ModeVectorOnly         = "vector-only"
	ModeHybrid             = "hybrid"
	ModeHierarchicalHybrid = "hierarchical-hybrid"
)

// ResourceSet bundles everything retrieval needs for one language: the
// vector index over its collection and, when the corpus is large enough, a
// BM25 keyword index.
type ResourceSet struct {
	Settings language.Settings
	Vector   *VectorIndex
	// Keyword is nil when the corpus was below the minimum at build time.
	Keyword *KeywordIndex
}

// Mode returns the best retrieval mode this set supports given current graph
// availability.
func (r *ResourceSet) Mode(graphAvailable bool) string {
	if r.Keyword == nil {
		return ModeVectorOnly
	}
	if graphAvailable {
		return ModeHierarchicalHybrid
	}
	return ModeHybrid
}

// Registry lazily initializes and caches per-language resource sets.
// Initialization is deduplicated with singleflight so a burst of first
// queries in a new language triggers exactly one collection scan.
type Registry struct {
	cfg      *config.Config
	client   VectorClient
	embedder embedding.Embedder
	logger   *logrus.Logger

	mu    sync.RWMutex
	sets  map[string]*ResourceSet
	group singleflight.Group
}

// NewRegistry creates the registry. The embedder is shared across languages;
// collections are separated by a per-language name suffix.
func NewRegistry(cfg *config.Config, client VectorClient, embedder embedding.Embedder, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		cfg:      cfg,
		client:   client,
		embedder: embedder,
		logger:   logger,
		sets:     make(map[string]*ResourceSet),
	}
}

// CollectionName returns the vector collection for a language code.
func (r *Registry) CollectionName(code string) string {
	return r.cfg.Qdrant.CollectionPrefix + "_" + code
}

// enabled reports whether the deployment's configured language list includes
// the code. An empty list enables every language with settings.
func (r *Registry) enabled(code string) bool {
	if len(r.cfg.Language.Supported) == 0 {
		return true
	}
	for _, supported := range r.cfg.Language.Supported {
		if supported == code {
			return true
		}
	}
	return false
}

// Get returns the initialized resource set for the language, initializing it
// on first use. Codes without language settings or outside the configured
// LANGUAGE_SUPPORTED list are rejected; the caller decides whether to fall
// back to the default language.
func (r *Registry) Get(ctx context.Context, code string) (*ResourceSet, error) {
	settings, ok := language.SettingsFor(code)
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", code)
	}
	if !r.enabled(settings.Code) {
		return nil, fmt.Errorf("language %q is not enabled for this deployment", settings.Code)
	}

	r.mu.RLock()
	set, found := r.sets[settings.Code]
	r.mu.RUnlock()
	if found {
		return set, nil
	}

	result, err, _ := r.group.Do(settings.Code, func() (interface{}, error) {
		// Re-check under the flight: a previous caller may have stored it.
		r.mu.RLock()
		existing, ok := r.sets[settings.Code]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		built, initErr := r.initialize(ctx, settings)
		if initErr != nil {
			return nil, initErr
		}

		r.mu.Lock()
		r.sets[settings.Code] = built
		r.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ResourceSet), nil
}

// initialize ensures the language collection exists, scrolls its chunks, and
// builds the keyword index. A small corpus yields a set without a keyword
// index rather than an error.
func (r *Registry) initialize(ctx context.Context, settings language.Settings) (*ResourceSet, error) {
	vector := NewVectorIndex(r.client, r.embedder, r.CollectionName(settings.Code), settings.Code, r.logger)

	if err := vector.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize language %s: %w", settings.Code, err)
	}

	chunks, err := vector.AllChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus for language %s: %w", settings.Code, err)
	}

	set := &ResourceSet{
		Settings: settings,
		Vector:   vector,
		Keyword:  NewKeywordIndex(chunks, settings, r.cfg.Indexing.MinKeywordCorpus, r.logger),
	}

	r.logger.WithFields(logrus.Fields{
		"language": settings.Code,
		"chunks":   len(chunks),
		"keyword":  set.Keyword != nil,
	}).Info("Language resources initialized")
	return set, nil
}

// RebuildKeyword rescans the collection and replaces the language's keyword
// index. Called after indexing or deletion changes the corpus. Concurrent
// rebuilds for the same language are collapsed by singleflight.
func (r *Registry) RebuildKeyword(ctx context.Context, code string) error {
	settings, ok := language.SettingsFor(code)
	if !ok {
		return fmt.Errorf("unsupported language %q", code)
	}

	r.mu.RLock()
	set, found := r.sets[settings.Code]
	r.mu.RUnlock()
	if !found {
		// Never initialized; the next Get builds everything fresh.
		return nil
	}

	_, err, _ := r.group.Do("rebuild:"+settings.Code, func() (interface{}, error) {
		chunks, scanErr := set.Vector.AllChunks(ctx)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to rescan corpus for language %s: %w", settings.Code, scanErr)
		}

		// Replace the whole set so readers holding the old pointer keep a
		// consistent immutable view.
		r.mu.Lock()
		r.sets[settings.Code] = &ResourceSet{
			Settings: settings,
			Vector:   set.Vector,
			Keyword:  NewKeywordIndex(chunks, settings, r.cfg.Indexing.MinKeywordCorpus, r.logger),
		}
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

// Invalidate drops the cached resource set so the next query reinitializes
// from the store.
func (r *Registry) Invalidate(code string) {
	r.mu.Lock()
	delete(r.sets, code)
	r.mu.Unlock()
}

// Initialized reports whether a language's resources are currently cached.
func (r *Registry) Initialized(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sets[code]
	return ok
}
