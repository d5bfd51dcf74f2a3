package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/dwd-warning-service/internal/cache"
	"github.com/kjstillabower/dwd-warning-service/internal/circuitbreaker"
	"github.com/kjstillabower/dwd-warning-service/internal/client"
	"github.com/kjstillabower/dwd-warning-service/internal/dwd"
	"github.com/kjstillabower/dwd-warning-service/internal/lifecycle"
	"github.com/kjstillabower/dwd-warning-service/internal/models"
	"github.com/kjstillabower/dwd-warning-service/internal/observability"
	"github.com/kjstillabower/dwd-warning-service/internal/snapshot"
	"github.com/kjstillabower/dwd-warning-service/internal/traffic"
)

// ErrCardNotFound is returned for card names that are not configured.
var ErrCardNotFound = errors.New("card not found")

// coalesceWait bounds how long a caller waits on a shared state fetch.
const coalesceWait = 30 * time.Second

// CardService renders configured warning cards from the Home Assistant state listing.
// The listing is read cache-aside (cache first, Home Assistant on miss) and merged
// into a snapshot store; a card is only decoded again when one of its entities changed.
// Concurrent cache misses share one Home Assistant fetch.
type CardService struct {
	client    client.StatesClient
	cache     cache.Cache
	store     *snapshot.Store
	ttl       time.Duration
	icons     dwd.IconResolver
	coalescer *requestCoalescer

	names   []string
	cards   map[string]*cardState
	tracked map[string]struct{}
}

// cardState is the last rendered view of one card and the snapshot it was built from.
type cardState struct {
	mu       sync.Mutex
	cfg      dwd.CardConfig
	lastSnap *models.Snapshot
	view     models.CardView
	rendered bool
}

// NewCardService creates a CardService for the given cards. TTL is the cache expiration
// of the state listing. A nil icons resolver falls back to dwd.FallbackIcons.
// Cards are validated; the first rejected card fails construction.
func NewCardService(client client.StatesClient, cache cache.Cache, store *snapshot.Store, cards []dwd.CardConfig, ttl time.Duration, icons dwd.IconResolver) (*CardService, error) {
	if icons == nil {
		icons = dwd.FallbackIcons
	}
	if store == nil {
		store = snapshot.NewStore()
	}
	s := &CardService{
		client:    client,
		cache:     cache,
		store:     store,
		ttl:       ttl,
		icons:     icons,
		coalescer: newRequestCoalescer(coalesceWait),
		cards:     make(map[string]*cardState, len(cards)),
		tracked:   make(map[string]struct{}, 2*len(cards)),
	}
	for i := range cards {
		cfg := cards[i]
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("card %q: %w", cfg.Name, err)
		}
		if _, dup := s.cards[cfg.Name]; dup {
			return nil, fmt.Errorf("duplicate card %q", cfg.Name)
		}
		s.cards[cfg.Name] = &cardState{cfg: cfg}
		s.names = append(s.names, cfg.Name)
		s.tracked[cfg.PrimarySourceID] = struct{}{}
		s.tracked[cfg.SecondaryID()] = struct{}{}
	}
	return s, nil
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// CardNames returns the configured card names in configuration order.
func (s *CardService) CardNames() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Refresh loads the state listing using the cache-aside pattern and applies it to the store.
// Only entities referenced by a configured card are kept, cached and applied.
// A successful refresh marks the service ready.
func (s *CardService) Refresh(ctx context.Context) error {
	logger := loggerFromContext(ctx)

	entities, cached := s.cachedStates(ctx)
	if !cached {
		var (
			shared bool
			err    error
		)
		entities, shared, err = s.coalescer.GetOrDo(ctx, cache.StatesKey, func() ([]models.Entity, error) {
			return s.fetchStates(context.WithoutCancel(ctx))
		})
		if shared {
			observability.HomeAssistantCoalescedTotal.Inc()
		}
		if err != nil {
			return fmt.Errorf("fetch states: %w", err)
		}
	}

	_, next := s.store.Apply(entities)
	lifecycle.MarkReady()
	if logger != nil {
		logger.Debug("states applied", zap.Int("entities", next.Len()), zap.Bool("cached", cached))
	}
	return nil
}

// fetchStates performs one Home Assistant fetch, records its outcome for the
// health error rate and stores the tracked entities in the cache.
func (s *CardService) fetchStates(ctx context.Context) ([]models.Entity, error) {
	entities, err := s.client.GetStates(ctx)
	if err != nil {
		if !errors.Is(err, circuitbreaker.ErrOpen) {
			traffic.RecordError()
		}
		if logger := loggerFromContext(ctx); logger != nil {
			logger.Warn("states fetch failed",
				zap.String("category", string(client.CategorizeError(err))),
				zap.Error(err))
		}
		return nil, err
	}
	traffic.RecordSuccess()

	entities = s.filterTracked(entities)
	s.storeStates(ctx, entities)
	return entities, nil
}

// filterTracked keeps the entities some card reads, in listing order.
func (s *CardService) filterTracked(entities []models.Entity) []models.Entity {
	out := make([]models.Entity, 0, len(s.tracked))
	for _, e := range entities {
		if _, ok := s.tracked[e.EntityID]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (s *CardService) cachedStates(ctx context.Context) ([]models.Entity, bool) {
	if s.cache == nil {
		return nil, false
	}
	getStart := time.Now()
	entities, ok, err := s.cache.Get(ctx, cache.StatesKey)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		if logger := loggerFromContext(ctx); logger != nil {
			logger.Warn("cache get failed", zap.Error(err))
		}
		return nil, false
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
	if ok {
		observability.CacheHitsTotal.WithLabelValues("states").Inc()
	}
	return entities, ok
}

func (s *CardService) storeStates(ctx context.Context, entities []models.Entity) {
	if s.cache == nil {
		return
	}
	setStart := time.Now()
	if err := s.cache.Set(ctx, cache.StatesKey, entities, s.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		if logger := loggerFromContext(ctx); logger != nil {
			logger.Warn("cache set failed", zap.Error(err))
		}
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
}

// GetCard returns the view of the named card. The state listing is refreshed first;
// when that fails and an earlier snapshot exists, the card is rendered from it.
// The view is only rebuilt when the card's primary or secondary entity changed.
func (s *CardService) GetCard(ctx context.Context, name string) (models.CardView, error) {
	cs, ok := s.cards[name]
	if !ok {
		return models.CardView{}, fmt.Errorf("%w: %s", ErrCardNotFound, name)
	}
	logger := loggerFromContext(ctx)

	if err := s.Refresh(ctx); err != nil {
		if s.store.Current() == nil {
			return models.CardView{}, err
		}
		if logger != nil {
			logger.Warn("serving card from last snapshot", zap.String("card", name), zap.Error(err))
		}
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	// Read under the card lock so a slower request cannot render an older snapshot
	// over a view already built from a newer one.
	snap := s.store.Current()
	if cs.lastSnap != nil && snap.Seq < cs.lastSnap.Seq {
		snap = cs.lastSnap
	}

	recompute := dwd.ShouldRecompute(cs.lastSnap, snap, &cs.cfg, !cs.rendered)
	observability.RecordCardEvaluation(name, recompute)
	if recompute {
		cs.view = s.render(&cs.cfg, snap)
		cs.rendered = true
		observability.RecordCardView(name, cs.view.GridSize, cs.view.PrimaryCount, cs.view.SecondaryCount)
		if logger != nil {
			logger.Debug("card rendered",
				zap.String("card", name),
				zap.Int("primary", cs.view.PrimaryCount),
				zap.Int("secondary", cs.view.SecondaryCount),
				zap.Int("grid_size", cs.view.GridSize),
			)
		}
	}
	cs.lastSnap = snap

	view := cs.view
	view.Recomputed = recompute
	return view, nil
}

// render decodes both warning sets of a card and sizes it.
func (s *CardService) render(cfg *dwd.CardConfig, snap *models.Snapshot) models.CardView {
	secondaryID := cfg.SecondaryID()
	primary := dwd.Decode(snap, cfg.PrimarySourceID)
	secondary := dwd.Decode(snap, secondaryID)
	size := dwd.CardSize(snap, cfg)
	footer := dwd.ReadFooter(snap, cfg)

	return models.CardView{
		Card:              cfg.Name,
		PrimarySourceID:   cfg.PrimarySourceID,
		SecondarySourceID: secondaryID,
		PrimaryFound:      snap.Get(cfg.PrimarySourceID) != nil,
		Primary:           s.warningViews(cfg, primary.Warnings),
		Secondary:         s.warningViews(cfg, secondary.Warnings),
		PrimaryCount:      primary.WarningCount,
		SecondaryCount:    secondary.WarningCount,
		LastUpdate:        primary.LastUpdate,
		RegionName:        footer.RegionName,
		Attribution:       footer.Attribution,
		GridSize:          size,
		Layout:            dwd.Layout(cfg, size),
	}
}

func (s *CardService) warningViews(cfg *dwd.CardConfig, warnings []models.Warning) []models.WarningView {
	out := make([]models.WarningView, 0, len(warnings))
	for _, w := range warnings {
		title := w.Headline
		if cfg.CompactHeadline && w.Name != nil && *w.Name != "" {
			title = *w.Name
		}
		out = append(out, models.WarningView{
			Warning:      w,
			Icon:         s.icons(w.Type),
			DisplayTitle: title,
		})
	}
	return out
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
