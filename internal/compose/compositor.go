package compose

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"adapterd/internal/clock"
	"adapterd/internal/engine"
	"adapterd/internal/registry"
	"adapterd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultCacheCapacity = 64
	defaultCacheTTL      = 30 * time.Minute
	defaultBuildTimeout  = 30 * time.Second
	defaultQueueDepth    = 64
	defaultWorkers       = 4
	defaultSweepInterval = time.Minute
)

// Config encapsulates all tunables for Compositor construction.
type Config struct {
	CacheCapacity int
	CacheTTL      time.Duration
	BuildTimeout  time.Duration
	QueueDepth    int
	Workers       int
	SweepInterval time.Duration

	Clock     clock.Clock
	Logger    zerolog.Logger
	Publisher EventPublisher
}

// Compositor orchestrates composition requests against the cache and the
// inference engine.
type Compositor struct {
	cache *Cache
	reg   *registry.Registry
	eng   engine.Engine
	clk   clock.Clock
	log   zerolog.Logger
	pub   EventPublisher

	buildTimeout time.Duration

	queue   *requestQueue
	workers int

	redirects *redirectTable

	stop chan struct{}
}

// New constructs a Compositor from Config and starts its workers and the
// background TTL sweeper. Call Close to release them.
func New(reg *registry.Registry, eng engine.Engine, cfg Config) *Compositor {
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = defaultCacheCapacity
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = defaultBuildTimeout
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	c := &Compositor{
		cache:        NewCache(cfg.CacheCapacity, cfg.CacheTTL, cfg.Clock, cfg.Publisher),
		reg:          reg,
		eng:          eng,
		clk:          cfg.Clock,
		log:          cfg.Logger,
		pub:          cfg.Publisher,
		buildTimeout: cfg.BuildTimeout,
		queue:        newRequestQueue(cfg.QueueDepth),
		workers:      cfg.Workers,
		redirects:    newRedirectTable(),
		stop:         make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		go c.worker()
	}
	go c.sweeper(cfg.SweepInterval)
	return c
}

// Close stops the workers and the sweeper. Queued requests that have not
// started receive a shutdown error through their callback.
func (c *Compositor) Close() {
	close(c.stop)
	c.queue.drain(func(rq *asyncRequest) {
		if rq.callback != nil {
			rq.callback(rq.id, nil, errors.New("compositor closed"))
		}
	})
}

// Cache exposes the composition cache; the registry uses it as the live
// usage check for deregistration, tests use it for direct assertions.
func (c *Compositor) Cache() *Cache { return c.cache }

// EngineKind names the backing engine for status reporting.
func (c *Compositor) EngineKind() string { return c.eng.Kind() }

// Workers reports the configured worker count.
func (c *Compositor) Workers() int { return c.workers }

// EffectiveIDs applies swap redirects to adapterIDs, returning the ids a
// composition would actually resolve. Callers attributing outcomes per
// adapter should use these, not the requested ids.
func (c *Compositor) EffectiveIDs(adapterIDs []string) []string {
	return c.redirects.apply(adapterIDs)
}

// ComposeSync returns a referenced handle for the adapter stack, blocking
// the caller. Missing adapters fail with the registry's not-found error;
// builds exceeding the configured deadline fail with a build timeout and
// never populate the cache. Callers must Release the returned Ref.
func (c *Compositor) ComposeSync(ctx context.Context, adapterIDs []string, strategy types.Strategy) (*Ref, error) {
	if !types.ValidStrategy(strategy) {
		return nil, invalidStrategyError{strategy: string(strategy)}
	}
	if len(adapterIDs) == 0 {
		return nil, errors.New("empty adapter list")
	}
	ids := c.redirects.apply(adapterIDs)
	key := NewKey(ids, strategy)

	// Resolve in canonical key order so the engine sees the composition
	// order the cache is keyed on.
	descs := make([]types.AdapterDescriptor, len(key.IDs))
	for i, id := range key.IDs {
		d, err := c.reg.Resolve(id)
		if err != nil {
			return nil, err
		}
		descs[i] = d
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.buildTimeout)
	defer cancel()

	ref, err := c.cache.GetOrBuild(waitCtx, key, func() (engine.Handle, error) {
		// Builds run detached from the caller: a caller that times out does
		// not cancel a started build.
		buildCtx, cancelBuild := context.WithTimeout(context.Background(), c.buildTimeout)
		defer cancelBuild()
		h, err := c.eng.Compose(buildCtx, descs, strategy)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrBuildTimeout(key.String())
			}
			if engine.IsDependencyUnavailable(err) {
				return nil, err
			}
			return nil, ErrBuildFailed(key.String(), err)
		}
		return h, nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrBuildTimeout(key.String())
		}
		return nil, err
	}
	return ref, nil
}

// Prefetch fire-and-forgets a low-priority async build, used at startup
// against the configured warm list.
func (c *Compositor) Prefetch(adapterIDs []string, strategy types.Strategy) error {
	_, err := c.ComposeAsync(adapterIDs, strategy, PriorityLow, nil)
	return err
}

// Stats snapshots the cache counters.
func (c *Compositor) Stats() types.CacheStats { return c.cache.Stats() }

// QueueLen returns the number of queued async requests.
func (c *Compositor) QueueLen() int { return c.queue.len() }

// QueueDepth returns the async queue capacity.
func (c *Compositor) QueueDepth() int { return c.queue.depth }

func (c *Compositor) sweeper(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.cache.Sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Compositor) worker() {
	for {
		select {
		case <-c.queue.signal:
			rq := c.queue.pop()
			if rq == nil {
				continue
			}
			queueLen.Set(float64(c.queue.len()))
			c.run(rq)
		case <-c.stop:
			return
		}
	}
}

// run executes one async request and fires its callback exactly once.
func (c *Compositor) run(rq *asyncRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), c.buildTimeout)
	defer cancel()
	ref, err := c.ComposeSync(ctx, rq.ids, rq.strategy)
	if rq.callback == nil {
		if ref != nil {
			ref.Release()
		}
		if err != nil {
			c.log.Debug().Err(err).Strs("adapters", rq.ids).Msg("prefetch build failed")
		}
		return
	}
	rq.callback(rq.id, ref, err)
}
