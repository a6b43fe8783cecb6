// Package coordinator schedules air quality fetches for a monitoring
// site and holds the latest observation in memory.
//
// Each site gets one Coordinator. It computes a fetch schedule of evenly
// spaced slots across the current and next local day, arms a deferred
// task for the next due slot, and applies successful fetch results to
// its in-memory observation, the on-disk cache, and any subscribed
// listeners. Failed fetches are recorded in the coordinator status and
// never touch the last good observation.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/airpulse/airpulse/internal/airquality"
	"github.com/airpulse/airpulse/internal/cache"
	"github.com/airpulse/airpulse/internal/provider/resilience"
)

const (
	// DefaultDivisions splits each 24-hour window into 30-minute slots.
	DefaultDivisions = 48

	// DefaultCheckInterval is how often the coordinator inspects the
	// schedule head and notifies polling listeners.
	DefaultCheckInterval = 5 * time.Minute

	// DefaultMinFetchInterval throttles back-to-back fetch attempts.
	DefaultMinFetchInterval = 60 * time.Second
)

// ErrStopped is returned by RequestRefresh after the coordinator has
// been stopped.
var ErrStopped = errors.New("coordinator stopped")

// State describes the coordinator lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateFetching
	StateStopped
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFetching:
		return "fetching"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Fetcher retrieves the current observation for a site.
type Fetcher interface {
	FetchObservation(ctx context.Context, siteID string) (airquality.Observation, error)
}

// HistoryRecorder archives successful observations. Implementations
// must tolerate concurrent calls.
type HistoryRecorder interface {
	Insert(ctx context.Context, siteID string, obs airquality.Observation) error
}

// Status is a point-in-time snapshot of a coordinator.
type Status struct {
	SiteID      string    `json:"site_id"`
	SiteName    string    `json:"site_name"`
	State       string    `json:"state"`
	LastUpdated time.Time `json:"last_updated"`
	LastAttempt time.Time `json:"last_attempt"`
	LastError   string    `json:"last_error,omitempty"`
	NextFetch   time.Time `json:"next_fetch"`
	QueuedSlots int       `json:"queued_slots"`
}

// Config configures a Coordinator.
type Config struct {
	Site    airquality.Site
	Fetcher Fetcher
	Store   *cache.Store

	// History receives every successful observation. Optional.
	History HistoryRecorder

	// Health receives success/failure outcomes for provider health
	// tracking. Optional.
	Health *resilience.Registry

	// ProviderName keys health records. Defaults to the site ID.
	ProviderName string

	// Timezone anchors the fetch schedule. Defaults to the host
	// timezone. Loading it is the only environment capability the
	// coordinator depends on, checked once at construction.
	Timezone string

	Divisions        int
	CheckInterval    time.Duration
	MinFetchInterval time.Duration

	Logger zerolog.Logger
}

// Coordinator drives scheduled and on-demand fetches for one site.
type Coordinator struct {
	site             airquality.Site
	fetcher          Fetcher
	store            *cache.Store
	history          HistoryRecorder
	health           *resilience.Registry
	providerName     string
	checkInterval    time.Duration
	minFetchInterval time.Duration
	logger           zerolog.Logger

	group singleflight.Group

	mu           sync.RWMutex
	state        State
	obs          airquality.Observation
	lastAttempt  time.Time
	lastError    error
	dataChanged  bool
	schedule     *Schedule
	nextMidnight time.Time
	pending      *time.Timer
	pendingAt    time.Time
	listeners    map[uint64]func()
	nextListener uint64

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New builds a Coordinator. It validates the configuration and resolves
// the schedule timezone, but does not load the cache or start timers;
// call Start for that.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Site.ID == "" {
		return nil, fmt.Errorf("site ID is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("cache store is required")
	}

	loc := time.Local
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("loading timezone %q: %w", cfg.Timezone, err)
		}
	}

	if cfg.Divisions <= 0 {
		cfg.Divisions = DefaultDivisions
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.MinFetchInterval <= 0 {
		cfg.MinFetchInterval = DefaultMinFetchInterval
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = cfg.Site.ID
	}

	return &Coordinator{
		site:             cfg.Site,
		fetcher:          cfg.Fetcher,
		store:            cfg.Store,
		history:          cfg.History,
		health:           cfg.Health,
		providerName:     cfg.ProviderName,
		checkInterval:    cfg.CheckInterval,
		minFetchInterval: cfg.MinFetchInterval,
		logger:           cfg.Logger.With().Str("component", "coordinator").Str("site_id", cfg.Site.ID).Logger(),
		state:            StateUninitialized,
		schedule:         NewSchedule(cfg.Divisions, loc),
		listeners:        make(map[uint64]func()),
	}, nil
}

// Site returns the monitored site.
func (c *Coordinator) Site() airquality.Site {
	return c.site
}

// Start seeds the observation from the cache, computes the fetch
// schedule, and launches the periodic check loop. A missing or corrupt
// cache is logged and ignored; the coordinator starts empty.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return fmt.Errorf("coordinator for site %s already started", c.site.ID)
	}

	rec, err := c.store.Load()
	switch {
	case err == nil:
		c.obs = rec.Observation
		c.lastAttempt = rec.LastAttempt
		c.logger.Info().
			Time("last_updated", rec.LastUpdated).
			Msg("seeded observation from cache")
	case errors.Is(err, cache.ErrNoCache):
		c.logger.Debug().Msg("no cache file, starting empty")
	default:
		c.logger.Warn().Err(err).Msg("discarding unreadable cache")
	}

	now := time.Now()
	c.schedule.Recompute(now)
	c.nextMidnight = c.schedule.NextMidnight(now)
	c.state = StateReady

	c.runCtx, c.runCancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()

	c.logger.Info().
		Int("queued_slots", c.schedule.Len()).
		Msg("coordinator started")
	return nil
}

// Stop cancels the check loop and any pending deferred fetch. It is
// safe to call more than once.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	c.state = StateStopped
	cancel := c.runCancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.CancelPendingFetch()
	c.wg.Wait()
	c.logger.Info().Msg("coordinator stopped")
}

// Observation returns the most recent successfully fetched observation.
// Before the first success it is the zero Observation, whose IsZero
// method reports true.
func (c *Coordinator) Observation() airquality.Observation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.obs
}

// DataChanged reports whether a fetch result is being applied right
// now. It is true only for the duration of the listener notifications
// that follow a successful fetch.
func (c *Coordinator) DataChanged() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dataChanged
}

// Status returns a snapshot of the coordinator for observability
// surfaces.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{
		SiteID:      c.site.ID,
		SiteName:    c.site.Name,
		State:       c.state.String(),
		LastUpdated: c.obs.UpdatedAt,
		LastAttempt: c.lastAttempt,
		QueuedSlots: c.schedule.Len(),
	}
	if c.lastError != nil {
		st.LastError = c.lastError.Error()
	}
	if !c.pendingAt.IsZero() {
		st.NextFetch = c.pendingAt
	} else if head, ok := c.schedule.Head(); ok {
		st.NextFetch = head
	}
	return st
}

// Subscribe registers a listener invoked after every applied fetch and
// on every periodic check tick. The returned id is passed to
// Unsubscribe.
func (c *Coordinator) Subscribe(fn func()) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextListener++
	id := c.nextListener
	c.listeners[id] = fn
	return id
}

// Unsubscribe removes a listener. Unknown ids are ignored.
func (c *Coordinator) Unsubscribe(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
}

// RequestRefresh triggers an immediate fetch. Concurrent requests for
// the same site share a single upstream call and its outcome. A request
// arriving within the minimum fetch interval of the previous attempt is
// a no-op. The context only bounds how long the caller waits; a fetch
// in flight is never interrupted by it.
func (c *Coordinator) RequestRefresh(ctx context.Context) error {
	return c.triggerFetch(ctx, "manual")
}

// SetDivisions changes the schedule granularity, recomputes the queue,
// and triggers an immediate fetch so consumers see fresh data under the
// new cadence.
func (c *Coordinator) SetDivisions(divisions int) {
	c.CancelPendingFetch()

	c.mu.Lock()
	loc := c.schedule.loc
	c.schedule = NewSchedule(divisions, loc)
	now := time.Now()
	c.schedule.Recompute(now)
	c.nextMidnight = c.schedule.NextMidnight(now)
	runCtx := c.runCtx
	c.mu.Unlock()

	c.logger.Info().Int("divisions", divisions).Msg("schedule recomputed")

	if runCtx == nil {
		return
	}
	go func() {
		if err := c.triggerFetch(runCtx, "options"); err != nil {
			c.logger.Warn().Err(err).Msg("fetch after options change failed")
		}
	}()
}

// CancelPendingFetch disarms the deferred fetch task, if any. Safe to
// call at any time, any number of times.
func (c *Coordinator) CancelPendingFetch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
		c.pendingAt = time.Time{}
	}
}

// run performs the periodic check aligned to wall-clock multiples of
// the check interval.
func (c *Coordinator) run() {
	defer c.wg.Done()

	for {
		now := time.Now()
		next := now.Truncate(c.checkInterval).Add(c.checkInterval)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-c.runCtx.Done():
			timer.Stop()
			return
		case <-timer.C:
			c.onCheck(time.Now())
		}
	}
}

// onCheck runs one periodic check: recompute the schedule after
// midnight, arm the deferred fetch when the head slot falls inside the
// current check window, and notify listeners so polling consumers pick
// up changes.
func (c *Coordinator) onCheck(now time.Time) {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}

	if !now.Before(c.nextMidnight) {
		c.schedule.Recompute(now)
		c.nextMidnight = c.schedule.NextMidnight(now)
		c.logger.Debug().
			Int("queued_slots", c.schedule.Len()).
			Msg("schedule recomputed for new day")
	}

	c.schedule.DropPast(now)
	windowEnd := now.Add(c.checkInterval)
	if head, ok := c.schedule.Head(); ok && head.Before(windowEnd) && c.pending == nil {
		c.schedule.Pop()
		c.armDeferred(head, now)
	}
	c.mu.Unlock()

	c.notifyListeners()
}

// armDeferred schedules a one-shot fetch at the given slot time. Caller
// must hold c.mu.
func (c *Coordinator) armDeferred(at, now time.Time) {
	delay := at.Sub(now)
	if delay < 0 {
		delay = 0
	}
	c.pendingAt = at
	c.pending = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.pending = nil
		c.pendingAt = time.Time{}
		runCtx := c.runCtx
		c.mu.Unlock()

		if err := c.triggerFetch(runCtx, "scheduled"); err != nil {
			c.logger.Warn().Err(err).Msg("scheduled fetch failed")
		}
	})
	c.logger.Debug().Time("at", at).Msg("deferred fetch armed")
}

// triggerFetch runs one fetch cycle, deduplicating concurrent triggers
// through a singleflight group. The fetch itself runs under the
// coordinator's own context so an impatient caller cannot interrupt it
// for everyone else.
func (c *Coordinator) triggerFetch(ctx context.Context, reason string) error {
	c.mu.RLock()
	if c.state == StateStopped {
		c.mu.RUnlock()
		return ErrStopped
	}
	runCtx := c.runCtx
	c.mu.RUnlock()

	if runCtx == nil {
		return fmt.Errorf("coordinator for site %s not started", c.site.ID)
	}
	if ctx == nil {
		ctx = runCtx
	}

	ch := c.group.DoChan(c.site.ID, func() (any, error) {
		return nil, c.fetchCycle(runCtx, reason)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetchCycle performs one attempt: throttle check, fetch, then apply
// the result. Failures update the status and provider health but leave
// the last good observation alone.
func (c *Coordinator) fetchCycle(ctx context.Context, reason string) error {
	c.mu.Lock()
	if !c.lastAttempt.IsZero() {
		if since := time.Since(c.lastAttempt); since < c.minFetchInterval {
			c.mu.Unlock()
			c.logger.Debug().
				Str("reason", reason).
				Dur("since_last_attempt", since).
				Msg("fetch throttled")
			return nil
		}
	}
	c.lastAttempt = time.Now().UTC()
	c.state = StateFetching
	c.mu.Unlock()

	obs, err := c.fetcher.FetchObservation(ctx, c.site.ID)
	if err != nil {
		c.mu.Lock()
		c.lastError = err
		c.state = StateReady
		c.mu.Unlock()

		if c.health != nil {
			c.health.RecordFailure(c.providerName, err)
		}
		c.logger.Error().Err(err).Str("reason", reason).Msg("fetch failed")
		return err
	}

	c.applyObservation(ctx, obs)
	c.logger.Info().
		Str("reason", reason).
		Float64("pm25", obs.PM25).
		Int("aqi_pm25", obs.AQI).
		Msg("observation updated")
	return nil
}

// applyObservation commits a successful fetch: in-memory observation,
// cache file, history archive, health record, then listeners.
func (c *Coordinator) applyObservation(ctx context.Context, obs airquality.Observation) {
	c.mu.Lock()
	c.obs = obs
	c.lastError = nil
	c.state = StateReady
	c.dataChanged = true
	lastAttempt := c.lastAttempt
	c.mu.Unlock()

	if err := c.store.Save(cache.Record{
		SiteID:      c.site.ID,
		Observation: obs,
		LastUpdated: obs.UpdatedAt,
		LastAttempt: lastAttempt,
	}); err != nil {
		c.logger.Warn().Err(err).Msg("cache save failed")
	}

	if c.history != nil {
		if err := c.history.Insert(ctx, c.site.ID, obs); err != nil {
			c.logger.Warn().Err(err).Msg("history insert failed")
		}
	}
	if c.health != nil {
		c.health.RecordSuccess(c.providerName)
	}

	c.notifyListeners()

	c.mu.Lock()
	c.dataChanged = false
	c.mu.Unlock()
}

// notifyListeners invokes every subscribed listener. Listeners run
// outside the coordinator lock so they may call back into it.
func (c *Coordinator) notifyListeners() {
	c.mu.RLock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
