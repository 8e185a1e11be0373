package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/centsible/centsible/client/credentials"
)

// Orchestrator defaults. Overlapping triggers (timer, foreground,
// network-online) firing near-simultaneously are absorbed by the debounce
// window rather than queued.
const (
	DefaultRefreshInterval      = 10 * time.Minute
	DefaultDebounceWindow       = 30 * time.Second
	DefaultBackgroundForceAfter = 5 * time.Minute
)

// trigger identifies what woke the orchestrator's consumer loop.
type trigger int

const (
	triggerPeriodic trigger = iota
	triggerForeground
	triggerBackground
	triggerNetworkOnline
)

// OrchestratorConfig configures a RefreshOrchestrator.
type OrchestratorConfig struct {
	RefreshInterval      time.Duration
	DebounceWindow       time.Duration
	BackgroundForceAfter time.Duration
	// OnUnauthenticated is invoked after stored credentials are cleared
	// because the server definitively rejected them. Typically routes the
	// user to the login surface.
	OnUnauthenticated func()
}

// RefreshOrchestrator keeps the stored credential pair fresh. All external
// event sources (timer, foreground/background transitions, network
// reconnect) produce trigger messages into one consumer goroutine; the
// consumer owns the debounce state, and a single-flight guard ensures at
// most one refresh network call is in flight regardless of trigger overlap.
type RefreshOrchestrator struct {
	api   *Client
	creds credentials.Store
	cfg   OrchestratorConfig

	mu             sync.Mutex
	inflight       *flight
	lastRefresh    time.Time
	backgroundedAt time.Time

	triggers chan trigger
	done     chan struct{}
	stopOnce sync.Once
}

// flight is one in-progress refresh; concurrent callers await its result
// instead of issuing their own network call.
type flight struct {
	finished chan struct{}
	err      error
}

// NewRefreshOrchestrator creates an orchestrator over the given API client
// and credential store.
func NewRefreshOrchestrator(api *Client, creds credentials.Store, cfg OrchestratorConfig) *RefreshOrchestrator {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.BackgroundForceAfter <= 0 {
		cfg.BackgroundForceAfter = DefaultBackgroundForceAfter
	}
	return &RefreshOrchestrator{
		api:      api,
		creds:    creds,
		cfg:      cfg,
		triggers: make(chan trigger, 8),
		done:     make(chan struct{}),
	}
}

// Start launches the consumer loop and the periodic timer. It performs one
// forced refresh immediately so a stale pair left over from the previous
// run is replaced at startup.
func (o *RefreshOrchestrator) Start(ctx context.Context) {
	go o.run(ctx)
	go func() {
		if err := o.Refresh(ctx, true); err != nil && !errors.Is(err, ErrUnauthenticated) {
			log.Warn().Err(err).Msg("startup token refresh failed")
		}
	}()
}

// Stop terminates the consumer loop.
func (o *RefreshOrchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.done) })
}

// NotifyForeground signals a background-to-foreground transition.
func (o *RefreshOrchestrator) NotifyForeground() { o.send(triggerForeground) }

// NotifyBackground signals a foreground-to-background transition.
func (o *RefreshOrchestrator) NotifyBackground() { o.send(triggerBackground) }

// NotifyNetworkOnline signals that network connectivity returned.
func (o *RefreshOrchestrator) NotifyNetworkOnline() { o.send(triggerNetworkOnline) }

// send is non-blocking: triggers are idempotent liveness checks, so when
// the buffer is full dropping one is harmless.
func (o *RefreshOrchestrator) send(t trigger) {
	select {
	case o.triggers <- t:
	default:
	}
}

// run is the single consumer of all triggers.
func (o *RefreshOrchestrator) run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.handle(ctx, triggerPeriodic)
		case t := <-o.triggers:
			o.handle(ctx, t)
		}
	}
}

func (o *RefreshOrchestrator) handle(ctx context.Context, t trigger) {
	switch t {
	case triggerBackground:
		o.mu.Lock()
		o.backgroundedAt = time.Now()
		o.mu.Unlock()

	case triggerForeground:
		o.mu.Lock()
		backgrounded := o.backgroundedAt
		o.backgroundedAt = time.Time{}
		o.mu.Unlock()

		longBackground := !backgrounded.IsZero() && time.Since(backgrounded) > o.cfg.BackgroundForceAfter
		if longBackground {
			o.refreshAndLog(ctx, true)
		} else if !o.accessTokenAlive(ctx) {
			o.refreshAndLog(ctx, true)
		}
		o.keepalive(ctx)

	case triggerPeriodic, triggerNetworkOnline:
		o.refreshAndLog(ctx, false)
	}
}

func (o *RefreshOrchestrator) refreshAndLog(ctx context.Context, force bool) {
	if err := o.Refresh(ctx, force); err != nil && !errors.Is(err, ErrUnauthenticated) {
		log.Warn().Err(err).Bool("forced", force).Msg("token refresh failed")
	}
}

// Refresh exchanges the stored refresh token for a fresh pair.
//   - Single-flight: a concurrent caller awaits the in-flight result
//     instead of issuing a second network call.
//   - Debounce: a non-forced call within DebounceWindow of the last
//     completed refresh is silently skipped.
//   - Failure policy: an explicit 401 clears both stored tokens and invokes
//     OnUnauthenticated; a transport failure leaves the stored pair intact
//     since the device may simply be offline.
func (o *RefreshOrchestrator) Refresh(ctx context.Context, force bool) error {
	o.mu.Lock()
	if f := o.inflight; f != nil {
		o.mu.Unlock()
		select {
		case <-f.finished:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !force && !o.lastRefresh.IsZero() && time.Since(o.lastRefresh) < o.cfg.DebounceWindow {
		o.mu.Unlock()
		return nil
	}
	f := &flight{finished: make(chan struct{})}
	o.inflight = f
	o.mu.Unlock()

	f.err = o.doRefresh(ctx)

	o.mu.Lock()
	o.lastRefresh = time.Now()
	o.inflight = nil
	o.mu.Unlock()
	close(f.finished)

	return f.err
}

func (o *RefreshOrchestrator) doRefresh(ctx context.Context) error {
	refreshToken, err := o.creds.Get(credentials.KeyRefreshToken)
	if errors.Is(err, credentials.ErrNotFound) {
		// Nothing to refresh; the caller is simply logged out.
		return ErrUnauthenticated
	}
	if err != nil {
		return err
	}

	resp, err := o.api.Refresh(ctx, refreshToken)
	if errors.Is(err, ErrUnauthenticated) {
		o.clearCredentials()
		if o.cfg.OnUnauthenticated != nil {
			o.cfg.OnUnauthenticated()
		}
		return ErrUnauthenticated
	}
	if err != nil {
		return err
	}

	if err := o.creds.Set(credentials.KeyAccessToken, resp.AccessToken); err != nil {
		return err
	}
	return o.creds.Set(credentials.KeyRefreshToken, resp.RefreshToken)
}

// accessTokenAlive is the cheap liveness probe used on foreground-resume to
// avoid a needless rotation when the stored access token is still valid.
func (o *RefreshOrchestrator) accessTokenAlive(ctx context.Context) bool {
	accessToken, err := o.creds.Get(credentials.KeyAccessToken)
	if err != nil {
		return false
	}
	resp, err := o.api.Verify(ctx, accessToken)
	if err != nil {
		return false
	}
	return resp.Valid
}

// keepalive pings the session so server-side activity tracking does not
// mistake a foregrounded client for an abandoned one. Best-effort.
func (o *RefreshOrchestrator) keepalive(ctx context.Context) {
	accessToken, err := o.creds.Get(credentials.KeyAccessToken)
	if err != nil {
		return
	}
	refreshToken, err := o.creds.Get(credentials.KeyRefreshToken)
	if err != nil {
		return
	}
	if _, err := o.api.Keepalive(ctx, accessToken, refreshToken); err != nil {
		log.Debug().Err(err).Msg("session keepalive ping failed")
	}
}

func (o *RefreshOrchestrator) clearCredentials() {
	if err := o.creds.Delete(credentials.KeyAccessToken); err != nil {
		log.Warn().Err(err).Msg("failed to clear stored access token")
	}
	if err := o.creds.Delete(credentials.KeyRefreshToken); err != nil {
		log.Warn().Err(err).Msg("failed to clear stored refresh token")
	}
}
