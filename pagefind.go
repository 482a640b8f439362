// Package pagefind serves find-on-page over a loaded page and its embedded
// frames. A Service loads the page into a framebus.Page, installs a
// find.Agent in every frame and exposes the root agent to hosts over HTTP
// and MCP. Updates go to the configured sinks and, when enabled, to the
// SQLite observability store.
//
//	cfg, _ := pagefind.LoadConfigFile("pagefind.yaml")
//	svc, err := pagefind.New(ctx, cfg)
//	defer svc.Close()
//	http.ListenAndServe(cfg.HTTP.Listen, svc.Handler())
package pagefind

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pagefind/find"
	"github.com/hazyhaar/pagefind/framebus"
	"github.com/hazyhaar/pagefind/internal/config"
	"github.com/hazyhaar/pagefind/internal/pageload"
	"github.com/hazyhaar/pagefind/internal/sink"
	"github.com/hazyhaar/pagefind/layout"
	"github.com/hazyhaar/pagefind/match"
	"github.com/hazyhaar/pagefind/observability"
	"github.com/hazyhaar/pagefind/shield"

	_ "modernc.org/sqlite"
)

// ErrNoPage is returned when no page source is configured.
var ErrNoPage = errors.New("pagefind: no page to load")

// Service owns one loaded page and the find agents running in it.
type Service struct {
	cfg    *Config
	logger *slog.Logger

	page   *framebus.Page
	amu    sync.Mutex
	agents map[string]*find.Agent // every frame, late ones included
	root   *find.Agent
	secret string
	recent *recent

	db       *sql.DB
	commands *observability.CommandLog
	updates  *observability.UpdateLog
	metrics  *observability.Metrics
	browser  *pageload.Browser
	limiter  *shield.RateLimiter

	cancel    context.CancelFunc
	bg        []<-chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Service.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	doc      *pageload.Document
	sinks    []find.Sink
	fetchOps []pageload.FetchOption
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDocument serves doc instead of loading cfg.Page.
func WithDocument(doc *pageload.Document) Option {
	return func(o *options) { o.doc = doc }
}

// WithSink adds a destination for updates next to the configured ones.
func WithSink(s find.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithFetchOptions configures the HTTP loader.
func WithFetchOptions(opts ...pageload.FetchOption) Option {
	return func(o *options) { o.fetchOps = append(o.fetchOps, opts...) }
}

// New loads the page, installs the agents and starts every frame. The
// service stops when ctx is done or Close is called.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Service, error) {
	o := options{logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.ApplyDefaults()

	s := &Service{cfg: cfg, logger: o.logger.With("component", "pagefind"), recent: newRecent(recentSize)}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	secret, err := sessionSecret(cfg.Secret)
	if err != nil {
		return nil, err
	}
	s.secret = secret

	if cfg.Observability.Path != "" {
		if err := s.openObservability(); err != nil {
			return nil, err
		}
	}

	doc := o.doc
	if doc == nil {
		if doc, err = s.load(ctx, o.fetchOps); err != nil {
			return nil, err
		}
	}

	busOpts := []framebus.Option{
		framebus.WithLogger(o.logger),
		framebus.WithConfig(cfg.Engine.Bus),
	}
	if s.metrics != nil {
		busOpts = append(busOpts, framebus.WithCallRecorder(s.metrics))
	}
	if s.page, err = doc.Page(busOpts...); err != nil {
		return nil, err
	}

	sinks := []find.Sink{s.recent}
	for _, sc := range cfg.Sinks {
		var out find.Sink
		switch sc.Type {
		case config.SinkStdout:
			out = sink.NewStdout(nil)
		case config.SinkWebhook:
			out = sink.NewWebhook(sc.URL, sink.WithWebhookRetries(sc.Retries), sink.WithWebhookLogger(o.logger))
		}
		if out == nil {
			continue
		}
		if *sc.Sanitize {
			out = sink.Sanitize(out)
		}
		sinks = append(sinks, out)
	}
	if s.updates != nil {
		sinks = append(sinks, s.updates)
	}
	sinks = append(sinks, o.sinks...)
	router := sink.NewRouter(o.logger, sinks...)

	s.agents = make(map[string]*find.Agent)
	find.InstallFunc(s.page, s.secret, s.addAgent,
		find.WithSink(router),
		find.WithLogger(o.logger.With("component", "find")),
		find.WithConfig(cfg.Engine.Find),
	)
	s.root = s.agent(s.page.Root().ID())

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.page.Start(runCtx)
	if cfg.HTTP.RateLimit.Requests > 0 {
		s.limiter = shield.NewRateLimiter(cfg.HTTP.RateLimit, o.logger, "/health")
		limiterDone := make(chan struct{})
		go func() {
			defer close(limiterDone)
			s.limiter.Run(runCtx)
		}()
		s.bg = append(s.bg, limiterDone)
	}
	if s.db != nil {
		hb := observability.NewHeartbeat(s.db, "pagefind", cfg.Observability.HeartbeatInterval,
			func() int { return len(s.page.Frames()) })
		go hb.Run(runCtx)
		s.bg = append(s.bg, hb.Done())
		s.bg = append(s.bg, s.retention(runCtx))
	}

	s.logger.Info("page loaded", "frames", len(s.page.Frames()), "root", s.page.Root().ID())
	ok = true
	return s, nil
}

func sessionSecret(c config.SecretConfig) (string, error) {
	if c.Master == "" {
		return find.NewSecret()
	}
	return find.DeriveSecret([]byte(c.Master), c.Session)
}

func (s *Service) load(ctx context.Context, fetchOpts []pageload.FetchOption) (*pageload.Document, error) {
	p := s.cfg.Page
	switch p.Loader {
	case config.LoaderStatic:
		if p.File == "" {
			return nil, ErrNoPage
		}
		return pageload.LoadFile(p.File, s.logger)
	case config.LoaderHTTP:
		if p.URL == "" {
			return nil, ErrNoPage
		}
		f := pageload.NewFetcher(append([]pageload.FetchOption{pageload.WithLogger(s.logger)}, fetchOpts...)...)
		return f.Fetch(ctx, p.URL)
	case config.LoaderBrowser:
		if p.URL == "" {
			return nil, ErrNoPage
		}
		b, err := pageload.NewBrowser(s.cfg.Browser, s.logger)
		if err != nil {
			return nil, err
		}
		s.browser = b
		return b.Load(ctx, p.URL)
	}
	return nil, fmt.Errorf("pagefind: unknown loader %q", p.Loader)
}

func (s *Service) openObservability() error {
	db, err := observability.Open(s.cfg.Observability.Path)
	if err != nil {
		return err
	}
	s.db = db
	s.commands = observability.NewCommandLog(db, 50, 2*time.Second)
	s.updates = observability.NewUpdateLog(db)
	s.metrics = observability.NewMetrics(db, 100, 5*time.Second)
	return nil
}

// retention applies the configured retention once an hour.
func (s *Service) retention(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(time.Hour)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := observability.Cleanup(ctx, s.db, s.cfg.Observability.Retention)
				if err != nil {
					s.logger.Warn("retention cleanup", "error", err)
				} else if n > 0 {
					s.logger.Debug("retention cleanup", "rows", n)
				}
			}
		}
	}()
	return done
}

// Secret returns the session secret hosts must present.
func (s *Service) Secret() string { return s.secret }

// Page returns the loaded page.
func (s *Service) Page() *framebus.Page { return s.page }

// Root returns the agent of the top-level frame.
func (s *Service) Root() *find.Agent { return s.root }

// Command runs one host command on the root agent.
func (s *Service) Command(ctx context.Context, cmd find.Command) error {
	start := time.Now()
	err := s.root.HandleCommand(ctx, cmd)
	s.recordCommand(cmd, start, err)
	return err
}

func (s *Service) recordCommand(cmd find.Command, start time.Time, err error) {
	if s.commands == nil {
		return
	}
	e := observability.NewCommandEntry(s.page.Root().ID(), cmd.InstanceID, cmd.Action)
	e.SearchTerm = cmd.SearchTerm
	e.DurationMs = time.Since(start).Milliseconds()
	switch {
	case errors.Is(err, find.ErrBadSecret), errors.Is(err, find.ErrUnknownAction), errors.Is(err, find.ErrTooManyInstances):
		e.Status, e.ErrorMessage = observability.StatusRejected, err.Error()
	case err != nil:
		e.Status, e.ErrorMessage = observability.StatusError, err.Error()
	}
	s.commands.LogAsync(e)
	s.metrics.Record(&observability.Metric{
		Name:   observability.MetricCommandDurationMs,
		Value:  float64(time.Since(start).Microseconds()) / 1000,
		Labels: map[string]string{"action": cmd.Action, "status": e.Status},
		Unit:   "milliseconds",
	})
}

// Bounds returns the viewport rect of a match of instanceID.
func (s *Service) Bounds(ctx context.Context, instanceID, secret string, id match.Identifier) (layout.Rect, error) {
	return s.root.MatchBounds(ctx, instanceID, secret, id)
}

// Key feeds a key press to the navigation shortcuts of instanceID.
func (s *Service) Key(ctx context.Context, instanceID, secret, key string) (bool, error) {
	return s.root.Key(ctx, instanceID, secret, key)
}

// Click records a pointer-down in frame frameID at its viewport point.
func (s *Service) Click(ctx context.Context, frameID string, x, y float64) error {
	a := s.agent(frameID)
	if a == nil {
		return fmt.Errorf("pagefind: unknown frame %q", frameID)
	}
	return a.Click(ctx, x, y)
}

// Graph returns the current frame tree.
func (s *Service) Graph(ctx context.Context) (*framebus.GraphNode, error) {
	return s.page.Root().Graph(ctx)
}

// Updates returns updates published after seq, oldest first. It reads the
// observability store when enabled, the in-memory window otherwise.
func (s *Service) Updates(ctx context.Context, instanceID string, after int64, limit int) ([]observability.StoredUpdate, error) {
	if s.updates != nil {
		return s.updates.Since(ctx, instanceID, after, limit)
	}
	return s.recent.Since(instanceID, after, limit), nil
}

// Close stops the agents, the frames and the background writers.
func (s *Service) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.close() })
	return s.closeErr
}

func (s *Service) addAgent(a *find.Agent) {
	s.amu.Lock()
	s.agents[a.Frame().ID()] = a
	s.amu.Unlock()
}

func (s *Service) agent(frameID string) *find.Agent {
	s.amu.Lock()
	defer s.amu.Unlock()
	return s.agents[frameID]
}

func (s *Service) close() error {
	s.amu.Lock()
	agents := make([]*find.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, a)
	}
	s.amu.Unlock()
	for _, a := range agents {
		a.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	for _, done := range s.bg {
		<-done
	}
	if s.page != nil {
		s.page.Close()
	}
	if s.browser != nil {
		s.browser.Close()
	}
	if s.commands != nil {
		s.commands.Close()
	}
	if s.metrics != nil {
		s.metrics.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
