// CLAUDE:SUMMARY Headless Chrome loader that snapshots the DOM of every frame through go-rod.
package pageload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// BrowserConfig configures the headless browser path.
type BrowserConfig struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local one.
	RemoteURL string `yaml:"remote"`
	// Stealth hides the usual automation fingerprints. Default: true.
	Stealth *bool `yaml:"stealth"`
	// NavigateTimeout bounds navigation and load. Default: 30s.
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
	// FrameTimeout bounds the snapshot of one embedded frame. Default: 5s.
	FrameTimeout time.Duration `yaml:"frame_timeout"`
}

func (c *BrowserConfig) defaults() {
	if c.Stealth == nil {
		on := true
		c.Stealth = &on
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = 5 * time.Second
	}
}

// Browser renders pages in Chrome and snapshots the DOM of every frame
// after scripts have run.
type Browser struct {
	cfg     BrowserConfig
	logger  *slog.Logger
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowser launches Chrome, or connects to cfg.RemoteURL.
func NewBrowser(cfg BrowserConfig, logger *slog.Logger) (*Browser, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	b := &Browser{cfg: cfg, logger: logger}

	wsURL := cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true).Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("pageload: launch chrome: %w", err)
		}
		wsURL, b.lnch = u, l
		logger.Info("pageload: launched local chrome", "url", wsURL)
	}
	rb := rod.New().ControlURL(wsURL)
	if err := rb.Connect(); err != nil {
		b.kill()
		return nil, fmt.Errorf("pageload: connect chrome: %w", err)
	}
	b.browser = rb
	return b, nil
}

// Load navigates to pageURL and snapshots its frame tree.
func (b *Browser) Load(ctx context.Context, pageURL string) (*Document, error) {
	var (
		page *rod.Page
		err  error
	)
	if *b.cfg.Stealth {
		page, err = stealth.Page(b.browser)
	} else {
		page, err = b.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("pageload: create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("pageload: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.logger.Warn("pageload: wait load timeout", "url", pageURL, "error", err)
	}
	return b.snapshot(ctx, page, 0)
}

// snapshot serialises p and recurses into its iframes in document order.
func (b *Browser) snapshot(ctx context.Context, p *rod.Page, depth int) (*Document, error) {
	fctx, cancel := context.WithTimeout(ctx, b.cfg.FrameTimeout)
	defer cancel()
	p = p.Context(fctx)

	raw, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("pageload: serialise frame: %w", err)
	}
	d := &Document{HTML: []byte(raw)}
	if res, err := p.Eval(`() => location.href`); err == nil {
		d.URL = res.Value.Str()
		d.Origin = originOf(d.URL)
	}
	if depth >= MaxDepth {
		return d, nil
	}
	els, err := p.Elements("iframe")
	if err != nil {
		return d, nil
	}
	d.Children = make([]*Document, len(els))
	for i, el := range els {
		fp, err := el.Frame()
		if err != nil {
			b.logger.Debug("pageload: iframe without document", "index", i, "error", err)
			continue
		}
		child, err := b.snapshot(ctx, fp, depth+1)
		if err != nil {
			b.logger.Warn("pageload: iframe snapshot failed", "index", i, "error", err)
			continue
		}
		d.Children[i] = child
	}
	return d, nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	b.kill()
	return err
}

func (b *Browser) kill() {
	if b.lnch != nil {
		b.lnch.Kill()
	}
}
