package pageload

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hazyhaar/pagefind/horosafe"
	"golang.org/x/sync/errgroup"
)

// Fetcher loads a page over plain HTTP, then every iframe src it finds,
// concurrently, down to MaxDepth. No script runs.
type Fetcher struct {
	client   *http.Client
	ua       string
	check    func(string) error
	parallel int
	logger   *slog.Logger
}

// FetchOption configures a Fetcher.
type FetchOption func(*Fetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) FetchOption {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetchOption {
	return func(f *Fetcher) { f.ua = ua }
}

// WithURLCheck replaces the SSRF guard applied to every URL. nil disables it.
func WithURLCheck(fn func(string) error) FetchOption {
	return func(f *Fetcher) { f.check = fn }
}

// WithParallel caps concurrent requests per level. Default: 4.
func WithParallel(n int) FetchOption {
	return func(f *Fetcher) { f.parallel = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) FetchOption {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a Fetcher with sensible defaults.
func NewFetcher(opts ...FetchOption) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: 30 * time.Second},
		ua:       "Mozilla/5.0 (compatible; pagefind/1.0)",
		check:    horosafe.ValidateURL,
		parallel: 4,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch loads pageURL and its frame tree. Only the top document must
// succeed; an iframe that cannot be fetched is left unloaded.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Document, error) {
	raw, final, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return f.build(ctx, final, raw, 0)
}

func (f *Fetcher) build(ctx context.Context, docURL string, raw []byte, depth int) (*Document, error) {
	d := &Document{URL: docURL, Origin: originOf(docURL), HTML: raw}
	if depth >= MaxDepth {
		return d, nil
	}
	refs, err := iframes(raw)
	if err != nil {
		return nil, fmt.Errorf("pageload: parse %s: %w", docURL, err)
	}
	base, err := url.Parse(docURL)
	if err != nil {
		return nil, fmt.Errorf("pageload: base %s: %w", docURL, err)
	}
	d.Children = make([]*Document, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallel)
	for i, ref := range refs {
		g.Go(func() error {
			if ref.inline {
				child, err := f.build(gctx, docURL, []byte(ref.srcdoc), depth+1)
				if err != nil {
					return err
				}
				child.URL = "about:srcdoc"
				d.Children[i] = child
				return nil
			}
			if ref.src == "" {
				return nil
			}
			target, err := base.Parse(ref.src)
			if err != nil {
				f.logger.Debug("pageload: bad iframe src", "src", ref.src, "error", err)
				return nil
			}
			raw, final, err := f.get(gctx, target.String())
			if err != nil {
				f.logger.Warn("pageload: iframe unavailable", "url", target.String(), "error", err)
				return nil
			}
			d.Children[i], err = f.build(gctx, final, raw, depth+1)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

// get fetches one document and returns its body and final URL.
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	if f.check != nil {
		if err := f.check(rawURL); err != nil {
			return nil, "", fmt.Errorf("pageload: %s: %w", rawURL, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("pageload: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("pageload: get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("pageload: get %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := horosafe.LimitedReadAll(resp.Body, MaxDocumentSize)
	if err != nil {
		return nil, "", fmt.Errorf("pageload: read %s: %w", rawURL, err)
	}
	f.logger.Debug("pageload: fetched", "url", rawURL, "status", resp.StatusCode, "size", len(body))
	return body, resp.Request.URL.String(), nil
}
