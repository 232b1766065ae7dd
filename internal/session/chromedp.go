package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// Options configures the chromedp-backed provider.
type Options struct {
	Headless       bool
	PoolSize       int
	AcquireTimeout time.Duration // how long Acquire waits for a free slot
}

// ChromeProvider hands out headless Chrome pages from a bounded pool.
// Each session owns its own browser context; the pool bounds how many exist
// at once. Requires Chrome/Chromium to be installed on the system.
type ChromeProvider struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	slots       chan struct{}
	acquireWait time.Duration
}

// NewChromeProvider builds a provider with the given pool size.
func NewChromeProvider(ctx context.Context, opts Options) *ChromeProvider {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 2
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 10 * time.Second
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)

	slots := make(chan struct{}, opts.PoolSize)
	for i := 0; i < opts.PoolSize; i++ {
		slots <- struct{}{}
	}

	return &ChromeProvider{
		allocCtx:    allocCtx,
		allocCancel: cancel,
		slots:       slots,
		acquireWait: opts.AcquireTimeout,
	}
}

// Acquire takes a pool slot and starts a fresh browser context in it.
func (p *ChromeProvider) Acquire(ctx context.Context) (Session, error) {
	wait := time.NewTimer(p.acquireWait)
	defer wait.Stop()

	select {
	case <-p.slots:
	case <-wait.C:
		return nil, &AcquisitionError{Reason: "browser pool exhausted"}
	case <-ctx.Done():
		return nil, &AcquisitionError{Reason: "context cancelled", Err: ctx.Err()}
	}

	browserCtx, cancel := chromedp.NewContext(p.allocCtx)

	// Start the browser eagerly so acquisition failures surface here, not
	// in the middle of a driver step.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		p.slots <- struct{}{}
		return nil, &AcquisitionError{Reason: "browser failed to start", Err: err}
	}

	s := &chromeSession{ctx: browserCtx, cancel: cancel}
	s.release = func() {
		p.slots <- struct{}{}
	}
	return s, nil
}

// Close shuts down the allocator and with it every open browser context.
func (p *ChromeProvider) Close() error {
	p.allocCancel()
	return nil
}

type chromeSession struct {
	ctx     context.Context
	cancel  context.CancelFunc
	release func()
	once    sync.Once
}

// run executes chromedp actions on the session, honoring the caller's deadline.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := s.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(s.ctx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("failed to extract html: %w", err)
	}
	return html, nil
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (s *chromeSession) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (s *chromeSession) Upload(ctx context.Context, selector, path string) error {
	// SetUploadFiles replaces the input's file list, so repeating the step
	// leaves exactly one file attached.
	return s.run(ctx, chromedp.SetUploadFiles(selector, []string{path}, chromedp.ByQuery))
}

func (s *chromeSession) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf("document.querySelector(%q) !== null", selector)
	if err := s.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return false, fmt.Errorf("failed to query selector %q: %w", selector, err)
	}
	return found, nil
}

func (s *chromeSession) Alive(ctx context.Context, url string) bool {
	if s.ctx.Err() != nil {
		return false
	}
	var location string
	if err := s.run(ctx, chromedp.Location(&location)); err != nil {
		return false
	}
	if url == "" {
		return true
	}
	return strings.HasPrefix(location, url)
}

func (s *chromeSession) Close() {
	s.once.Do(func() {
		s.cancel()
		if s.release != nil {
			s.release()
		}
	})
}
