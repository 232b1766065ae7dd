package session

import (
	"context"
	"sync"
)

// FakeProvider is an in-memory Provider for tests. It records how many
// sessions were acquired and how many remain open, and can script failures
// per acquisition via hooks.
type FakeProvider struct {
	mu sync.Mutex

	// AcquireErrs is consumed one error per Acquire call; nil entries mean
	// the call succeeds.
	AcquireErrs []error
	// OnAcquire, when set, customizes the nth session (1-based) before it
	// is handed out.
	OnAcquire func(n int, s *FakeSession)

	acquired int
	open     int
	sessions []*FakeSession
}

// Acquire hands out a fresh FakeSession.
func (p *FakeProvider) Acquire(ctx context.Context) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.AcquireErrs) > 0 {
		err := p.AcquireErrs[0]
		p.AcquireErrs = p.AcquireErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	p.acquired++
	s := &FakeSession{
		AliveVal: true,
		Fills:    map[string]string{},
		Uploads:  map[string]string{},
		Exist:    map[string]bool{},
		onClose: func() {
			p.mu.Lock()
			p.open--
			p.mu.Unlock()
		},
	}
	if p.OnAcquire != nil {
		p.OnAcquire(p.acquired, s)
	}
	p.open++
	p.sessions = append(p.sessions, s)
	return s, nil
}

// Close implements Provider.
func (p *FakeProvider) Close() error { return nil }

// AcquireCount returns how many sessions were handed out.
func (p *FakeProvider) AcquireCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}

// OpenCount returns how many handed-out sessions are not yet closed.
func (p *FakeProvider) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Last returns the most recently acquired session, or nil.
func (p *FakeProvider) Last() *FakeSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// FakeSession records every action performed on it. Fill and Upload use
// replace semantics, matching the real session contract.
type FakeSession struct {
	mu sync.Mutex

	PageHTML       string
	ScreenshotData []byte
	AliveVal       bool

	NavigateErr error
	FailClick   map[string]error
	FailFill    map[string]error
	FailUpload  map[string]error

	// ClickSets updates Exist entries when the keyed selector is clicked,
	// so tests can model controls that reveal a form.
	ClickSets map[string]map[string]bool

	NavigatedTo []string
	Clicks      []string
	Fills       map[string]string
	Uploads     map[string]string // selector -> path (last upload wins)
	UploadCalls int
	Exist       map[string]bool
	Closed      bool

	onClose func()
}

func (s *FakeSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	s.NavigatedTo = append(s.NavigatedTo, url)
	return nil
}

func (s *FakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ScreenshotData == nil {
		return []byte("png"), nil
	}
	return s.ScreenshotData, nil
}

func (s *FakeSession) HTML(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PageHTML, nil
}

func (s *FakeSession) Click(ctx context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailClick[selector]; err != nil {
		return err
	}
	s.Clicks = append(s.Clicks, selector)
	for sel, present := range s.ClickSets[selector] {
		s.Exist[sel] = present
	}
	return nil
}

func (s *FakeSession) Fill(ctx context.Context, selector, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailFill[selector]; err != nil {
		return err
	}
	s.Fills[selector] = value
	return nil
}

func (s *FakeSession) Upload(ctx context.Context, selector, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailUpload[selector]; err != nil {
		return err
	}
	s.UploadCalls++
	s.Uploads[selector] = path
	return nil
}

func (s *FakeSession) Exists(ctx context.Context, selector string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Exist[selector], nil
}

func (s *FakeSession) Alive(ctx context.Context, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AliveVal && !s.Closed
}

func (s *FakeSession) Close() {
	s.mu.Lock()
	if s.Closed {
		s.mu.Unlock()
		return
	}
	s.Closed = true
	s.mu.Unlock()
	if s.onClose != nil {
		s.onClose()
	}
}
