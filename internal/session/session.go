// Package session provides browser sessions to the submission engine.
// The engine treats the provider as an opaque capability: it acquires a
// session, drives it through a site form, and releases it. Sessions are the
// scarce shared resource; every acquisition must be paired with a Close.
package session

import (
	"context"
	"fmt"
)

// Session is one live browser page. All operations honor the passed context's
// deadline, which is how per-step timeouts are enforced.
type Session interface {
	// Navigate loads the given URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// Screenshot captures the current page as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// HTML returns the rendered document HTML.
	HTML(ctx context.Context) (string, error)
	// Click clicks the first element matching the selector.
	Click(ctx context.Context, selector string) error
	// Fill sets the value of the input matching the selector, replacing any
	// previous value. Filling twice with the same value is a no-op.
	Fill(ctx context.Context, selector, value string) error
	// Upload attaches the file at path to the file input matching the
	// selector. The file list is replaced, not appended, so re-running an
	// upload leaves exactly one file attached.
	Upload(ctx context.Context, selector, path string) error
	// Exists reports whether any element matches the selector.
	Exists(ctx context.Context, selector string) (bool, error)
	// Alive reports whether the session is still usable and, when url is
	// non-empty, still on that page.
	Alive(ctx context.Context, url string) bool
	// Close releases the session back to the provider. Safe to call twice.
	Close()
}

// Provider hands out sessions from a bounded pool.
type Provider interface {
	// Acquire blocks until a session slot is free or ctx expires. Pool
	// exhaustion surfaces as *AcquisitionError, which callers retry with
	// backoff rather than treating as a submission failure.
	Acquire(ctx context.Context) (Session, error)
	// Close shuts the provider down and releases all resources.
	Close() error
}

// AcquisitionError indicates a session could not be acquired right now
// (pool exhausted, browser failed to start). It is transient.
type AcquisitionError struct {
	Reason string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session acquisition failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("session acquisition failed: %s", e.Reason)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }
