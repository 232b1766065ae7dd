// Package types defines the core data model shared across the submission engine.
package types

// JobPosting is one job listing as produced by the discovery layer.
// It is read-only to the engine; the identifier is stable and unique per source.
type JobPosting struct {
	ID          string `json:"id" validate:"required"`
	Source      string `json:"source" validate:"required"` // driver key: greenhouse | lever | ...
	Title       string `json:"title" validate:"required"`
	Company     string `json:"company"`
	Location    string `json:"location,omitempty"`
	URL         string `json:"url" validate:"required,url"`
	Description string `json:"description,omitempty"` // raw or markdown job description
	Salary      string `json:"salary,omitempty"`
}
