package types

// WorkExperience is one position in the candidate's history.
type WorkExperience struct {
	Company      string   `json:"company"`
	Title        string   `json:"title"`
	Start        string   `json:"start"` // YYYY-MM
	End          string   `json:"end,omitempty"`
	Highlights   []string `json:"highlights,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

// Education is one degree in the candidate's history.
type Education struct {
	School string `json:"school"`
	Degree string `json:"degree"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// Profile is an immutable snapshot of candidate identity and facts.
// The engine reads it and never mutates it.
type Profile struct {
	FullName   string            `json:"full_name" validate:"required"`
	Email      string            `json:"email" validate:"required,email"`
	Phone      string            `json:"phone,omitempty"`
	Location   string            `json:"location,omitempty"`
	Websites   map[string]string `json:"websites,omitempty"`
	Summary    string            `json:"summary,omitempty"`
	Skills     []string          `json:"skills,omitempty"`
	Work       []WorkExperience  `json:"work,omitempty"`
	Education  []Education       `json:"education,omitempty"`
	ResumeText string            `json:"resume_text,omitempty"`
	ResumePath string            `json:"resume_path,omitempty"` // local file reference for uploads
}

// FirstName returns the leading token of the full name.
func (p *Profile) FirstName() string {
	return splitName(p.FullName, 0)
}

// LastName returns everything after the leading token of the full name.
func (p *Profile) LastName() string {
	return splitName(p.FullName, 1)
}

func splitName(full string, part int) string {
	var first, rest string
	for i, r := range full {
		if r == ' ' {
			first = full[:i]
			rest = full[i+1:]
			break
		}
	}
	if first == "" {
		first = full
	}
	if part == 0 {
		return first
	}
	return rest
}
