// Package decision scores job postings against a candidate profile and
// filters/ranks a job list. It is pure: identical inputs always produce
// identical output, and nothing here performs I/O.
package decision

import (
	"sort"
	"strings"

	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// Prefs holds the scoring configuration. Weights are configuration, not code:
// each signal contributes at most its configured weight and the final score is
// clamped to [0, 1].
type Prefs struct {
	TitleKeywords      []string `yaml:"title_keywords"`
	TitleWeight        float64  `yaml:"title_weight"`
	PreferredLocations []string `yaml:"preferred_locations"`
	LocationWeight     float64  `yaml:"location_weight"`
	SkillWeight        float64  `yaml:"skill_weight"`
	Threshold          float64  `yaml:"threshold"`
}

// DefaultPrefs mirrors the engine's stock weighting: title 0.4, location 0.3,
// skill overlap 0.3, keep threshold 0.5.
func DefaultPrefs() Prefs {
	return Prefs{
		TitleWeight:    0.4,
		LocationWeight: 0.3,
		SkillWeight:    0.3,
		Threshold:      0.5,
	}
}

// normalized returns a copy with zero weights and threshold replaced by defaults,
// so a partially filled YAML block behaves sensibly.
func (p Prefs) normalized() Prefs {
	def := DefaultPrefs()
	if p.TitleWeight == 0 {
		p.TitleWeight = def.TitleWeight
	}
	if p.LocationWeight == 0 {
		p.LocationWeight = def.LocationWeight
	}
	if p.SkillWeight == 0 {
		p.SkillWeight = def.SkillWeight
	}
	if p.Threshold == 0 {
		p.Threshold = def.Threshold
	}
	return p
}

// Score rates one (profile, job) pair in [0, 1].
//
// Signals are independent: a title-keyword match grants the full title weight,
// a preferred-location match (or an empty preference list) grants the location
// weight, and skill overlap grants a fraction of the skill weight proportional
// to how many profile skills appear in the description.
func Score(profile types.Profile, job types.JobPosting, prefs Prefs) float64 {
	p := prefs.normalized()
	score := 0.0

	title := strings.ToLower(job.Title)
	for _, kw := range p.TitleKeywords {
		if kw != "" && strings.Contains(title, strings.ToLower(kw)) {
			score += p.TitleWeight
			break
		}
	}

	if locationMatches(job.Location, p.PreferredLocations) {
		score += p.LocationWeight
	}

	score += p.SkillWeight * skillOverlap(profile.Skills, job.Description)

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// locationMatches grants the location signal when no preference is configured,
// or when any preferred location appears in the job's location string.
func locationMatches(jobLocation string, preferred []string) bool {
	if len(preferred) == 0 {
		return true
	}
	loc := strings.ToLower(jobLocation)
	if loc == "" {
		return false
	}
	for _, want := range preferred {
		if want != "" && strings.Contains(loc, strings.ToLower(want)) {
			return true
		}
	}
	return false
}

// skillOverlap returns the fraction of profile skills mentioned in the
// job description.
func skillOverlap(skills []string, description string) float64 {
	if len(skills) == 0 || description == "" {
		return 0
	}
	desc := strings.ToLower(description)
	matched := 0
	for _, s := range skills {
		if s != "" && strings.Contains(desc, strings.ToLower(s)) {
			matched++
		}
	}
	return float64(matched) / float64(len(skills))
}

// FilterRank sorts jobs descending by score and keeps only those at or above
// the configured threshold. The sort is stable: ties keep discovery order.
func FilterRank(profile types.Profile, jobs []types.JobPosting, prefs Prefs) []types.JobPosting {
	p := prefs.normalized()

	scores := make([]float64, len(jobs))
	for i, j := range jobs {
		scores[i] = Score(profile, j, p)
	}

	idx := make([]int, len(jobs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})

	out := make([]types.JobPosting, 0, len(jobs))
	for _, i := range idx {
		if scores[i] >= p.Threshold {
			out = append(out, jobs[i])
		}
	}
	return out
}
