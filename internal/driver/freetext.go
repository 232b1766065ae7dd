package driver

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// identityKeys are answers handled by fill_identity, not free text.
var identityKeys = map[string]bool{
	types.AnswerFullName:  true,
	types.AnswerFirstName: true,
	types.AnswerLastName:  true,
	types.AnswerEmail:     true,
	types.AnswerPhone:     true,
}

// textField is one free-text input discovered on the form.
type textField struct {
	selector string
	prompt   string
}

// MatchFreeTextFields parses rendered form HTML and maps each free-text
// answer to the selector of the textarea whose label matches its question.
// Question prompts vary per employer, so matching is by normalized substring
// in either direction. Answers with no matching field are left out; the
// caller decides whether that skips the step or fails it.
func MatchFreeTextFields(html string, answers map[string]string) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse form html: %w", err)
	}

	fields := collectTextFields(doc)

	out := make(map[string]string)
	for question, answer := range answers {
		if identityKeys[question] || answer == "" {
			continue
		}
		for _, f := range fields {
			if promptMatches(f.prompt, question) {
				out[f.selector] = answer
				break
			}
		}
	}
	return out, nil
}

// FreeTextQuestions returns the non-identity answer keys of a plan.
func FreeTextQuestions(answers map[string]string) []string {
	var out []string
	for k := range answers {
		if !identityKeys[k] {
			out = append(out, k)
		}
	}
	return out
}

func collectTextFields(doc *goquery.Document) []textField {
	// Label text keyed by the control id it points at.
	labels := map[string]string{}
	doc.Find("label[for]").Each(func(_ int, sel *goquery.Selection) {
		id, _ := sel.Attr("for")
		labels[id] = strings.TrimSpace(sel.Text())
	})

	var fields []textField
	doc.Find("textarea").Each(func(_ int, sel *goquery.Selection) {
		prompt := ""
		if id, ok := sel.Attr("id"); ok && labels[id] != "" {
			prompt = labels[id]
		}
		if aria, ok := sel.Attr("aria-label"); ok && prompt == "" {
			prompt = aria
		}
		if prompt == "" {
			return
		}

		selector := ""
		if id, ok := sel.Attr("id"); ok && id != "" {
			selector = "#" + id
		} else if name, ok := sel.Attr("name"); ok && name != "" {
			selector = fmt.Sprintf("textarea[name='%s']", name)
		} else if aria, ok := sel.Attr("aria-label"); ok && aria != "" {
			selector = fmt.Sprintf("textarea[aria-label='%s']", aria)
		}
		if selector == "" {
			return
		}
		fields = append(fields, textField{selector: selector, prompt: prompt})
	})
	return fields
}

// promptMatches compares a form label against a plan question. Labels are
// often truncated or reworded, so match on a normalized prefix in either
// direction, like the per-site scripts this replaced did with substring
// selectors.
func promptMatches(label, question string) bool {
	l := normalizePrompt(label)
	q := normalizePrompt(question)
	if l == "" || q == "" {
		return false
	}
	if len(q) > 30 {
		q = q[:30]
	}
	return strings.Contains(l, q) || strings.Contains(q, l)
}

func normalizePrompt(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '_' || r == '-':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
