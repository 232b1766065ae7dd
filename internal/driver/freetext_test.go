package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const formHTML = `
<html><body>
<form id="application_form">
  <label for="q_experience">Briefly describe your most relevant experience</label>
  <textarea id="q_experience"></textarea>
  <textarea aria-label="Why do you want to work here?" name="q_why"></textarea>
  <textarea name="unlabeled"></textarea>
</form>
</body></html>`

func TestMatchFreeTextFields(t *testing.T) {
	answers := map[string]string{
		"full_name": "Ada Candidate",
		"Briefly describe your most relevant experience": "Shipped ML systems.",
		"Why do you want to work here?":                  "Mission fit.",
	}

	fields, err := MatchFreeTextFields(formHTML, answers)
	require.NoError(t, err)

	assert.Equal(t, "Shipped ML systems.", fields["#q_experience"])
	assert.Equal(t, "Mission fit.", fields["textarea[name='q_why']"])
	assert.Len(t, fields, 2, "identity answers and unmatched fields stay out")
}

func TestMatchFreeTextFields_TruncatedLabel(t *testing.T) {
	html := `<html><body>
	<textarea aria-label="Briefly describe your most rele"></textarea>
	</body></html>`
	answers := map[string]string{
		"Briefly describe your most relevant experience": "Answer.",
	}

	fields, err := MatchFreeTextFields(html, answers)
	require.NoError(t, err)
	assert.Len(t, fields, 1)
}

func TestMatchFreeTextFields_NoMatches(t *testing.T) {
	answers := map[string]string{"What is your notice period?": "Two weeks."}

	fields, err := MatchFreeTextFields(formHTML, answers)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestFreeTextQuestions(t *testing.T) {
	answers := map[string]string{
		"full_name":  "Ada",
		"first_name": "Ada",
		"email":      "ada@example.com",
		"Why do you want to work here?": "Mission fit.",
	}

	qs := FreeTextQuestions(answers)
	assert.Equal(t, []string{"Why do you want to work here?"}, qs)
}
