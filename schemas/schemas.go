// Package schemas holds the JSON schemas that gate generated content before
// it enters the engine. The schemas are embedded so validation never depends
// on the working directory.
package schemas

import _ "embed"

// PlanDraft validates the text generator's reply: resume variant, cover
// letter, and free-text answers.
//
//go:embed plan_draft.schema.json
var PlanDraft string
