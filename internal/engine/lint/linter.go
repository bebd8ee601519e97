// Package lint implements the pre-send content linter.
//
// No message leaves the system without passing through Check. The linter is
// a pure function over the configured policy: it never mutates input and
// never errors on policy violations. Violations are data, returned to the
// caller for routing to the operator queue.
package lint

import (
	"fmt"
	"strings"
)

// Location tags where in a message a violation was found.
type Location string

const (
	LocationSubject Location = "subject"
	LocationBody    Location = "body"
)

// Violation is one itemized policy failure.
type Violation struct {
	Phrase   string   `json:"phrase,omitempty"`
	Location Location `json:"location,omitempty"`
	Issue    string   `json:"issue,omitempty"`
	Field    string   `json:"field,omitempty"`
}

func (v Violation) String() string {
	if v.Phrase != "" {
		return fmt.Sprintf("forbidden phrase %q in %s", v.Phrase, v.Location)
	}
	return v.Issue
}

// Result is the outcome of a lint pass.
type Result struct {
	OK               bool        `json:"ok"`
	Violations       []Violation `json:"violations"`
	ItemCapViolation bool        `json:"item_cap_violation"`
}

// Linter validates outbound content against the information-control policy.
// It is stateless and safe for concurrent use.
type Linter struct {
	phrases  []string // lowercased forbidden phrases
	varsDeny []string // forbidden template variable keys
	itemCap  int
}

// New creates a linter for the given policy. Phrases are matched as
// case-insensitive substrings in both subject and body.
func New(forbiddenPhrases, forbiddenVariables []string, itemCap int) *Linter {
	lowered := make([]string, len(forbiddenPhrases))
	for i, p := range forbiddenPhrases {
		lowered[i] = strings.ToLower(p)
	}
	return &Linter{phrases: lowered, varsDeny: forbiddenVariables, itemCap: itemCap}
}

// Check scans a message for forbidden phrases and an over-cap item count.
func (l *Linter) Check(subject, body string, itemCount int) Result {
	subjectLower := strings.ToLower(subject)
	bodyLower := strings.ToLower(body)

	var violations []Violation
	for i, phrase := range l.phrases {
		if strings.Contains(subjectLower, phrase) {
			violations = append(violations, Violation{Phrase: l.phrases[i], Location: LocationSubject})
		}
		if strings.Contains(bodyLower, phrase) {
			violations = append(violations, Violation{Phrase: l.phrases[i], Location: LocationBody})
		}
	}

	capViolation := itemCount > l.itemCap
	if capViolation {
		violations = append(violations, Violation{
			Issue: fmt.Sprintf("item count %d exceeds cap %d", itemCount, l.itemCap),
			Field: "item_count",
		})
	}

	return Result{
		OK:               len(violations) == 0,
		Violations:       violations,
		ItemCapViolation: capViolation,
	}
}

// Variables is the template variable set validated before content
// generation. ItemNames is counted against the cap; Extra carries any
// additional keys to screen against the forbidden-variable list.
type Variables struct {
	CompanyName string
	ItemNames   []string
	Extra       map[string]string
}

// CheckVariables validates a variable set prior to generation: rejects an
// over-cap item-name list and any forbidden variable key that is present
// and non-empty. A variable-set failure aborts the whole sequence; the
// caller must not generate content from a rejected set.
func (l *Linter) CheckVariables(vars Variables) Result {
	var violations []Violation

	if len(vars.ItemNames) > l.itemCap {
		violations = append(violations, Violation{
			Issue: fmt.Sprintf("too many items: %d (max %d)", len(vars.ItemNames), l.itemCap),
			Field: "item_names",
		})
	}

	for _, key := range l.varsDeny {
		if v, ok := vars.Extra[key]; ok && v != "" {
			violations = append(violations, Violation{
				Issue: fmt.Sprintf("forbidden variable present: %s", key),
				Field: key,
			})
		}
	}

	return Result{OK: len(violations) == 0, Violations: violations}
}

// ItemCap returns the configured item cap.
func (l *Linter) ItemCap() int { return l.itemCap }
