package lint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testPhrases = []string{"cost basis", "full catalog", "wholesale price"}
var testVarsDeny = []string{"catalog_url", "price_list"}

func newTestLinter() *Linter {
	return New(testPhrases, testVarsDeny, 3)
}

func TestCleanMessagePasses(t *testing.T) {
	l := newTestLinter()
	res := l.Check("Quick sourcing idea", "Noticed your outdoor catalog. Worth a chat?", 2)
	assert.True(t, res.OK)
	assert.Empty(t, res.Violations)
}

func TestForbiddenPhraseInBody(t *testing.T) {
	l := newTestLinter()
	res := l.Check("Hello", "Our wholesale price is unbeatable.", 0)
	assert.False(t, res.OK)
	assert.Len(t, res.Violations, 1)
	assert.Equal(t, LocationBody, res.Violations[0].Location)
	assert.Equal(t, "wholesale price", res.Violations[0].Phrase)
}

func TestForbiddenPhraseInSubject(t *testing.T) {
	l := newTestLinter()
	res := l.Check("Your cost basis explained", "clean body", 0)
	assert.False(t, res.OK)
	assert.Equal(t, LocationSubject, res.Violations[0].Location)
}

func TestCaseInsensitiveMatch(t *testing.T) {
	l := newTestLinter()
	res := l.Check("FULL Catalog attached", "see the Full CATALOG here", 0)
	assert.False(t, res.OK)
	// One hit in subject, one in body.
	assert.Len(t, res.Violations, 2)
}

func TestItemCapViolation(t *testing.T) {
	l := newTestLinter()
	res := l.Check("Hi", "clean", 4)
	assert.False(t, res.OK)
	assert.True(t, res.ItemCapViolation)
}

func TestItemCountAtCapPasses(t *testing.T) {
	l := newTestLinter()
	res := l.Check("Hi", "clean", 3)
	assert.True(t, res.OK)
	assert.False(t, res.ItemCapViolation)
}

func TestCheckVariablesOverCap(t *testing.T) {
	l := newTestLinter()
	res := l.CheckVariables(Variables{
		CompanyName: "Acme Outdoors",
		ItemNames:   []string{"a", "b", "c", "d"},
	})
	assert.False(t, res.OK)
	assert.Equal(t, "item_names", res.Violations[0].Field)
}

func TestCheckVariablesForbiddenKey(t *testing.T) {
	l := newTestLinter()
	res := l.CheckVariables(Variables{
		ItemNames: []string{"a"},
		Extra:     map[string]string{"catalog_url": "https://example.com/all"},
	})
	assert.False(t, res.OK)
	assert.Equal(t, "catalog_url", res.Violations[0].Field)
}

func TestCheckVariablesEmptyForbiddenKeyAllowed(t *testing.T) {
	l := newTestLinter()
	res := l.CheckVariables(Variables{
		ItemNames: []string{"a"},
		Extra:     map[string]string{"price_list": ""},
	})
	assert.True(t, res.OK)
}
