package enrichment

import "strings"

// removalPhrases are the opt-out signals scanned before any reply
// classification. A hit suppresses the address permanently.
var removalPhrases = []string{
	"unsubscribe",
	"remove me",
	"remove my",
	"stop emailing",
	"stop contacting",
	"opt out",
	"opt-out",
	"take me off",
	"don't email",
	"do not email",
	"do not contact",
	"don't contact",
	"no more emails",
	"stop sending",
	"please remove",
}

// ContainsOptOut reports whether reply text carries an unsubscribe signal.
// Checked before classification so a removal request can never be
// misclassified into further contact.
func ContainsOptOut(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range removalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
