package logger

import "strings"

// RedactEmail masks an address for logging while keeping enough of the
// local part to correlate log lines by hand.
// "buyer@glowco.com" becomes "bu***@glowco.com"; local parts of two or
// fewer characters are masked entirely; anything that is not an email
// becomes "***@***".
func RedactEmail(email string) string {
	at := strings.Count(email, "@")
	if at != 1 {
		return "***@***"
	}
	local, domain, _ := strings.Cut(email, "@")
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}
