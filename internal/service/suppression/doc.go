// Package suppression implements the permanent opt-out registry.
//
// This is the single source of truth for whether an address may be
// contacted. Suppressions flow in from reply opt-outs, provider bounce and
// unsubscribe webhooks, and manual admin actions, and are checked at three
// gates: lead intake, before every send, and on reply handling.
//
// Suppression is monotone: once an address is on the list there is no
// delete path. Adding an entry also kills every lead on that address and
// pauses its pending message jobs, atomically with the audit entry.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
