package pipeline

import "errors"

// Sentinel errors for the pipeline service layer.
var (
	ErrLeadNotFound  = errors.New("lead not found")
	ErrLeadTerminal  = errors.New("lead is in a terminal status")
	ErrReplyNotFound = errors.New("reply not found")
	ErrNoSignals     = errors.New("lead has no research signals")
	ErrNoLeverage    = errors.New("lead has no leverage assignment")
	ErrInvalidIntake = errors.New("company name and contact email are required")
	ErrLintFailed    = errors.New("template variables failed content lint")
)
