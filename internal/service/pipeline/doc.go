// Package pipeline implements the lead lifecycle orchestrator.
//
// It ties the engines together: intake, storefront research, AI
// classification and the qualification gates, deterministic leverage
// assignment with catalog matching, outbound sequence creation, and inbound
// reply handling. Every state change commits atomically with its audit
// entries through the Store interface.
//
// The service layer never imports database/sql or net/http. Persistence is
// behind Store (implemented by repository/postgres), the opt-out registry
// behind Registry, and the external collaborators behind the enrichment
// contracts.
package pipeline
