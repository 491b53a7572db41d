// Package engine implements the attack-chain pipeline for one scenario.
//
// Architecture:
//
// registry.go   - Closed stage × variant registry (defaults, aliases, upfront validation)
// dispatcher.go - Fixed-order stage state machine (skip rules, failure isolation, context threading)
// plan.go       - Dry-run resolution of a configured chain
//
// Generators produce tables, a victim cohort, a clock and QA records; the
// dispatcher persists tables through a StageSink, unifies them in the
// scenario's store and feeds QA into the scenario's aggregator.
package engine
