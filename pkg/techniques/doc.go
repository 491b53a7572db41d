// Package techniques holds the built-in attack variants. Each variant reads
// the benign population, the attacker profile and the incoming stage context
// and emits event fragments, the next cohort and QA pairs.
//
// Files are grouped by stage:
//   - reconnaissance.go: active_scan, phishing_for_information
//   - initial_access.go: content_injection, phishing, valid_accounts, malware
//   - execution.go, credential_access.go, lateral_movement.go, collection.go
//   - command_and_control.go, exfiltration.go, impact.go, persistence.go
//
// catalogue.go wires them into an engine.Registry.
package techniques
