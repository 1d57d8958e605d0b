// Package config loads regledger settings and seed data.
//
// Settings come from an optional YAML file layered over Default, then from
// REGLEDGER_* environment variables:
//
//	ledger:
//	  path: regledger.db
//	driver:
//	  max_sessions: 16
//	  retry:
//	    max_attempts: 4
//	    base_delay: 10ms
//	telemetry:
//	  log_level: info
//
// Seed data for registration.Seed is read by LoadFixtures from CUE, YAML or
// JSON. CUE files are unified with the embedded #Fixtures schema, so type
// and enum violations are reported with file positions before any data is
// written.
package config
