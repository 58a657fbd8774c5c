// Package harness runs scripted store scenarios for facetdb.
//
// Each scenario executes against a fresh SQLite database with a
// deterministic clock, so two runs of the same scenario produce identical
// histories and can be compared against golden snapshots.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: order_lifecycle
//	description: "What this scenario validates"
//	facet: orders
//	steps:
//	  - put:
//	      id: o-1
//	      expected_version: 0
//	      state: { status: placed }
//	      inbound:
//	        - { sequence: 1, event_type: OrderPlaced, payload: { sku: abc } }
//	      outbound:
//	        - { sequence: 0, event_type: ReserveStock }
//	      indexes:
//	        - { name: byStatus, value: placed }
//	  - put:
//	      id: o-1
//	      expected_version: 0
//	      state: { status: cancelled }
//	      expect_error: CONCURRENCY_CONFLICT
//	  - get: { id: o-1, expect_version: 1, expect_state: { status: placed } }
//	  - history: { id: o-1, expect_types: [inbound, outbound, state] }
//	  - index: { name: byStatus, value: placed, expect_count: 1 }
//
// # Golden Files
//
// RunWithGolden snapshots the step outcomes and the final history of every
// id the scenario wrote into testdata/golden/{name}.golden. To regenerate:
//
//	go test ./internal/harness -update
package harness
