// Package harness runs scripted marketplace sessions as executable tests.
//
// A scenario seeds users and tasks into a fresh in-memory market, runs a
// flow of actions as named users, and checks the resulting trace and
// stored collections.
//
// # Scenario Format
//
// A scenario file looks like this:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	setup:
//	  users:
//	    - { name: Alice, email: alice@example.com, password: secret123, balance: "100" }
//	flow:
//	  - action: task.create
//	    as: alice@example.com
//	    args: { title: Logo, reward: "40" }
//	    save: logo
//	  - action: task.claim
//	    as: alice@example.com
//	    args: { task: $logo }
//	    expect:
//	      case: self_claim
//	assertions:
//	  - type: trace_contains
//	    action: task.claim
//	    case: self_claim
//	  - type: final_state
//	    table: tasks
//	    where: { id: $logo }
//	    expect: { status: published }
//
// Every step completes with output case "ok" or the error code of its
// failure (see market.ErrorCode). A step without an expect clause must
// succeed.
//
// # Assertion Types
//
//   - trace_contains: some call of action had these args (and case, if given)
//   - trace_order: the first calls of the listed actions happened in order
//   - trace_count: action was called exactly count times
//   - final_state: exactly one record of table matches where, and carries expect
//
// # Deterministic Testing
//
// Ids are sequential per kind and the clock is a testutil.DeterministicClock,
// so the same scenario always produces the same trace. That makes traces
// suitable for golden file comparison (see CheckGolden).
package harness
