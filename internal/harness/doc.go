// Package harness runs queue scenarios end to end: it hosts the declared
// queue endpoints in an in-process app, publishes tasks through a local
// mode queue client, and checks the results.
//
// # Scenario Format
//
//	name: ordered_lanes
//	description: "What this scenario validates"
//	queues:
//	  - module: test-party
//	    name: work
//	    behavior: echo          # echo | fail | error | panic; empty routes to an existing endpoint
//	    path: jobs/work         # default queue/<name>
//	    code: 1001              # fail and error only
//	    message: "rejected"
//	    delay_ms: 5
//	publish:
//	  - subdomain: acme
//	    module: test-party
//	    queue: work
//	    key: k1
//	    data: { n: 1 }
//	    expect:
//	      data: { n: 1 }        # subset match
//	      error: { kind: domain, code: 1001 }
//	assertions:
//	  - type: lane_order
//	    lane: acme:test-party:work
//	    keys: [k1, k2]
//	  - type: result_count
//	    lane: acme:test-party:work
//	    count: 2
//	  - type: final_state
//	    key: color
//	    value: blue
//
// # Determinism
//
// Lanes run concurrently, so the trace groups results by lane (sorted by
// lane name) and keeps each lane's completion order, which is its publish
// order. That makes the trace stable enough for golden comparison.
//
// Each run gets a fresh SQLite database in a temporary directory; the
// built-in a-base module is always mounted, so queues may point at its
// endpoints (e.g. path kv/set with no behavior).
package harness
