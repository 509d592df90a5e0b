// Package queue runs cross-module tasks one at a time per lane.
//
// A lane is identified by (subdomain, module, queueName). Tasks published
// to the same lane run strictly in publish order, each starting only after
// the previous one finished, whatever its outcome. Lanes run independently
// of each other. A task's result is delivered to the listeners subscribed
// on its full key (lane plus task key); tasks without a key deliver
// nothing.
//
// Tasks are dispatched either in memory through the call emulator
// (LocalDispatcher, used in test environments) or as a POST to the
// cluster's listen address (HTTPDispatcher). Nothing is retried.
package queue
