// Package testutil provides deterministic helpers shared by intercall tests:
// ordering markers for concurrency assertions, a fixed ID generator, and a
// driver decorator that counts and can fail transaction begins.
package testutil
