// Package app hosts module endpoints behind a composed middleware pipeline
// and emulates calls between modules in memory.
//
// A CallContext is built once per request. PerformAction builds a
// synthetic request from the caller's own request, runs it through the
// same pipeline a real request goes through, and decodes the response
// envelope:
//
//	data, err := c.PerformAction(ctx, app.Action{Method: "post", URL: "kv/set", Body: in})
//
// Nested calls share the caller's cookie jar and transaction state, so a
// transactional route reached through several hops commits or rolls back
// as one unit.
package app
