// Package meta holds process-wide module metadata for intercall.
//
// A module is identified by a relative name of the form "<pid>-<name>"
// (for example "a-base") and is mounted under the URL segment
// "<pid>/<name>", so its API lives at /api/<pid>/<name>/...
//
// The Registry maps relative names to modules and "module:queueName" pairs
// to queue configurations. It is populated once at startup (see
// internal/config) and only read afterwards.
//
// Module names are NFC-normalized at the registry boundary so that a name
// typed in a config file and the same name parsed from a request path
// always compare equal.
package meta
