package meta

import "github.com/google/uuid"

// Env is the deployment environment of the process.
type Env string

const (
	EnvLocal    Env = "local"
	EnvTest     Env = "test"
	EnvUnitTest Env = "unittest"
	EnvProd     Env = "prod"
)

// IsTest reports whether the process runs under a test environment.
// Queue tasks are dispatched in-process in test environments.
func (e Env) IsTest() bool {
	return e == EnvTest || e == EnvUnitTest
}

// IsLocal reports whether the process runs on a developer machine.
func (e Env) IsLocal() bool {
	return e == EnvLocal
}

// IsProd reports whether the process runs in any non-local, non-test env.
func (e Env) IsProd() bool {
	return !e.IsLocal() && !e.IsTest()
}

// IDGenerator produces unique identifiers for worker instances and inner
// credentials.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
