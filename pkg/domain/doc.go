// Package domain defines the core types shared by the huntgen pipeline engine.
//
// This package contains pure domain logic with ZERO external dependencies outside the
// Go standard library. All types in this package are:
//
// - Independent of generation details (no faker, no file formats)
// - Free of I/O (tables are in-memory values)
// - Testable in isolation without mocks
//
// Other packages (schema, storage, qa, engine, runner) implement the behaviour
// around these types. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
