// Package core contains the task sync domain contracts, entities, error
// classification, and configuration. Provider and transport adapters depend on
// this package; core must not depend on them.
package core
