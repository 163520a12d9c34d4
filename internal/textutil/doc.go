// Package textutil provides small text helpers shared across podbay,
// primarily filename sanitization for deterministic artifact naming.
package textutil
