// Package schema provides pure functions for schema-driven configuration
// validation. A Schema maps section names to field rules; rules declare the
// expected type, requiredness, defaults, numeric bounds, allowed values, and
// sensitivity of each field.
//
// All functions are pure (no I/O, no side effects). The imperative shell
// (internal/shell/config) applies them to its configuration tree.
//
// # Functions
//
//   - Coerce: Convert raw (usually string) values to their declared type
//   - ValidateSection: Validate and coerce one configuration section
//   - MaskValue / MaskExport: The two supported sensitive-value mask styles
package schema
