// Package sqlgen builds the parameterized statements used to load the
// staging, raw, and history tiers of the warehouse.
//
// Every identifier that reaches a statement passes through Canonical, which
// NFC-normalizes the name and upper-cases it with full Unicode case mapping,
// and is then quoted for the target dialect. Values are never interpolated;
// they travel as bound parameters in Statement.Args.
//
// # Dialects
//
//   - sqlite: schemas are attached database files, addressed as "SCHEMA"."TABLE"
//   - postgres: schemas live in the connected database, addressed as "SCHEMA"."TABLE"
//   - snowflake: fully qualified "DATABASE"."SCHEMA"."TABLE"
//
// Statements are rendered on a single line so they diff cleanly in golden files.
package sqlgen
