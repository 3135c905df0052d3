// Package warehouse loads run summaries into a three-tier relational
// warehouse: a staging table replaced on every load, a raw table holding the
// latest load, and an append-only history table carrying two audit columns.
// Raw and history columns widen automatically when a dataset brings new
// columns.
//
// A load is a fixed sequence of statements on one connection:
//
//  1. set_execution_context
//  2. replace_staging
//  3. ensure_raw
//  4. ensure_history
//  5. compute_schema_delta (staging vs raw, reused for history)
//  6. widen_raw
//  7. widen_history
//  8. reload_raw
//  9. append_history
//
// Nothing is transactional. A failure stops the sequence and leaves every
// earlier statement applied; LoadError.Completed names the stages that
// finished and Warehouse.Inspect shows the resulting tables. Re-running a
// load after append_history succeeded appends the same rows again: history
// rows carry no key to deduplicate on.
//
// Three dialects are supported. SQLite maps each schema to an attached
// database file next to the main one; Postgres uses the pgx stdlib driver;
// Snowflake uses gosnowflake.
package warehouse
