// Package stores persists the change journal: one batch per apply_diff call
// holding the raw change list in request order. SQLiteStore implements
// sandbox.ChangeSink so it can be handed straight to the sandbox. Schema is
// managed with embedded golang-migrate migrations.
package stores
