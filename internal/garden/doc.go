// Package garden is the plant data store: plants belong to a user and carry a
// raw care plan and a raw care journal, both JSON.
//
// Drivers:
//   - file: one JSON or YAML document, rewritten atomically on change
//   - sqlite: a plants table accessed through sqlx
//
// Garden layers the care operations (add plant, edit a task, log or undo care)
// over any Store.
package garden
