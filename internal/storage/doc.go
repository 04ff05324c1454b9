// Package storage provides the key-value persistence used by the daemon.
//
// It backs:
//   - the session state (signed-in user, last resync result)
//   - the local notification store (scheduled reminders)
package storage
