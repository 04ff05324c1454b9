// Package localnotify is the device-local notification store: reminders are
// programmed as one-shot absolute triggers and later listed or cancelled by id.
//
// The store is backed by storage.KV so scheduled reminders survive restarts.
// A permission gate models the OS-level "notifications allowed" switch.
package localnotify
