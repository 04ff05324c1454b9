// Package reminder turns care plans into scheduled local notifications.
//
// Plants that share a task, time of day and recurrence are grouped into one
// notification. A resync cancels every notification this package owns and
// rebuilds them from the garden; single-task cancellation removes one plant
// from its group and reschedules the rest.
//
// Entry points return a Result together with an error. Errors that stop a run
// are *SchedulingError; failures of individual groups are collected in
// Result.Failures and never stop the run.
package reminder
