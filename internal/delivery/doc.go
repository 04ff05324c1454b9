// Package delivery fires due reminders.
//
// It stands in for the OS notification center: a poll loop picks scheduled
// notifications whose trigger has passed, removes them from the store and
// hands them to an async pipeline (queue, worker pool, rate limit, retry,
// dedup) that sends them through a Sink. Every delivered reminder is
// published on the event bus as "reminder.fired" so the scheduler can program
// the next occurrence.
package delivery
