// Package careplan models a plant's recurring care tasks and the date arithmetic
// around them.
//
// A care plan arrives from the garden store as a loosely typed blob (JSON text,
// a decoded map, or nothing). Parse normalizes it once into typed CareTask values
// so nothing downstream deals with key casing or string encodings.
//
// The two calculations the reminder pipeline needs live here too:
//   - IsDueToday: has the task's interval elapsed as of a calendar day
//   - ComputeNextTrigger: the next absolute instant a reminder should fire
//
// Both are pure functions of their inputs; the caller supplies "now".
package careplan
