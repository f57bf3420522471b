// Package timetable runs fritterd's configured jobs on a fritter civil
// scheduler.
//
// # Overview
//
// Each enabled job in the config becomes a repeating call on one
// scheduler driven by the process's wall-clock driver. Jobs are
// registered under their config name; names are stable and human
// readable so that reloads can replace (upsert) and remove jobs
// deterministically.
//
// # Schedule formats
//
// The service accepts multiple schedule syntaxes:
//
//   - Cron expressions: 5-field (min hour dom mon dow) or 6-field with
//     optional seconds. Example: "55 * * * *" or "0 */5 * * * *".
//   - Cron descriptors: "@hourly", "@daily", "@every 55m".
//   - Interval durations: Go duration strings like "55m" or "2h30m".
//   - Interval HH:MM: a compact duration format where "00:50" means
//     every 50 minutes and "02:30" means every 2 hours 30 minutes.
//
// To force interpretation, callers may prefix the string with "cron:",
// "interval:", or "every:".
//
// # Execution
//
// Job commands run in their own goroutine with a per-job timeout; a run
// that is still executing when the next boundary arrives is skipped
// rather than overlapped. The step count reported by the repeater is
// forwarded on the run record, so missed boundaries stay visible in the
// history, the run log, and metrics.
package timetable
