// Package logx configures fritter's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog that
// takes slog-style key/value arguments and keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional alert sink (min-level + rate limiting) so repeated
//     job failures cannot flood whatever is watching the daemon
//
// Loggers write through a switchable sink owned by the Service, so a
// config reload re-levels and re-targets every logger already handed
// out.
package logx
