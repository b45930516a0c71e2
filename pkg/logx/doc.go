// Package logx configures smartsched's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional alerts sink (min-level + rate limiting) for warn/error lines
package logx
