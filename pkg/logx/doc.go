// Package logx configures matchwatch's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - console output with a short timestamp and file:line caller
//   - JSON lines when a log file is configured
//   - an optional ops-chat sink that forwards warnings to Telegram, rate limited
package logx
