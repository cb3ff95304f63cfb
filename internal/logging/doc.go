// Package logging provides a simple leveled logging interface for the
// media relay service.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (branch decisions, ffmpeg args)
//   - INFO: General operational messages
//   - WARN: Warning conditions (cleanup failures, fallbacks)
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is read from the DEBUG and LOG_LEVEL environment variables
// on first use, and can be overridden with SetLevel once configuration has
// been loaded.
package logging
