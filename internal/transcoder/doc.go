// Package transcoder runs ffmpeg and ffprobe as external processes.
//
// It supports:
//   - Profile-driven transcodes with a per-job timeout
//   - A concurrency cap on running ffmpeg processes
//   - Output verification (a reported success with no output is a failure)
//   - Duration probing with ffprobe's JSON output
//
// Executable paths come from Config; arguments are passed as a list and
// never through a shell.
package transcoder
