// Package handlers provides the HTTP handlers for the media relay API.
//
// It includes handlers for:
//   - Audio processing for recorder clients (optimize, compress, probe, convert)
//   - Dispatching uploads to the messaging transport, with dry runs
//   - Reading the dispatch journal and clearing the scratch directory
//   - Health, readiness and version probes
package handlers
