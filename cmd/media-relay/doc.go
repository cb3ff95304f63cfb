// Package main provides the entry point for the media relay server.
//
// Media relay normalizes outbound media for a messaging transport: it
// resolves what an upload really is, converts audio and video with FFmpeg
// into transport-safe payloads, and hands them to Telegram. It also serves
// the audio processing endpoints used by recorder clients.
//
// # Application Lifecycle
//
//  1. Configuration Loading: Reads .env and environment variables, checks directories
//  2. Database Initialization: Opens the SQLite dispatch journal
//  3. Component Initialization:
//     - Transcoder: FFmpeg/ffprobe process runner with a bounded job pool
//     - Scratch manager: Temporary artifacts plus a cron-driven sweeper
//     - Transport: Telegram bot client (when TELEGRAM_BOT_TOKEN is set)
//     - Dispatcher and audio normalizer
//     - Metrics Collector: Scratch and runtime gauges
//  4. HTTP Server Setup: Routes, logging and metrics middleware
//  5. Graceful Shutdown: Drains HTTP, kills running FFmpeg jobs, deletes
//     scratch artifacts awaiting release and flushes the journal
//
// # HTTP Servers
//
//  1. API Server (default port 8080): audio processing, dispatch, journal
//     and probe endpoints
//  2. Metrics Server (default port 9090, optional): /metrics and /health
//
// See package startup for the environment variables.
package main
