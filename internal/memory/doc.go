// Package memory sizes the Go heap limit for containerized deployments.
//
// The relay holds uploads and converted payloads in memory while ffmpeg
// children run in the same cgroup, so only part of the container limit is
// handed to the Go runtime. See [Configure].
package memory
