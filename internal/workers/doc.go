/*
Package workers sizes concurrency limits for CPU-heavy work in containers.

runtime.NumCPU reports host CPUs; GOMAXPROCS reports the container limit
(Go 1.19+). Count and ForCPU use the latter, so a pod limited to 2 CPUs on a
64-core node runs 2 ffmpeg processes, not 64.

	slots := workers.ForCPU(8) // at most 8 concurrent transcodes

# Environment Variable Override

TRANSCODE_WORKERS pins the count (still capped by limit):

	env:
	- name: TRANSCODE_WORKERS
	  value: "2"
*/
package workers
