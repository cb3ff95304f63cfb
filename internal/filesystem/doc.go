/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for NFS stale file handle errors.

# Purpose

The scratch directory used for transcoding artifacts is frequently a shared or
network-mounted volume. This package wraps os.Stat, os.Open and whole-file reads
with retry logic for ESTALE (stale file handle) errors, which show up when a
file is replaced or removed on the server between lookup and access.

# Usage

	data, err := filesystem.ReadFileWithRetry(outputPath, filesystem.DefaultRetryConfig())
	if err != nil {
	    return err
	}

Custom retry configuration:

	config := filesystem.RetryConfig{
	    MaxRetries:     5,
	    InitialBackoff: 100 * time.Millisecond,
	    MaxBackoff:     1 * time.Second,
	}
	info, err := filesystem.StatWithRetry(path, config)

# Retry Behavior

Defaults: 3 retries, 50ms initial backoff doubling up to 500ms. Only ESTALE
triggers retries; every other error is returned immediately.
*/
package filesystem
