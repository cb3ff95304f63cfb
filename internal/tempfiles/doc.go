// Package tempfiles owns the scratch directory used for transcoding
// artifacts.
//
// Artifacts are named <UTC timestamp>-<uuid><ext>, so concurrent pipeline
// runs never collide and no locking is needed around the directory. The
// directory is created with os.MkdirAll before every write.
//
// Lifecycle:
//
//	in, _ := mgr.Materialize(upload, ".ogg")
//	defer mgr.Release(in)
//	out, _ := mgr.Reserve(".m4a")
//	// ... transcode in -> out ...
//	mgr.ReleaseAfter(out, time.Minute) // consumer reads it asynchronously
//
// Release and ReleaseAfter never return errors; a missing file is not a
// failure and anything else is logged and counted. A cron-scheduled Sweep
// removes files orphaned by a crash, and Flush deletes pending artifacts on
// shutdown.
package tempfiles
