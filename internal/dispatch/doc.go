// Package dispatch turns an arbitrary upload into a transport-safe payload
// and optionally hands it to a messaging transport.
//
// A dispatch runs these steps in order:
//
//	resolve type -> pick strategy -> transcode -> (converted | fallback) -> emit
//
// Type resolution happens exactly once per run (mediatypes.Resolve) and its
// class selects one of three branches:
//
//   - video: always re-encoded to H.264/AAC mp4. If the transcode fails the
//     original bytes are sent tagged video/mp4. The converted artifact stays
//     on disk for VideoReleaseDelay so an asynchronous upload can read it.
//   - audio: encoded to AAC m4a, as a voice note when IsRecord is set and as
//     a clip otherwise. A failed transcode fails the dispatch; raw capture
//     formats are not assumed to be transport-safe.
//   - image, document: bytes pass through with a corrected filename.
//
// Every temp artifact a run creates is released before Dispatch returns,
// except the converted video, which is registered for delayed release.
// Failures come back as *SendError naming the stage and payload kind.
package dispatch
