// Package mediatypes resolves uploaded files to a media class, a canonical
// MIME string and a canonical extension.
//
// This package is a leaf: it imports nothing from the rest of the module, so
// the dispatcher, the HTTP handlers and the CLI can all share one resolver.
//
// # Resolution
//
// Resolve works through a fixed fallback chain for the MIME string:
//
//  1. the extension table (MimeTypes)
//  2. the caller-declared content type, parameters stripped
//  3. content sniffing of the first SniffLength bytes
//  4. a representative default for the class
//
// Two corrections are applied on top: .mpeg/.mpg are always audio/mpeg, and
// an application/* MIME on .mp4/.m4v becomes video/mp4.
//
// # Classification
//
// Classify is the only place a class is decided. The extension sets are
// authoritative; the MIME only decides when the extension is unknown:
//
//	r := mediatypes.Resolve("clip.mov", "audio/mpeg", nil)
//	r.Class // mediatypes.ClassVideo
//	r.MIME  // "video/quicktime"
//
// Resolution never fails. Anything unrecognized is a ClassDocument with
// application/octet-stream.
package mediatypes
