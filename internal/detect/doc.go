// Package detect classifies fetched artifacts against the archive.
//
// An artifact is New when its name is absent from the archive index,
// Unchanged when its content matches the archived copy, and Modified
// otherwise. New artifacts are uploaded under their own name. Modified
// artifacts are renamed locally to a dated versioned name and uploaded under
// that name; the archived original is never overwritten. Versioned names
// keep only the date and the part after the last hyphen, so two artifacts
// modified on the same day can share one; the later one replaces the
// earlier local file and archived copy, with a warning logged.
//
// Content comparison depends on the artifact type:
//
//   - Binary types (".pdf" by default) compare byte-for-byte.
//   - Everything else compares only the Unicode letters of both copies.
//     Whitespace, digits and punctuation are ignored, so edits that only
//     touch those are reported as Unchanged. This comparison is lossy and is
//     kept as is; see Letters.
package detect
