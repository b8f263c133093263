// Package core turns course CSV exports into stored courses and lessons.
//
// The package holds the import pipeline independent of any transport. The
// CLI, the HTTP server and the tests drive it the same way.
//
// # Pipeline
//
//  1. [Normalizer] reads the CSV under a [schema.Columns] layout, cleans every
//     field with [CleanText] and drops rows without a transcription.
//  2. [ResolveOrphans] attaches lessons whose course is unknown to the single
//     placeholder course, creating or removing it as needed.
//  3. [ExportArtifacts] writes courses.json and lessons.json. Lessons refer to
//     courses by deferred tokens such as {course_0} and {course_placeholder}.
//  4. [Upserter] writes courses, then lessons, reusing rows found by natural
//     key. With OnConflict set it issues single upserts instead.
//  5. [Importer] ties the steps together and judges the run with a
//     [SuccessPolicy].
//
// # Course references
//
// A lesson's course is a [CourseRef]: resolved to a course index, attached to
// the placeholder, or unresolved. Database IDs are bound only at import time
// through an [IDMap], so artifacts can be reviewed and re-imported.
//
// # Error Handling
//
// Input problems (unreadable CSV, malformed artifacts, unusable header) wrap
// [ErrInput] and abort the run. Per-record store failures are logged,
// counted in [Stats] and skipped. [MapError] attaches a support code:
//
//   - ST001-ST007: store errors (conflicts, timeouts, throttling, writes)
//   - IN001-IN002: input errors (header, artifacts)
//   - ERR000: anything else
package core
