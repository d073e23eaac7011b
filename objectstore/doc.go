// Package objectstore uploads file content to the pre-signed storage
// destination of an upload session.
//
// Single-file uploads sanitize the object key, build the authenticated
// multipart form from the session's pre-signed fields, follow at most one
// temporary redirect, and retry transient storage errors. Batch uploads run
// on a bounded worker pool behind a token-bucket rate limiter; per-file
// failures are captured, never raised, and reduced into an UploadSummary.
package objectstore
