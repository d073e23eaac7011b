// Package service orchestrates file operations against the deepset AI
// Platform.
//
// FilesService drives the upload workflow: pre-flight validation of local
// paths, the upload-session lifecycle (create, bulk upload to object
// storage, close), and the optional blocking wait for server-side ingestion
// to finish. It also provides paginated listing and bulk download of
// workspace files. Small batches skip sessions and upload directly through
// the API server.
package service
