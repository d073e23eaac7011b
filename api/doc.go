// Package api contains the low-level client for the deepset AI Platform
// REST API.
//
// The Client type issues authenticated, workspace-scoped HTTP requests and
// retries idempotent calls on transient network errors. The typed wrappers
// (FilesAPI, UploadSessionsAPI, PipelinesAPI) map individual endpoints to Go
// types; orchestration such as batch uploads and pagination lives in the
// service package.
package api
