// Package pipeline publishes pipeline and index definitions to a
// workspace. Definitions are rendered to the platform's YAML format,
// validated remotely, and then created or overwritten.
package pipeline
