// Package event contains build lifecycle events passed from builder to its handlers
package event

import "time"

// Start sent before the build starts
type Start struct {
	ID           string
	Host         string
	LauncherName string
	PackageName  string
	StartedAt    time.Time
}

// Complete sent after the build finished, successfully or not
type Complete struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   int
	Output     string
	Artifact   string // stored file name, empty on failure
	Size       int64
	Err        error
}
