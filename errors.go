// CLAUDE:SUMMARY Sentinel errors for the mirador service surface.
package mirador

import "errors"

var (
	// ErrConfig marks configuration-validation failures (startup-fatal by policy).
	ErrConfig = errors.New("mirador: invalid configuration")
	// ErrUnknownSource is returned for a source name nothing is registered under.
	ErrUnknownSource = errors.New("mirador: unknown source")
	// ErrRunInProgress is returned when a source already has a run underway.
	// Triggers are skipped, never queued.
	ErrRunInProgress = errors.New("mirador: run already in progress")
)
