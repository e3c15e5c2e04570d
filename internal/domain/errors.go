package domain

import "errors"

// Error kinds surfaced by the export workflow. Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	// ErrAuthentication means no usable cached credential was found.
	ErrAuthentication = errors.New("authentication error")

	// ErrConfiguration means the region, year range, or job settings are invalid.
	ErrConfiguration = errors.New("configuration error")

	// ErrSubmission means the imagery service did not accept an export task.
	ErrSubmission = errors.New("submission error")

	// ErrNoCoverage means no source collection has imagery for the requested year.
	ErrNoCoverage = errors.New("no source collection covers year")
)
