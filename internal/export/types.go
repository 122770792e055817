// Package export renders the concern board as a PDF report.
package export

import "errors"

// Request contains parameters for a board export.
type Request struct {
	IncludeDeleted bool
	Title          string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
