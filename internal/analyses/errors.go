package analyses

import "errors"

var (
	ErrNotFound          = errors.New("analysis request not found")
	ErrForbidden         = errors.New("analysis request belongs to another user")
	ErrNotPDF            = errors.New("only PDF files are supported")
	ErrInvalidTransition = errors.New("invalid status transition")
)
