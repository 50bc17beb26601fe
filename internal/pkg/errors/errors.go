package errors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalid         = errors.New("invalid")
	ErrConflict        = errors.New("conflict")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrContentTooShort = errors.New("document content is too short or empty")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUploadFailed    = errors.New("upload failed")
	ErrGeneration      = errors.New("generation failed")
)
