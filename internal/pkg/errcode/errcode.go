package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrUnsupportedFile
	ErrFileTooLarge
	ErrUploadFailed
	ErrGeneration
	ErrAIUnavailable
)
