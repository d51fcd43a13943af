package share

import "errors"

var (
	ErrFileNotFound       = errors.New("file not found")
	ErrShareNotFound      = errors.New("share not found")
	ErrForbidden          = errors.New("not authorized")
	ErrLinkExpired        = errors.New("share link expired")
	ErrUnsupportedPreview = errors.New("only PDF files can be previewed")
)
