package files

import "errors"

var (
	ErrFileNotFound = errors.New("file not found")
	ErrForbidden    = errors.New("access denied")
	ErrLinkExpired  = errors.New("share link expired")
)
