package port

import "errors"

// ErrCaseNotFound is returned by the case directory when the case id is
// unknown.
var ErrCaseNotFound = errors.New("case not found")
