package notification

import "errors"

var ErrMissingType = errors.New("notification: message has no type")
