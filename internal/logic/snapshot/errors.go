package snapshot

import "errors"

var ErrUpdateFailed = errors.New("snapshot refresh failed")
