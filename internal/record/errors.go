package record

import "errors"

var (
	ErrRecorderClosed = errors.New("recorder is closed")
)
