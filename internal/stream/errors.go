package stream

import "errors"

// Channel-related errors. These never escape the manager's public API; they
// show up in logs and in the channel wrapper's write path only.
var (
	ErrChannelClosed = errors.New("channel closed")
	ErrWriteTimeout  = errors.New("channel write timeout")
	ErrNotConnected  = errors.New("channel not connected")
)
