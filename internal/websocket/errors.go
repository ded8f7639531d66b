package websocket

import "errors"

var (
	ErrClientGone   = errors.New("client disconnected")
	ErrSendBlocked  = errors.New("client send buffer is full")
	ErrEmptyPayload = errors.New("empty publish payload")
)
