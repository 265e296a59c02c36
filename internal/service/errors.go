package service

import "errors"

var (
	ErrQueueIDRequired = errors.New("queue id is required")
	ErrQueueNotFound   = errors.New("queue not found")
	ErrClosed          = errors.New("service closed")
)
