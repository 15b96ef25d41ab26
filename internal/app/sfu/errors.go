package sfu

import "errors"

var (
	ErrNoWorkers     = errors.New("relay pool has no workers")
	ErrProducerOwner = errors.New("producer belongs to another user")
)
