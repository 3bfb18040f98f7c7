package session

import "errors"

var (
	ErrInvalidRecord = errors.New("session record requires account and topic")
	ErrCorruptStore  = errors.New("session store is corrupt")
)
