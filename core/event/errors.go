package event

import "errors"

var (
	ErrBufferFull              = errors.New("event: buffer is full")
	ErrChannelBusClosed        = errors.New("event: channel bus is closed")
	ErrEventSourceNil          = errors.New("event: source is nil")
	ErrNoHandlers              = errors.New("event: no handlers registered")
	ErrProcessorAlreadyStarted = errors.New("event: processor already started")
	ErrProcessorNotStarted     = errors.New("event: processor not started")
	ErrProcessorNotRunning     = errors.New("event: processor not running")
)
