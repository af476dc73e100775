package chat

import "errors"

// Error taxonomy. Init errors surface from session construction and the
// session never starts. Sync, shift, render, and decode errors abort the
// turn they occur in; the session stays usable. Actor death is only visible
// as ErrSessionClosed on subsequent commands.
var (
	// ErrInit covers model, template, or context creation failures.
	ErrInit = errors.New("chat: initialization failed")

	// ErrContextSync covers tokenization or native truncate/append
	// failures while aligning the context with a render.
	ErrContextSync = errors.New("chat: context sync failed")

	// ErrShift means the eviction policy found no deletable messages.
	ErrShift = errors.New("chat: context shift failed")

	// ErrRender covers chat-template rendering failures.
	ErrRender = errors.New("chat: template render failed")

	// ErrDecode covers native sampling or decode failures.
	ErrDecode = errors.New("chat: decode failed")

	// ErrSessionClosed is returned by commands sent after the session
	// actor has exited.
	ErrSessionClosed = errors.New("chat: session closed")

	// ErrTurnAborted is reported by Stream.Completed when the stream
	// ended without a Done event.
	ErrTurnAborted = errors.New("chat: stream ended before completion")
)
