package call

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRoomCode    = errors.New("invalid room code")
	ErrAlreadyInRoom      = errors.New("already in a room")
	ErrNotInRoom          = errors.New("not in a room")
	ErrMediaUnavailable   = errors.New("media unavailable")
	ErrNoVideoTrack       = errors.New("no video track")
	ErrNoAudioTrack       = errors.New("no audio track")
	ErrAlreadySharing     = errors.New("screen share already active")
	ErrScreenNotSent      = errors.New("no participant could receive the screen")
	ErrChannelNotOpen     = errors.New("no open data channel")
	ErrTransferInProgress = errors.New("a file transfer is already in progress")
	ErrBufferTimeout      = errors.New("buffer drain timeout")
	ErrEmptyMessage       = errors.New("empty message")
	ErrMessageTooLong     = errors.New("message too long")
)

// Error is a failed session operation, optionally scoped to one peer.
type Error struct {
	Op   string
	Peer string
	Err  error
}

func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}
