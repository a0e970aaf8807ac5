package voice

import "errors"

// ErrAlreadyConnected is returned by Connect while a room is owned or a
// connect is in flight.
var ErrAlreadyConnected = errors.New("already connected")
