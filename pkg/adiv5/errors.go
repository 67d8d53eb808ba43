package adiv5

import "errors"

var (
	// ErrTimeout means the target kept answering WAIT until the retry
	// budget ran out. With DP.AllowTimeout set, reads absorb it as zero.
	ErrTimeout = errors.New("adiv5: transaction timeout")

	// ErrProtocol means the wire protocol itself broke down: an undefined
	// acknowledge or a corrupted response.
	ErrProtocol = errors.New("adiv5: protocol failure")

	// ErrFault is the SWD FAULT acknowledge: the transaction was refused
	// because a sticky error flag is set.
	ErrFault = errors.New("adiv5: fault response")

	// ErrParity means a read came back with bad parity.
	ErrParity = errors.New("adiv5: parity error")
)
