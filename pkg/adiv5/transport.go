package adiv5

// Transport is one wire protocol's view of a Debug Port. Register addresses
// use the package convention: low byte register address, APAccess flag for
// Access Port registers.
type Transport interface {
	// LowAccess performs one raw DPACC/APACC transaction, retrying WAIT
	// acknowledges until the retry budget expires. For reads the returned
	// value is whatever the wire hands back for this transaction; on a
	// pipelined transport that is the result of the previous read.
	LowAccess(rnw bool, addr uint16, value uint32) (uint32, error)

	// ReadReg performs a complete read of one register, draining the read
	// pipeline where the wire has one.
	ReadReg(addr uint16) (uint32, error)

	// Abort writes the ABORT register through the dedicated path, bypassing
	// the ordinary transaction flow so it works when that flow is stuck.
	Abort(bits uint32) error
}

// Resyncer is implemented by transports that can re-establish line
// synchronization after a protocol failure.
type Resyncer interface {
	Resync() error
}

const lowRead, lowWrite = true, false
