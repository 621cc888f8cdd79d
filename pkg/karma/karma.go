// Package karma implements the Karma generic data structure format.
//
// A Karma stream carries self-describing, recursive, multi-dimensional data: a packet
// descriptor (an ordered list of typed elements, where an element may itself be an
// N-dimensional array of sub-packets) followed by the packet's data. All multi-byte
// values on the wire are big-endian; in memory, packet data is kept in host byte order.
//
// Descriptors may be shared by any number of data blobs. Nothing in this package
// locks: mutating a descriptor while it is being traversed is a caller error.
package karma

// Wire constants must never change.
const (
	// Magic prefixes every multi-array stream and file.
	Magic = "KarmaRHD"

	// CurrentVersion is the multi-array stream version written by this package.
	CurrentVersion uint32 = 1
)

const (
	// DefaultMaxBytes bounds the data a Reader will allocate for one packet.
	DefaultMaxBytes int64 = 1 << 30

	// DefaultMaxDepth bounds array nesting accepted by a Reader.
	DefaultMaxDepth = 64

	// maxNameLen bounds element, dimension and packet names on the wire.
	maxNameLen = 1 << 16

	// maxElements bounds the element count of a single packet descriptor on the wire.
	maxElements = 1 << 20

	// maxCells bounds the cell count of one array, whatever the size of its cells.
	maxCells = 1 << 32
)
