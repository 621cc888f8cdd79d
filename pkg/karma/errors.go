package karma

import "errors"

var (
	// ErrStreamIO reports a failure of the underlying byte stream, including a
	// stream that ends in the middle of a structure.
	ErrStreamIO = errors.New("karma: stream i/o error")

	// ErrSchemaMismatch reports a stream whose descriptor disagrees with the
	// descriptor the caller expected.
	ErrSchemaMismatch = errors.New("karma: schema mismatch")

	// ErrFormat reports malformed stream contents. The stream position is
	// unreliable afterwards and the session should be abandoned.
	ErrFormat = errors.New("karma: format error")

	// ErrStructure reports an invalid in-memory descriptor or a data blob that
	// does not fit its descriptor.
	ErrStructure = errors.New("karma: invalid structure")
)
