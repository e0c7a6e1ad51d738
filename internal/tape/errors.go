package tape

import "errors"

// Sentinel errors for tape operations.
var (
	// ErrTapeNotFound indicates that the store holds no tape with the
	// requested name.
	ErrTapeNotFound = errors.New("tape not found")

	// ErrNoActiveTape indicates that no tape is inserted in the deck.
	ErrNoActiveTape = errors.New("no active tape")

	// ErrInvalidTapeName indicates a tape name unsafe for storage.
	ErrInvalidTapeName = errors.New("invalid tape name")
)
