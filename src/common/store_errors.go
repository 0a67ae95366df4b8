package common

import "fmt"

// StoreErrType enumerates the error conditions raised by ledger stores.
type StoreErrType uint32

const (
	// KeyNotFound is returned when an item is not in the store.
	KeyNotFound StoreErrType = iota
	// TooLate is returned when a rolling cache has already evicted the
	// requested index.
	TooLate
	// PassedIndex is returned when setting an item at an index that was
	// already passed.
	PassedIndex
	// SkippedIndex is returned when setting an item would leave a gap in a
	// rolling index.
	SkippedIndex
	// UnknownParticipant is returned when a creator is not a known peer.
	UnknownParticipant
	// Empty is returned when reading from an empty cache.
	Empty
	// KeyAlreadyExists is returned when writing an item that may not be
	// overwritten.
	KeyAlreadyExists
)

// StoreErr is a typed error raised by store implementations. Callers use
// IsStore to react to specific conditions without string matching.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr creates a StoreErr.
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error implements the error interface.
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case TooLate:
		m = "Too Late"
	case PassedIndex:
		m = "Passed Index"
	case SkippedIndex:
		m = "Skipped Index"
	case UnknownParticipant:
		m = "Unknown Participant"
	case Empty:
		m = "Empty"
	case KeyAlreadyExists:
		m = "Key Already Exists"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that an error is a StoreErr of the given type.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := err.(StoreErr)
	return ok && storeErr.errType == t
}
