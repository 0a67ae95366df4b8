package common

import (
	"encoding/hex"
	"fmt"
)

// EncodeToString returns the uppercase hex representation of hashBytes with
// the 0X prefix. Event hashes, creator keys, and block hashes all use this
// representation when used as map keys or sent over the wire.
func EncodeToString(hashBytes []byte) string {
	return fmt.Sprintf("0X%X", hashBytes)
}

// DecodeFromString converts a hex string with 0X prefix back to a byte slice.
func DecodeFromString(hexString string) ([]byte, error) {
	if len(hexString) < 2 {
		return nil, fmt.Errorf("hex string too short: %q", hexString)
	}
	return hex.DecodeString(hexString[2:])
}
