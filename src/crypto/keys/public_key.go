package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/common"
)

// ToPublicKey is a wrapper around elliptic.Unmarshal on the curve returned by
// Curve(). The argument pub is expected to be the uncompressed form of a
// point on the curve, as returned by FromPublicKey.
func ToPublicKey(pub []byte) *ecdsa.PublicKey {
	if len(pub) == 0 {
		return nil
	}
	x, y := elliptic.Unmarshal(Curve(), pub)
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}
}

// FromPublicKey is a wrapper around elliptic.Marshal on the curve returned by
// Curve(). It outputs the point in uncompressed form.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// PublicKeyID gives a compact uint32 representation of a public key. It is
// used in the gossip wire encoding, where it replaces the uncompressed form
// of the key (65 bytes on secp256k1) in creator-head maps.
func PublicKeyID(pubBytes []byte) uint32 {
	return common.Hash32(pubBytes)
}

// PublicKeyHex returns the hexadecimal representation of the uncompressed
// form of the public key.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return common.EncodeToString(FromPublicKey(pub))
}
