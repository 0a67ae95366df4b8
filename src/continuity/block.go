package continuity

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/ugorji/go/codec"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/common"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/crypto"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/crypto/keys"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/peers"
)

/*******************************************************************************
BlockBody
*******************************************************************************/

// BlockBody is the signed content of a Block.
type BlockBody struct {
	Index                int      //block index; doubles as the block height of the decision
	PeersHash            []byte   //hash of the peer-set that produced the block
	EventHashes          []string //committed events, lexicographic order
	ConsensusProofHashes []string //supermajority endorsements, lexicographic order
	MergeEventHashes     []string //decided Ys, lexicographic order
	Operations           [][]byte //operations of the committed regular events
}

// Marshal returns the canonical JSON encoding of a BlockBody. Signatures are
// computed over this encoding, so it must be identical on every node.
func (bb *BlockBody) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(bb); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal converts a JSON encoded BlockBody back to a BlockBody.
func (bb *BlockBody) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)
	return dec.Decode(bb)
}

// Hash returns the SHA256 hash of the JSON encoded BlockBody.
func (bb *BlockBody) Hash() ([]byte, error) {
	hashBytes, err := bb.Marshal()
	if err != nil {
		return nil, err
	}
	return crypto.SHA256(hashBytes), nil
}

/*******************************************************************************
BlockSignature
*******************************************************************************/

// BlockSignature is a validator's signature of a BlockBody.
type BlockSignature struct {
	Validator []byte
	Index     int //block index
	Signature string
}

// ValidatorHex returns the hex representation of the validator's public key.
func (bs *BlockSignature) ValidatorHex() string {
	return common.EncodeToString(bs.Validator)
}

// Key returns a unique identifier for the signature.
func (bs *BlockSignature) Key() string {
	return fmt.Sprintf("%d-%s", bs.Index, bs.ValidatorHex())
}

/*******************************************************************************
Block
*******************************************************************************/

// Block is the unit appended to the ledger after each consensus decision.
type Block struct {
	Body       BlockBody
	Signatures map[string]string //[validator hex] => signature

	hash []byte
	hex  string
}

// NewBlockFromDecision assembles a Block from a consensus Decision and the
// operations carried by the committed regular events.
func NewBlockFromDecision(blockIndex int, peerSet *peers.PeerSet, decision *Decision, operations [][]byte) (*Block, error) {
	peersHash, err := peerSet.Hash()
	if err != nil {
		return nil, err
	}

	body := BlockBody{
		Index:                blockIndex,
		PeersHash:            peersHash,
		EventHashes:          decision.EventHashes,
		ConsensusProofHashes: decision.ConsensusProofHashes,
		MergeEventHashes:     decision.MergeEventHashes,
		Operations:           operations,
	}

	return &Block{
		Body:       body,
		Signatures: make(map[string]string),
	}, nil
}

// Index returns the block's index.
func (b *Block) Index() int {
	return b.Body.Index
}

// EventHashes returns the hashes of the committed events.
func (b *Block) EventHashes() []string {
	return b.Body.EventHashes
}

// ConsensusProofHashes returns the hashes of the consensus proof.
func (b *Block) ConsensusProofHashes() []string {
	return b.Body.ConsensusProofHashes
}

// MergeEventHashes returns the hashes of the decided merge events.
func (b *Block) MergeEventHashes() []string {
	return b.Body.MergeEventHashes
}

// Operations returns the block's operation payloads.
func (b *Block) Operations() [][]byte {
	return b.Body.Operations
}

// PeersHash returns the hash of the peer-set that produced the block.
func (b *Block) PeersHash() []byte {
	return b.Body.PeersHash
}

// GetSignatures returns the block's signatures.
func (b *Block) GetSignatures() []BlockSignature {
	res := make([]BlockSignature, 0, len(b.Signatures))
	for val, sig := range b.Signatures {
		validatorBytes, _ := common.DecodeFromString(val)
		res = append(res, BlockSignature{
			Validator: validatorBytes,
			Index:     b.Index(),
			Signature: sig,
		})
	}
	return res
}

// GetSignature returns the block signature of a given validator.
func (b *Block) GetSignature(validator string) (res BlockSignature, err error) {
	sig, ok := b.Signatures[validator]
	if !ok {
		return res, fmt.Errorf("signature not found")
	}

	validatorBytes, _ := common.DecodeFromString(validator)
	return BlockSignature{
		Validator: validatorBytes,
		Index:     b.Index(),
		Signature: sig,
	}, nil
}

// SetSignature adds a signature to the block.
func (b *Block) SetSignature(bs BlockSignature) error {
	b.Signatures[bs.ValidatorHex()] = bs.Signature
	return nil
}

// Marshal returns the JSON encoding of the Block.
func (b *Block) Marshal() ([]byte, error) {
	bf := bytes.NewBuffer([]byte{})
	enc := json.NewEncoder(bf)
	if err := enc.Encode(b); err != nil {
		return nil, err
	}
	return bf.Bytes(), nil
}

// Unmarshal converts a JSON encoded Block back to a Block.
func (b *Block) Unmarshal(data []byte) error {
	bf := bytes.NewBuffer(data)
	dec := json.NewDecoder(bf)
	return dec.Decode(b)
}

// Hash returns the SHA256 hash of the JSON encoded Block.
func (b *Block) Hash() ([]byte, error) {
	if len(b.hash) == 0 {
		hashBytes, err := b.Marshal()
		if err != nil {
			return nil, err
		}
		b.hash = crypto.SHA256(hashBytes)
	}
	return b.hash, nil
}

// Hex returns the hex string representation of the block's hash.
func (b *Block) Hex() string {
	if b.hex == "" {
		hash, _ := b.Hash()
		b.hex = common.EncodeToString(hash)
	}
	return b.hex
}

// Sign returns the validator's signature of the block's body.
func (b *Block) Sign(privKey *ecdsa.PrivateKey) (bs BlockSignature, err error) {
	signBytes, err := b.Body.Hash()
	if err != nil {
		return bs, err
	}
	R, S, err := keys.Sign(privKey, signBytes)
	if err != nil {
		return bs, err
	}

	return BlockSignature{
		Validator: keys.FromPublicKey(&privKey.PublicKey),
		Index:     b.Index(),
		Signature: keys.EncodeSignature(R, S),
	}, nil
}

// Verify verifies a signature against the block's body.
func (b *Block) Verify(sig BlockSignature) (bool, error) {
	signBytes, err := b.Body.Hash()
	if err != nil {
		return false, err
	}

	pubKey := keys.ToPublicKey(sig.Validator)

	r, s, err := keys.DecodeSignature(sig.Signature)
	if err != nil {
		return false, err
	}

	return keys.Verify(pubKey, signBytes, r, s), nil
}
