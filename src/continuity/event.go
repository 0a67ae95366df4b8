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
)

/*******************************************************************************
EventType
*******************************************************************************/

// EventType distinguishes the three kinds of ledger events.
type EventType uint8

const (
	// EventTypeRegular events carry user operations. They appear in the DAG
	// only as ancestors of merge events; the consensus core never walks them
	// directly.
	EventTypeRegular EventType = iota
	// EventTypeMerge events merge the heads of other branches. They are the
	// only events consulted by the consensus core.
	EventTypeMerge
	// EventTypeConfiguration events carry ledger configuration changes. The
	// core treats them like regular events.
	EventTypeConfiguration
)

var eventTypes = []string{"regular", "merge", "configuration"}

// String returns the string representation of an EventType.
func (t EventType) String() string {
	if int(t) >= len(eventTypes) {
		return fmt.Sprintf("EventType(%d)", t)
	}
	return eventTypes[t]
}

/*******************************************************************************
EventBody
*******************************************************************************/

// EventBody contains the payload of an Event as well as the information that
// ties it to the rest of the DAG.
type EventBody struct {
	Type       EventType //regular, merge, or configuration
	Operations [][]byte  //operation documents; only set on regular and configuration events
	Parents    []string  //hashes of the event's parent events
	TreeParent string    //hash of the creator's previous merge event; empty for the creator's first
	Creator    []byte    //creator's public key
	Index      int       //index in the sequence of events created by Creator

	//This field is not serialized. It carries the compact creator reference
	//used by the wire representation.
	creatorID uint32
}

// Marshal returns the canonical JSON encoding of an EventBody. The encoding
// must be canonical because the event's hash, and therefore its identity,
// derives from it.
func (e *EventBody) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal converts a JSON encoded EventBody back to an EventBody.
func (e *EventBody) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)
	return dec.Decode(e)
}

// Hash returns the SHA256 hash of the JSON encoded EventBody. This is the
// event's content address.
func (e *EventBody) Hash() ([]byte, error) {
	hashBytes, err := e.Marshal()
	if err != nil {
		return nil, err
	}
	return crypto.SHA256(hashBytes), nil
}

/*******************************************************************************
Event
*******************************************************************************/

// Event is a node of the ledger DAG. It contains an EventBody and a signature
// of the EventBody by the event's creator. The private fields are memoized
// local computations.
type Event struct {
	Body      EventBody
	Signature string //creator's digital signature of Body

	topologicalIndex int

	creator string
	hash    []byte
	hex     string
}

// NewEvent instantiates a new Event. Merge events must list their tree parent
// among the parents.
func NewEvent(eventType EventType,
	operations [][]byte,
	parents []string,
	treeParent string,
	creator []byte,
	index int) *Event {

	body := EventBody{
		Type:       eventType,
		Operations: operations,
		Parents:    parents,
		TreeParent: treeParent,
		Creator:    creator,
		Index:      index,
	}
	return &Event{
		Body: body,
	}
}

// NewMergeEvent instantiates a merge event over the given parents. The tree
// parent, when set, is placed first in the parent list; a copy of it in
// otherParents is dropped.
func NewMergeEvent(treeParent string, otherParents []string, creator []byte, index int) *Event {
	parents := []string{}
	if treeParent != "" {
		parents = append(parents, treeParent)
	}
	for _, p := range otherParents {
		if p != treeParent {
			parents = append(parents, p)
		}
	}
	return NewEvent(EventTypeMerge, nil, parents, treeParent, creator, index)
}

// Creator returns the string representation of the creator's public key.
func (e *Event) Creator() string {
	if e.creator == "" {
		e.creator = common.EncodeToString(e.Body.Creator)
	}
	return e.creator
}

// Type returns the event's type.
func (e *Event) Type() EventType {
	return e.Body.Type
}

// IsMerge reports whether the event is a merge event.
func (e *Event) IsMerge() bool {
	return e.Body.Type == EventTypeMerge
}

// Parents returns the hashes of the event's parents.
func (e *Event) Parents() []string {
	return e.Body.Parents
}

// TreeParent returns the hash of the creator's previous merge event, or the
// empty string for the creator's first merge event.
func (e *Event) TreeParent() string {
	return e.Body.TreeParent
}

// Operations returns the event's operation payloads.
func (e *Event) Operations() [][]byte {
	return e.Body.Operations
}

// Index returns the event's index in its creator's sequence.
func (e *Event) Index() int {
	return e.Body.Index
}

// Validate checks the event's structural invariants: a creator must be set,
// and a merge event must list its tree parent among its parents.
func (e *Event) Validate() error {
	if len(e.Body.Creator) == 0 {
		return fmt.Errorf("event has no creator")
	}
	if e.Body.Type == EventTypeMerge && e.Body.TreeParent != "" {
		found := false
		for _, p := range e.Body.Parents {
			if p == e.Body.TreeParent {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("merge event %s does not list its tree parent among its parents", e.Hex())
		}
	}
	return nil
}

// Sign signs the hash of the event's body with an ecdsa signature.
func (e *Event) Sign(privKey *ecdsa.PrivateKey) error {
	signBytes, err := e.Body.Hash()
	if err != nil {
		return err
	}

	R, S, err := keys.Sign(privKey, signBytes)
	if err != nil {
		return err
	}

	e.Signature = keys.EncodeSignature(R, S)

	return nil
}

// Verify verifies the event's signature against its creator's public key.
// Verification happens before events enter the consensus snapshot.
func (e *Event) Verify() (bool, error) {
	pubBytes := e.Body.Creator
	pubKey := keys.ToPublicKey(pubBytes)

	signBytes, err := e.Body.Hash()
	if err != nil {
		return false, err
	}

	r, s, err := keys.DecodeSignature(e.Signature)
	if err != nil {
		return false, err
	}

	return keys.Verify(pubKey, signBytes, r, s), nil
}

// Hash returns the SHA256 hash of the JSON-encoded body.
func (e *Event) Hash() ([]byte, error) {
	if len(e.hash) == 0 {
		hash, err := e.Body.Hash()
		if err != nil {
			return nil, err
		}
		e.hash = hash
	}
	return e.hash, nil
}

// Hex returns the hex string representation of the event's hash.
func (e *Event) Hex() string {
	if e.hex == "" {
		hash, _ := e.Hash()
		e.hex = common.EncodeToString(hash)
	}
	return e.hex
}

// SetWireInfo sets the compact creator reference used by the wire
// representation.
func (e *Event) SetWireInfo(creatorID uint32) {
	e.Body.creatorID = creatorID
}

// ToWire converts an Event to its WireEvent representation.
func (e *Event) ToWire() WireEvent {
	return WireEvent{
		Body: WireBody{
			Type:       e.Body.Type,
			Operations: e.Body.Operations,
			Parents:    e.Body.Parents,
			TreeParent: e.Body.TreeParent,
			CreatorID:  e.Body.creatorID,
			Index:      e.Body.Index,
		},
		Signature: e.Signature,
	}
}

/*******************************************************************************
eventWrapper
*******************************************************************************/

type eventWrapper struct {
	Body             EventBody
	Signature        string
	CreatorID        uint32
	TopologicalIndex int
}

// MarshalDB returns the JSON encoding of the Event along with the private
// fields that the default JSON marshalling would drop. Database stores use it
// so that topological order survives a write/read cycle.
func (e *Event) MarshalDB() ([]byte, error) {
	wrapper := eventWrapper{
		Body:             e.Body,
		Signature:        e.Signature,
		CreatorID:        e.Body.creatorID,
		TopologicalIndex: e.topologicalIndex,
	}
	return json.Marshal(wrapper)
}

// UnmarshalDB unmarshals a JSON encoded eventWrapper and converts it to an
// Event with its private fields restored.
func (e *Event) UnmarshalDB(data []byte) error {
	var wrapper eventWrapper

	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}

	e.Body = wrapper.Body
	e.Body.creatorID = wrapper.CreatorID
	e.Signature = wrapper.Signature
	e.topologicalIndex = wrapper.TopologicalIndex

	return nil
}

/*******************************************************************************
WireEvent
*******************************************************************************/

// WireBody is the compact form of EventBody exchanged by gossip. The creator's
// public key is replaced by its uint32 ID; the receiver resolves it against
// its peer repertoire.
type WireBody struct {
	Type       EventType
	Operations [][]byte
	Parents    []string
	TreeParent string
	CreatorID  uint32
	Index      int
}

// WireEvent is the compact form of Event exchanged by gossip.
type WireEvent struct {
	Body      WireBody
	Signature string
}

/*******************************************************************************
Sorting
*******************************************************************************/

// ByTopologicalOrder implements sort.Interface for []*Event based on the
// private topologicalIndex field: the order in which events were inserted
// locally. Parents always precede children, which is what gossip responses
// need, but the order differs between nodes. THIS IS A PARTIAL ORDER.
type ByTopologicalOrder []*Event

// Len implements the sort.Interface.
func (a ByTopologicalOrder) Len() int { return len(a) }

// Swap implements the sort.Interface.
func (a ByTopologicalOrder) Swap(i, j int) { a[i], a[j] = a[j], a[i] }

// Less implements the sort.Interface.
func (a ByTopologicalOrder) Less(i, j int) bool {
	return a[i].topologicalIndex < a[j].topologicalIndex
}
