package simulation

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"strings"

	"lukechampine.com/blake3"
)

const HashLength = 32

type Hash [HashLength]byte

type BlockNonce [8]byte

// EncodeNonce converts the given integer to a block nonce.
func EncodeNonce(i uint64) BlockNonce {
	var n BlockNonce
	binary.BigEndian.PutUint64(n[:], i)
	return n
}

// Bytes() returns the raw bytes of the block nonce
func (n BlockNonce) Bytes() []byte {
	return n[:]
}

// Uint64 returns the integer value of a block nonce.
func (n BlockNonce) Uint64() uint64 {
	return binary.BigEndian.Uint64(n[:])
}

// SetBytes sets the hash to the value of b.
// If b is larger than len(h), b will be cropped from the left.
func (h *Hash) SetBytes(b []byte) {
	if len(b) > len(h) {
		b = b[len(b)-HashLength:]
	}

	copy(h[HashLength-len(b):], b)
}

func (h Hash) String() string {
	enc := make([]byte, len(h[:])*2+2)
	copy(enc, "0x")
	hex.Encode(enc[2:], h[:])
	return string(enc)
}

func (h Hash) Bytes() []byte {
	return h[:]
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(string(text), "0x"))
	if err != nil {
		return err
	}
	h.SetBytes(raw)
	return nil
}

// NodeID identifies a participant in the simulated network.
type NodeID int

// Block is immutable once created. The hash is derived from the full
// content, so two blocks with the same parent, creator and slot data
// share an identity everywhere in the network.
type Block struct {
	parentHash Hash
	number     uint64
	creator    NodeID
	time       float64
	weight     float64
	nonce      BlockNonce
	payload    []byte
}

func GenesisBlock() *Block {
	return &Block{
		parentHash: Hash{},
		number:     0,
		creator:    -1,
		time:       0,
		weight:     0,
	}
}

// NewBlock mints a block on top of parent. The nonce is the logical
// proof token recorded at creation; it stands in for a real mining
// trial or staking lottery ticket.
func NewBlock(parent *Block, creator NodeID, time float64, weight float64, nonce BlockNonce, payload []byte) *Block {
	return &Block{
		parentHash: parent.Hash(),
		number:     parent.Number() + 1,
		creator:    creator,
		time:       time,
		weight:     weight,
		nonce:      nonce,
		payload:    payload,
	}
}

func (b *Block) Hash() (hash Hash) {
	sealHash := b.SealHash().Bytes()
	var hData [40]byte
	copy(hData[:], b.Nonce().Bytes())
	copy(hData[len(b.nonce):], sealHash)
	sum := blake3.Sum256(hData[:])
	hash.SetBytes(sum[:])
	return hash
}

func (b *Block) SealHash() (hash Hash) {
	sealData := struct {
		ParentHash Hash
		Number     uint64
		Creator    NodeID
		Time       float64
		Weight     float64
		Payload    []byte
	}{
		ParentHash: b.ParentHash(),
		Number:     b.Number(),
		Creator:    b.Creator(),
		Time:       b.Time(),
		Weight:     b.Weight(),
		Payload:    b.payload,
	}
	buf := bytes.Buffer{}
	e := gob.NewEncoder(&buf)
	err := e.Encode(sealData)
	if err != nil {
		fmt.Println(`failed gob Encode`, err)
	}
	data := buf.Bytes()
	sum := blake3.Sum256(data[:])
	hash.SetBytes(sum[:])
	return hash
}

func (b *Block) ParentHash() Hash {
	return b.parentHash
}

func (b *Block) Number() uint64 {
	return b.number
}

func (b *Block) Creator() NodeID {
	return b.creator
}

func (b *Block) Time() float64 {
	return b.time
}

func (b *Block) Weight() float64 {
	return b.weight
}

func (b *Block) Nonce() BlockNonce {
	return b.nonce
}

func (b *Block) Payload() []byte {
	return b.payload
}

func (b *Block) IsGenesis() bool {
	return b.number == 0 && b.parentHash == (Hash{})
}

func (b *Block) String() string {
	return fmt.Sprintf("{ ParentHash: %v, Number: %v, Creator: %v, Time: %v, Weight: %v, Nonce: %v}",
		b.ParentHash(), b.Number(), b.Creator(), b.Time(), b.Weight(), b.Nonce())
}
