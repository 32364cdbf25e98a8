// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"
)

// Serializer allows to convert the type to a slice of bytes and back
type Serializer[T any] interface {
	// ToBytes serialize the type to bytes
	ToBytes(T) []byte
	// FromBytes deserialize the type from bytes
	FromBytes([]byte) T
	// Size provides the size of the type when serialized (bytes)
	Size() int
}

// Address is the textual identifier of an account, derived from its public
// key. Addresses are immutable and used verbatim as map names in the store.
type Address string

// AddressVersion is the version byte prefixed to the address payload before
// base58 encoding.
const AddressVersion byte = 5

// addressPayloadSize is the number of public-key-hash bytes kept in an address.
const addressPayloadSize = 20

// AddressFromPublicKey derives the textual address of an account from its
// public key: the leading bytes of the key's Keccak256 hash, prefixed with
// the address version and base58 encoded.
func AddressFromPublicKey(publicKey []byte) Address {
	h := GetKeccak256Hash(publicKey)
	payload := make([]byte, 1+addressPayloadSize)
	payload[0] = AddressVersion
	copy(payload[1:], h[:addressPayloadSize])
	return Address(base58.Encode(payload))
}

func (a Address) String() string {
	return string(a)
}

// Bytes provides the raw textual form of the address.
func (a Address) Bytes() []byte {
	return []byte(a)
}

func (a *Address) Compare(b *Address) int {
	return strings.Compare(string(*a), string(*b))
}

type AddressComparator struct{}

func (c AddressComparator) Compare(a, b *Address) int {
	return a.Compare(b)
}

// Signature is an opaque transaction signature. Its bytes are never
// interpreted by the engine, only compared and used as a unique key.
type Signature []byte

// Key provides the signature in a form usable as a Go map key.
func (s Signature) Key() string {
	return string(s)
}

func (s Signature) Equal(o Signature) bool {
	return bytes.Equal(s, o)
}

func (s Signature) Compare(o Signature) int {
	return bytes.Compare(s, o)
}

func (s Signature) String() string {
	return base58.Encode(s)
}

// Height is the number of applied blocks. It grows by one for every applied
// block and shrinks on rollback. Height 0 is the pre-genesis state.
type Height uint32

// HeightSize is the serialized size of a Height.
const HeightSize = 4

// HeightSerializer is a Serializer of the Height type
type HeightSerializer struct{}

func (a HeightSerializer) ToBytes(h Height) []byte {
	res := make([]byte, HeightSize)
	binary.BigEndian.PutUint32(res, uint32(h))
	return res
}
func (a HeightSerializer) FromBytes(b []byte) Height {
	return Height(binary.BigEndian.Uint32(b))
}
func (a HeightSerializer) Size() int {
	return HeightSize
}

// HashSize is the byte-size of the Hash type
const HashSize = 32

// Hash is a 32-byte checksum.
type Hash [HashSize]byte

func (h Hash) ToBytes() []byte {
	return h[:]
}

func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// GetKeccak256Hash computes the Keccak256 hash of the given data.
func GetKeccak256Hash(data []byte) Hash {
	hasher := sha3.NewLegacyKeccak256()
	return GetHash(hasher, data)
}

// GetHash computes the hash of the given data using the given hashing aglorithm.
func GetHash(h hash.Hash, data []byte) (res Hash) {
	h.Reset()
	h.Write(data)
	copy(res[:], h.Sum(nil)[:])
	return
}
