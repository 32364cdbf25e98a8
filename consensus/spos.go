// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package consensus provides the Supernode Proof-of-Stake block header
// fragment carried by every block: the forger's mint time and mint balance
// and the generation signature. The engine serializes the field; verifying
// the generation signature is downstream consensus logic.
package consensus

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// FixedFieldsLength is the length of the fixed-size prefix of the encoded
// field: mint time and mint balance, 8 bytes each, big-endian.
const FixedFieldsLength = 16

// BlockField is the SPoS consensus fragment of a block header. It is
// immutable once the block is built.
type BlockField struct {
	MintTime            uint64
	MintBalance         uint64
	GenerationSignature []byte
}

// Bytes encodes the field into its wire form: big-endian mint time, big-endian
// mint balance, and the generation signature verbatim. The encoded length is
// FixedFieldsLength plus the signature length.
func (f BlockField) Bytes() []byte {
	res := make([]byte, FixedFieldsLength+len(f.GenerationSignature))
	binary.BigEndian.PutUint64(res[0:8], f.MintTime)
	binary.BigEndian.PutUint64(res[8:16], f.MintBalance)
	copy(res[FixedFieldsLength:], f.GenerationSignature)
	return res
}

// ParseBlockField decodes the wire form produced by Bytes. The generation
// signature is the remainder after the fixed fields; its length is fixed by
// the protocol and validated by downstream consensus logic.
func ParseBlockField(data []byte) (BlockField, error) {
	if len(data) < FixedFieldsLength {
		return BlockField{}, fmt.Errorf("consensus field too short: %d bytes, need at least %d", len(data), FixedFieldsLength)
	}
	field := BlockField{
		MintTime:    binary.BigEndian.Uint64(data[0:8]),
		MintBalance: binary.BigEndian.Uint64(data[8:16]),
	}
	if len(data) > FixedFieldsLength {
		field.GenerationSignature = make([]byte, len(data)-FixedFieldsLength)
		copy(field.GenerationSignature, data[FixedFieldsLength:])
	}
	return field, nil
}

// blockFieldJson is the structured-document form of the field.
type blockFieldJson struct {
	MintTime            uint64 `json:"mintTime"`
	MintBalance         uint64 `json:"mintBalance"`
	GenerationSignature string `json:"generationSignature"`
}

type blockFieldDocument struct {
	SPOSConsensus blockFieldJson `json:"SPOSConsensus"`
}

// MarshalJSON encodes the field as its structured-document form, with the
// generation signature in base58.
func (f BlockField) MarshalJSON() ([]byte, error) {
	return json.Marshal(blockFieldDocument{
		SPOSConsensus: blockFieldJson{
			MintTime:            f.MintTime,
			MintBalance:         f.MintBalance,
			GenerationSignature: base58.Encode(f.GenerationSignature),
		},
	})
}

// UnmarshalJSON decodes the structured-document form produced by MarshalJSON.
func (f *BlockField) UnmarshalJSON(data []byte) error {
	var document blockFieldDocument
	if err := json.Unmarshal(data, &document); err != nil {
		return err
	}
	signature, err := base58.Decode(document.SPOSConsensus.GenerationSignature)
	if err != nil {
		return fmt.Errorf("malformed generation signature; %w", err)
	}
	if len(signature) == 0 {
		signature = nil
	}
	f.MintTime = document.SPOSConsensus.MintTime
	f.MintBalance = document.SPOSConsensus.MintBalance
	f.GenerationSignature = signature
	return nil
}
