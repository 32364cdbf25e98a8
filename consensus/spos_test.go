// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package consensus

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/mr-tron/base58"
)

func testSignature() []byte {
	signature := make([]byte, 32)
	for i := range signature {
		signature[i] = byte(i + 1)
	}
	return signature
}

func TestBlockField_EncodedLength(t *testing.T) {
	field := BlockField{
		MintTime:            42,
		MintBalance:         1_000_000_000,
		GenerationSignature: testSignature(),
	}
	data := field.Bytes()
	if got, want := len(data), FixedFieldsLength+32; got != want {
		t.Errorf("expected %d encoded bytes, got %d", want, got)
	}
}

func TestBlockField_BinaryRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		field BlockField
	}{
		{"typical", BlockField{MintTime: 42, MintBalance: 1_000_000_000, GenerationSignature: testSignature()}},
		{"zero values", BlockField{}},
		{"64 byte signature", BlockField{MintTime: 1, MintBalance: 2, GenerationSignature: make([]byte, 64)}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			restored, err := ParseBlockField(test.field.Bytes())
			if err != nil {
				t.Fatalf("failed to parse; %s", err)
			}
			if restored.MintTime != test.field.MintTime || restored.MintBalance != test.field.MintBalance {
				t.Errorf("fixed fields differ, got %+v, want %+v", restored, test.field)
			}
			if !bytes.Equal(restored.GenerationSignature, test.field.GenerationSignature) {
				t.Errorf("generation signature differs, got %x, want %x", restored.GenerationSignature, test.field.GenerationSignature)
			}
		})
	}
}

func TestBlockField_BigEndianLayout(t *testing.T) {
	field := BlockField{MintTime: 1, MintBalance: 256}
	data := field.Bytes()
	want := []byte{
		0, 0, 0, 0, 0, 0, 0, 1,
		0, 0, 0, 0, 0, 0, 1, 0,
	}
	if !bytes.Equal(data, want) {
		t.Errorf("expected big-endian layout %x, got %x", want, data)
	}
}

func TestBlockField_ParseRejectsShortInput(t *testing.T) {
	if _, err := ParseBlockField(make([]byte, FixedFieldsLength-1)); err == nil {
		t.Errorf("input shorter than the fixed fields should be rejected")
	}
}

func TestBlockField_JsonRoundTrip(t *testing.T) {
	field := BlockField{
		MintTime:            42,
		MintBalance:         1_000_000_000,
		GenerationSignature: testSignature(),
	}
	data, err := json.Marshal(field)
	if err != nil {
		t.Fatalf("failed to marshal; %s", err)
	}
	var restored BlockField
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("failed to unmarshal; %s", err)
	}
	if restored.MintTime != field.MintTime || restored.MintBalance != field.MintBalance ||
		!bytes.Equal(restored.GenerationSignature, field.GenerationSignature) {
		t.Errorf("round trip differs, got %+v, want %+v", restored, field)
	}
}

func TestBlockField_JsonUsesTheDocumentedShape(t *testing.T) {
	field := BlockField{
		MintTime:            42,
		MintBalance:         7,
		GenerationSignature: testSignature(),
	}
	data, err := json.Marshal(field)
	if err != nil {
		t.Fatalf("failed to marshal; %s", err)
	}
	var document map[string]map[string]any
	if err := json.Unmarshal(data, &document); err != nil {
		t.Fatalf("failed to unmarshal; %s", err)
	}
	inner, exists := document["SPOSConsensus"]
	if !exists {
		t.Fatalf("expected SPOSConsensus wrapper, got %s", data)
	}
	if inner["mintTime"] != float64(42) || inner["mintBalance"] != float64(7) {
		t.Errorf("unexpected fixed fields: %s", data)
	}
	signature, _ := inner["generationSignature"].(string)
	decoded, err := base58.Decode(signature)
	if err != nil || !bytes.Equal(decoded, testSignature()) {
		t.Errorf("generation signature should be base58 encoded, got %q", signature)
	}
}

func TestBlockField_JsonRejectsMalformedSignature(t *testing.T) {
	var field BlockField
	input := `{"SPOSConsensus":{"mintTime":1,"mintBalance":2,"generationSignature":"not-base58-0OIl"}}`
	if err := json.Unmarshal([]byte(input), &field); err == nil {
		t.Errorf("malformed base58 signature should be rejected")
	}
}
