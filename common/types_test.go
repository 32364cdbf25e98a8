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
	"testing"

	"github.com/mr-tron/base58"
)

func TestAddress_FromPublicKeyIsDeterministic(t *testing.T) {
	first := AddressFromPublicKey([]byte("some public key"))
	second := AddressFromPublicKey([]byte("some public key"))
	if first != second {
		t.Errorf("address derivation should be deterministic, got %s and %s", first, second)
	}
	other := AddressFromPublicKey([]byte("another public key"))
	if first == other {
		t.Errorf("different keys should derive different addresses")
	}
}

func TestAddress_IsWellFormedBase58(t *testing.T) {
	address := AddressFromPublicKey([]byte("some public key"))
	decoded, err := base58.Decode(string(address))
	if err != nil {
		t.Fatalf("derived address should decode as base58; %s", err)
	}
	if len(decoded) != 1+addressPayloadSize {
		t.Errorf("expected %d payload bytes, got %d", 1+addressPayloadSize, len(decoded))
	}
	if decoded[0] != AddressVersion {
		t.Errorf("expected version byte %d, got %d", AddressVersion, decoded[0])
	}
}

func TestHeightSerializer_RoundTrips(t *testing.T) {
	serializer := HeightSerializer{}
	for _, height := range []Height{0, 1, 42, 1<<32 - 1} {
		data := serializer.ToBytes(height)
		if len(data) != serializer.Size() {
			t.Errorf("expected %d bytes, got %d", serializer.Size(), len(data))
		}
		if restored := serializer.FromBytes(data); restored != height {
			t.Errorf("round trip failed for %d, got %d", height, restored)
		}
	}
}

func TestHeightSerializer_OrdersBytesLikeValues(t *testing.T) {
	serializer := HeightSerializer{}
	low := serializer.ToBytes(41)
	high := serializer.ToBytes(1 << 20)
	if string(low) >= string(high) {
		t.Errorf("serialized heights should sort like their values")
	}
}

func TestSignature_Compare(t *testing.T) {
	a := Signature("aaa")
	b := Signature("bbb")
	if a.Compare(b) >= 0 || b.Compare(a) <= 0 || a.Compare(a) != 0 {
		t.Errorf("signature comparison is inconsistent")
	}
	if !a.Equal(Signature("aaa")) || a.Equal(b) {
		t.Errorf("signature equality is inconsistent")
	}
}

func TestGetKeccak256Hash_MatchesKnownVector(t *testing.T) {
	// Keccak256 of the empty input.
	want := "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"
	if got := GetKeccak256Hash(nil).String(); got != want {
		t.Errorf("unexpected Keccak256 of empty input, got %s, want %s", got, want)
	}
}
