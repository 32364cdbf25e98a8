// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package ledger

import (
	"errors"
	"math"
	"testing"

	"github.com/vsys-labs/ledger/common"
)

func TestTransaction_CheckRejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name string
		tx   *Transaction
		want error
	}{
		{
			"valid payment",
			payment(pubKeyA, addrB, 10, 1, testBaseTime, "sig"),
			nil,
		},
		{
			"zero amount",
			payment(pubKeyA, addrB, 0, 1, testBaseTime, "sig"),
			ErrInvalidFields,
		},
		{
			"zero fee",
			payment(pubKeyA, addrB, 10, 0, testBaseTime, "sig"),
			ErrInvalidFields,
		},
		{
			"empty recipient",
			payment(pubKeyA, "", 10, 1, testBaseTime, "sig"),
			ErrInvalidFields,
		},
		{
			"non-base58 recipient",
			payment(pubKeyA, common.Address("0OIl"), 10, 1, testBaseTime, "sig"),
			ErrInvalidFields,
		},
		{
			"amount plus fee overflows the delta range",
			payment(pubKeyA, addrB, math.MaxInt64, 1, testBaseTime, "sig"),
			ErrInvalidFields,
		},
		{
			"missing signature",
			payment(pubKeyA, addrB, 10, 1, testBaseTime, ""),
			ErrInvalidSignature,
		},
		{
			"valid genesis",
			NewGenesis(addrA, 1000, testBaseTime),
			nil,
		},
		{
			"zero genesis amount",
			NewGenesis(addrA, 0, testBaseTime),
			ErrInvalidFields,
		},
		{
			"unknown variant",
			&Transaction{Type: TransactionType(42)},
			ErrUnknownTransactionVariant,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.tx.Check()
			if test.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, test.want) {
				t.Errorf("expected %v, got %v", test.want, err)
			}
		})
	}
}

func TestTransaction_PaymentBalanceChanges(t *testing.T) {
	tx := payment(pubKeyA, addrB, 100, 10, testBaseTime, "sig")
	changes, err := tx.BalanceChanges()
	if err != nil {
		t.Fatalf("failed to compute changes; %s", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].Account != addrA || changes[0].Delta != -110 {
		t.Errorf("sender should be debited amount plus fee, got %v", changes[0])
	}
	if changes[1].Account != addrB || changes[1].Delta != 100 {
		t.Errorf("recipient should be credited the amount, got %v", changes[1])
	}
}

func TestTransaction_GenesisBalanceChanges(t *testing.T) {
	tx := NewGenesis(addrA, 1000, testBaseTime)
	changes, err := tx.BalanceChanges()
	if err != nil {
		t.Fatalf("failed to compute changes; %s", err)
	}
	if len(changes) != 1 || changes[0].Account != addrA || changes[0].Delta != 1000 {
		t.Errorf("genesis should credit the recipient, got %v", changes)
	}
}

func TestTransaction_UnknownVariantBalanceChanges(t *testing.T) {
	tx := &Transaction{Type: TransactionType(42)}
	if _, err := tx.BalanceChanges(); !errors.Is(err, ErrUnknownTransactionVariant) {
		t.Errorf("expected ErrUnknownTransactionVariant, got %v", err)
	}
}

func TestTransaction_GenesisSignatureIsDeterministic(t *testing.T) {
	first := NewGenesis(addrA, 1000, testBaseTime)
	second := NewGenesis(addrA, 1000, testBaseTime)
	if !first.Signature.Equal(second.Signature) {
		t.Errorf("equal genesis transactions should have equal signatures")
	}
	other := NewGenesis(addrA, 999, testBaseTime)
	if first.Signature.Equal(other.Signature) {
		t.Errorf("different genesis transactions should have different signatures")
	}
}

func TestAccountChange_EncodingRoundTrips(t *testing.T) {
	tx := payment(pubKeyA, addrB, 100, 10, testBaseTime, "sig")
	row := AccountChange{
		Balance:    890,
		Reasons:    []Reason{TransactionReason(tx), FeeCredit(10)},
		PrevHeight: 7,
	}
	data, err := row.ToBytes()
	if err != nil {
		t.Fatalf("failed to encode change row; %s", err)
	}
	restored, err := AccountChangeFromBytes(data)
	if err != nil {
		t.Fatalf("failed to decode change row; %s", err)
	}
	if restored.Balance != row.Balance || restored.PrevHeight != row.PrevHeight {
		t.Errorf("decoded row differs, got %+v, want %+v", restored, row)
	}
	if len(restored.Reasons) != 2 {
		t.Fatalf("expected 2 reasons, got %d", len(restored.Reasons))
	}
	if restored.Reasons[0].Kind != TransactionReasonKind || !restored.Reasons[0].Tx.Signature.Equal(tx.Signature) {
		t.Errorf("transaction reason was not restored, got %+v", restored.Reasons[0])
	}
	if restored.Reasons[0].Tx.Sender != addrA || restored.Reasons[0].Tx.Amount != 100 {
		t.Errorf("transaction fields were not restored, got %+v", restored.Reasons[0].Tx)
	}
	if restored.Reasons[1].Kind != FeeCreditReasonKind || restored.Reasons[1].Fee != 10 {
		t.Errorf("fee credit reason was not restored, got %+v", restored.Reasons[1])
	}
}

func TestAccountChange_DecodingRejectsGarbage(t *testing.T) {
	if _, err := AccountChangeFromBytes([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Errorf("garbage should not decode")
	}
}
