// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package amount

import (
	"math"
	"testing"
)

func TestAmount_New(t *testing.T) {
	tests := []struct {
		name      string
		args      []uint64
		want      Amount
		wantPanic bool
	}{
		{"No arguments", []uint64{}, Amount{[4]uint64{0, 0, 0, 0}}, false},
		{"One argument", []uint64{1}, Amount{[4]uint64{1, 0, 0, 0}}, false},
		{"Two arguments", []uint64{1, 2}, Amount{[4]uint64{2, 1, 0, 0}}, false},
		{"Four arguments", []uint64{1, 2, 3, 4}, Amount{[4]uint64{4, 3, 2, 1}}, false},
		{"Too many arguments", []uint64{1, 2, 3, 4, 5}, Amount{}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					if !test.wantPanic {
						t.Errorf("New() panicked unexpectedly: %v", r)
					}
				} else if test.wantPanic {
					t.Errorf("New() did not panic")
				}
			}()
			if got, want := New(test.args...), test.want; got != want {
				t.Errorf("wrong result, got %v, want %v", got, want)
			}
		})
	}
}

func TestAmount_AddAndSub(t *testing.T) {
	a := New(100)
	b := New(42)
	if got, want := Add(a, b), New(142); got != want {
		t.Errorf("wrong sum, got %v, want %v", got, want)
	}
	if got, want := Sub(a, b), New(58); got != want {
		t.Errorf("wrong difference, got %v, want %v", got, want)
	}
}

func TestAmount_AddOverflow(t *testing.T) {
	if _, overflow := AddOverflow(New(1), New(2)); overflow {
		t.Errorf("small sum should not overflow")
	}
	if _, overflow := AddOverflow(Max(), New(1)); !overflow {
		t.Errorf("adding to the maximum should overflow")
	}
}

func TestAmount_SubUnderflow(t *testing.T) {
	if _, underflow := SubUnderflow(New(2), New(1)); underflow {
		t.Errorf("small difference should not underflow")
	}
	if _, underflow := SubUnderflow(New(1), New(2)); !underflow {
		t.Errorf("subtracting below zero should underflow")
	}
}

func TestAmount_SumsBeyond64BitsAreRepresentable(t *testing.T) {
	sum := Add(New(math.MaxUint64), New(math.MaxUint64))
	if sum.IsUint64() {
		t.Errorf("the sum should exceed 64 bits")
	}
	if got, want := Sub(sum, New(math.MaxUint64)), New(math.MaxUint64); got != want {
		t.Errorf("wrong difference, got %v, want %v", got, want)
	}
}

func TestAmount_Uint64Conversion(t *testing.T) {
	a := New(42)
	if !a.IsUint64() || a.Uint64() != 42 {
		t.Errorf("expected 42, got %v", a)
	}
	if got := a.ToBig().Uint64(); got != 42 {
		t.Errorf("expected big.Int 42, got %d", got)
	}
}
