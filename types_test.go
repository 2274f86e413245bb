package x402f

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestAmountToBigInt(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int
		want     string
		wantErr  bool
	}{
		{"whole number", "1", 6, "1000000", false},
		{"fractional", "1.5", 6, "1500000", false},
		{"max precision", "0.000001", 6, "1", false},
		{"zero", "0", 6, "0", false},
		{"garbage", "not-a-number", 6, "", true},
		{"over precision loses no digits but rejects sub-atomic", "0.0000001", 6, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AmountToBigInt(tt.amount, tt.decimals)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want, _ := new(big.Int).SetString(tt.want, 10)
			if got.Cmp(want) != 0 {
				t.Errorf("AmountToBigInt(%q, %d) = %s, want %s", tt.amount, tt.decimals, got, want)
			}
		})
	}
}

func TestBigIntToAmount(t *testing.T) {
	tests := []struct {
		name     string
		value    *big.Int
		decimals int
		want     string
	}{
		{"whole", big.NewInt(1000000), 6, "1.000000"},
		{"fractional", big.NewInt(1500000), 6, "1.500000"},
		{"nil is zero", nil, 6, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BigIntToAmount(tt.value, tt.decimals); got != tt.want {
				t.Errorf("BigIntToAmount() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAmountRoundTrip(t *testing.T) {
	amounts := []string{"1", "0.5", "1000000.000001", "0"}
	for _, amount := range amounts {
		atomic, err := AmountToBigInt(amount, 6)
		if err != nil {
			t.Fatalf("AmountToBigInt(%q): %v", amount, err)
		}
		back := BigIntToAmount(atomic, 6)
		atomic2, err := AmountToBigInt(back, 6)
		if err != nil {
			t.Fatalf("AmountToBigInt(%q) round trip: %v", back, err)
		}
		if atomic.Cmp(atomic2) != 0 {
			t.Errorf("round trip mismatch for %q: %s != %s", amount, atomic, atomic2)
		}
	}
}

func TestPaymentPayloadJSONRoundTrip(t *testing.T) {
	p := PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Payload: EVMPayload{
			Signature: "0xabc123",
			Authorization: Authorization{
				From:        "0xFrom",
				To:          "0xTo",
				Value:       "1000000",
				ValidAfter:  "1700000000",
				ValidBefore: "1700000300",
				Nonce:       "0xnonce",
			},
			Salt:           "0xsalt",
			PayTo:          "0xPayTo",
			FacilitatorFee: "10000",
			Hook:           "0xHook",
		},
	}

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got PaymentPayload
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Payload.Authorization.Nonce != p.Payload.Authorization.Nonce {
		t.Errorf("round trip lost Authorization.Nonce: got %q", got.Payload.Authorization.Nonce)
	}
	if got.Payload.Salt != p.Payload.Salt {
		t.Errorf("round trip lost Salt: got %q", got.Payload.Salt)
	}
}
