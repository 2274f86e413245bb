package commitment

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func sampleParams() Params {
	salt, _ := GenerateSalt()
	return Params{
		ChainID:        84532,
		Router:         common.HexToAddress("0xRouter"),
		Token:          common.HexToAddress("0xToken"),
		From:           common.HexToAddress("0xFrom"),
		Value:          big.NewInt(1_000_000),
		ValidAfter:     big.NewInt(1_700_000_000),
		ValidBefore:    big.NewInt(1_700_000_300),
		Salt:           salt,
		PayTo:          common.HexToAddress("0xPayTo"),
		FacilitatorFee: big.NewInt(10_000),
		Hook:           common.HexToAddress("0xHook"),
		HookData:       []byte("split:50:50"),
	}
}

func TestComputeCommitment_Deterministic(t *testing.T) {
	p := sampleParams()
	c1, err := ComputeCommitment(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c2, err := ComputeCommitment(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c1 != c2 {
		t.Error("ComputeCommitment is not deterministic for identical params")
	}
}

// TestCommitmentBinding is the spec §8 "Commitment binding" property:
// mutating any field must change the commitment.
func TestCommitmentBinding(t *testing.T) {
	base := sampleParams()
	baseCommit, err := ComputeCommitment(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mutations := map[string]func(*Params){
		"payTo":          func(p *Params) { p.PayTo = common.HexToAddress("0xDifferent") },
		"facilitatorFee": func(p *Params) { p.FacilitatorFee = big.NewInt(999) },
		"value":          func(p *Params) { p.Value = big.NewInt(2_000_000) },
		"hook":           func(p *Params) { p.Hook = common.HexToAddress("0xOtherHook") },
		"hookData":       func(p *Params) { p.HookData = []byte("different") },
		"validBefore":    func(p *Params) { p.ValidBefore = big.NewInt(1_800_000_000) },
		"chainID":        func(p *Params) { p.ChainID = 1 },
		"router":         func(p *Params) { p.Router = common.HexToAddress("0xOtherRouter") },
		"token":          func(p *Params) { p.Token = common.HexToAddress("0xOtherToken") },
		"from":           func(p *Params) { p.From = common.HexToAddress("0xOtherFrom") },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			mutated := sampleParams()
			mutated.Salt = base.Salt
			mutate(&mutated)
			got, err := ComputeCommitment(mutated)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == baseCommit {
				t.Errorf("mutating %s did not change the commitment", name)
			}
		})
	}
}

func TestVerifyCommitment(t *testing.T) {
	p := sampleParams()
	nonce, err := ComputeCommitment(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := VerifyCommitment(nonce, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected VerifyCommitment to accept the matching nonce")
	}

	tampered := p
	tampered.PayTo = common.HexToAddress("0xEve")
	ok, err = VerifyCommitment(nonce, tampered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected VerifyCommitment to reject a tampered payTo")
	}
}

// TestComputeCommitment_RejectsNegativeValues guards the tight-packing
// encoder: big.Int.Bytes() discards the sign, so a negative field packed
// without this check would silently encode as its absolute value instead
// of failing.
func TestComputeCommitment_RejectsNegativeValues(t *testing.T) {
	cases := map[string]func(*Params){
		"value":          func(p *Params) { p.Value = big.NewInt(-1) },
		"validAfter":     func(p *Params) { p.ValidAfter = big.NewInt(-1) },
		"validBefore":    func(p *Params) { p.ValidBefore = big.NewInt(-1) },
		"facilitatorFee": func(p *Params) { p.FacilitatorFee = big.NewInt(-1) },
		"chainID":        func(p *Params) { p.ChainID = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := sampleParams()
			mutate(&p)
			if _, err := ComputeCommitment(p); err == nil {
				t.Errorf("expected an error for negative %s", name)
			}
		})
	}
}

func TestGenerateSalt_Random(t *testing.T) {
	a, err := GenerateSalt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := GenerateSalt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Error("two consecutive salts collided: rand source looks broken")
	}
}

func TestContextKey_Deterministic(t *testing.T) {
	from := common.HexToAddress("0xFrom")
	token := common.HexToAddress("0xToken")
	nonce, _ := GenerateSalt()

	k1 := ContextKey(from, token, nonce)
	k2 := ContextKey(from, token, nonce)
	if k1 != k2 {
		t.Error("ContextKey is not deterministic")
	}

	k3 := ContextKey(common.HexToAddress("0xOther"), token, nonce)
	if k1 == k3 {
		t.Error("ContextKey did not change with a different from address")
	}
}
