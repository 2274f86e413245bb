package verifier

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// erc6492Magic is the fixed suffix ERC-6492 appends to a wrapped signature
// so a verifier can recognize it without any out-of-band signal.
var erc6492Magic = []byte{
	0x64, 0x92, 0x64, 0x92, 0x64, 0x92, 0x64, 0x92,
	0x64, 0x92, 0x64, 0x92, 0x64, 0x92, 0x64, 0x92,
	0x64, 0x92, 0x64, 0x92, 0x64, 0x92, 0x64, 0x92,
	0x64, 0x92, 0x64, 0x92, 0x64, 0x92, 0x64, 0x92,
}

var unwrapArgs = mustArgs("address", "bytes", "bytes")

func mustArgs(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("verifier: bad abi type %q: %v", t, err))
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

// UnwrapERC6492 strips the ERC-6492 wrapper if present, returning the inner
// 65-byte ECDSA signature plus a flag reporting whether a wrapper was
// present (spec §4.9 "Signature unwrap"); the Verifier discards the flag. sigHex may be an unwrapped
// plain signature, in which case this is a no-op.
func UnwrapERC6492(sigHex string) (sig []byte, wasWrapped bool, err error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return nil, false, fmt.Errorf("verifier: invalid signature hex: %w", err)
	}

	if len(raw) < 32 || !bytes.Equal(raw[len(raw)-32:], erc6492Magic) {
		return raw, false, nil
	}

	body := raw[:len(raw)-32]
	values, err := unwrapArgs.Unpack(body)
	if err != nil {
		return nil, false, fmt.Errorf("verifier: erc-6492 unwrap: %w", err)
	}
	inner, ok := values[2].([]byte)
	if !ok {
		return nil, false, fmt.Errorf("verifier: erc-6492 unwrap: unexpected inner signature type")
	}
	return inner, true, nil
}
