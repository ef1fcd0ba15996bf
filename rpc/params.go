package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"deedescrow/crypto"
)

func decodeParams(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return invalidParams("parameter object required", nil)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return invalidParams("invalid parameter object", err.Error())
	}
	return nil
}

func parseIdentityParam(field, value string) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, invalidParams(field+" is required", nil)
	}
	addr, err := crypto.ParseIdentity(value)
	if err != nil {
		return [20]byte{}, invalidParams("invalid "+field, err.Error())
	}
	return addr, nil
}

// ParseAmount parses a base-10 integer amount. Scientific shorthand such as
// "10e18" is accepted when it denotes an integer.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	if amount, ok := new(big.Int).SetString(trimmed, 10); ok {
		return amount, nil
	}
	mantissa, exponent, found := strings.Cut(strings.ToLower(trimmed), "e")
	if !found {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	base, ok := new(big.Int).SetString(mantissa, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	exp, ok := new(big.Int).SetString(exponent, 10)
	if !ok || exp.Sign() < 0 || exp.Cmp(big.NewInt(77)) > 0 {
		return nil, fmt.Errorf("invalid amount exponent %q", value)
	}
	return base.Mul(base, new(big.Int).Exp(big.NewInt(10), exp, nil)), nil
}

func parseAmountParam(field, value string) (*big.Int, error) {
	amount, err := ParseAmount(value)
	if err != nil {
		return nil, invalidParams("invalid "+field, err.Error())
	}
	return amount, nil
}
