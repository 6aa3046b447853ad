package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// rawPerNano is the number of decimal places between nano and raw: 1 nano = 10^30 raw.
const rawPerNano = 30

// Raw is an integer amount in raw, the smallest unit. It decodes from a JSON string or number
// and encodes as a string. The zero value is 0. A Raw is never mutated after construction.
type Raw struct {
	v *big.Int
}

func NewRaw(n int64) Raw {
	return Raw{v: big.NewInt(n)}
}

// RawFromBig copies b.
func RawFromBig(b *big.Int) Raw {
	if b == nil {
		return Raw{}
	}
	return Raw{v: new(big.Int).Set(b)}
}

// ParseRaw parses a base-10 integer.
func ParseRaw(s string) (Raw, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Raw{}, fmt.Errorf("invalid raw amount %q", s)
	}
	return Raw{v: v}, nil
}

// BigInt returns a copy of the value.
func (r Raw) BigInt() *big.Int {
	if r.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(r.v)
}

func (r Raw) String() string {
	if r.v == nil {
		return "0"
	}
	return r.v.String()
}

func (r Raw) Cmp(o Raw) int {
	return r.BigInt().Cmp(o.BigInt())
}

func (r Raw) Equal(o Raw) bool { return r.Cmp(o) == 0 }

func (r Raw) IsZero() bool { return r.v == nil || r.v.Sign() == 0 }

func (r Raw) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Raw) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = Raw{}
		return nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	parsed, err := ParseRaw(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// NanoToRaw converts a nano amount to raw. Digits beyond raw precision are truncated.
func NanoToRaw(nano decimal.Decimal) Raw {
	return Raw{v: nano.Shift(rawPerNano).BigInt()}
}

// RawToNano converts a raw amount to nano without loss.
func RawToNano(r Raw) decimal.Decimal {
	return decimal.NewFromBigInt(r.BigInt(), -rawPerNano)
}
