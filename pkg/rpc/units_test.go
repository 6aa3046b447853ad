package rpc_test

import (
	"encoding/json"
	"testing"

	"github.com/lightforgemedia/go-nanorpc/pkg/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawJSON(t *testing.T) {
	var v struct {
		A rpc.Raw `json:"a"`
		B rpc.Raw `json:"b"`
		C rpc.Raw `json:"c"`
	}
	err := json.Unmarshal([]byte(`{"a":"340282366920938463463374607431768211455","b":42,"c":null}`), &v)
	require.NoError(t, err)
	assert.Equal(t, "340282366920938463463374607431768211455", v.A.String())
	assert.Equal(t, "42", v.B.String())
	assert.True(t, v.C.IsZero())

	out, err := json.Marshal(v.B)
	require.NoError(t, err)
	assert.Equal(t, `"42"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`"1.5"`), &v.A))
}

func TestNanoRawConversion(t *testing.T) {
	one := rpc.NanoToRaw(decimal.NewFromInt(1))
	assert.Equal(t, "1000000000000000000000000000000", one.String())

	half := rpc.NanoToRaw(decimal.RequireFromString("0.5"))
	assert.Equal(t, "500000000000000000000000000000", half.String())

	raw, err := rpc.ParseRaw("1500000000000000000000000000000")
	require.NoError(t, err)
	assert.True(t, rpc.RawToNano(raw).Equal(decimal.RequireFromString("1.5")))
}

func TestLenientScalars(t *testing.T) {
	var v struct {
		N  rpc.Int          `json:"n"`
		M  rpc.Int          `json:"m"`
		B1 rpc.Bool         `json:"b1"`
		B2 rpc.Bool         `json:"b2"`
		B3 rpc.Bool         `json:"b3"`
		L  rpc.List[string] `json:"l"`
		D  rpc.Map[rpc.Raw] `json:"d"`
		E  rpc.Map[rpc.Raw] `json:"e"`
	}
	err := json.Unmarshal([]byte(`{"n":"12","m":7,"b1":"true","b2":"0","b3":true,"l":"","d":{"x":"5"},"e":""}`), &v)
	require.NoError(t, err)
	assert.Equal(t, rpc.Int(12), v.N)
	assert.Equal(t, rpc.Int(7), v.M)
	assert.True(t, bool(v.B1))
	assert.False(t, bool(v.B2))
	assert.True(t, bool(v.B3))
	assert.Nil(t, v.L)
	assert.Equal(t, "5", v.D["x"].String())
	assert.Nil(t, v.E)

	var b rpc.Bool
	assert.Error(t, json.Unmarshal([]byte(`"maybe"`), &b))
}
