package codec

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opledger/internal/model"
)

func TestPayload(t *testing.T) {
	v, err := EncodePayload(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = EncodePayload(model.Payload{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)

	p, err := DecodePayload([]byte(`{"a":1,"b":{"c":"d"}}`))
	require.NoError(t, err)
	assert.Equal(t, float64(1), p["a"])
	assert.Equal(t, map[string]any{"c": "d"}, p["b"])

	p, err = DecodePayload(nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = DecodePayload([]byte(`[1,2]`))
	assert.ErrorContains(t, err, "decode payload")

	_, err = EncodePayload(model.Payload{"ch": make(chan int)})
	assert.ErrorContains(t, err, "encode payload")
}

func TestNullables(t *testing.T) {
	assert.Nil(t, NullInt(sql.NullInt64{}))
	assert.Equal(t, 503, *NullInt(sql.NullInt64{Int64: 503, Valid: true}))
	assert.Nil(t, NullString(sql.NullString{}))
	assert.Equal(t, "x", *NullString(sql.NullString{String: "x", Valid: true}))

	code, msg := 201, "boom"
	assert.Nil(t, IntArg(nil))
	assert.Equal(t, int64(201), IntArg(&code))
	assert.Nil(t, StringArg(nil))
	assert.Equal(t, "boom", StringArg(&msg))
}
