package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelimitedRecords(t *testing.T) {
	var e Encoder
	e.Uint(1, 300)
	e.Bytes(2, []byte("tile"))
	stream := AppendDelimited(nil, e.Encode())
	stream = AppendDelimited(stream, nil)

	msg, rest, err := ReadDelimited(stream)
	require.NoError(t, err)
	var fields []Field
	require.NoError(t, Walk(msg, func(f Field) error {
		fields = append(fields, f)
		return nil
	}))
	require.Len(t, fields, 2)
	assert.Equal(t, uint64(300), fields[0].Varint)
	assert.Equal(t, []byte("tile"), fields[1].Bytes)

	msg, rest, err = ReadDelimited(rest)
	require.NoError(t, err)
	assert.Empty(t, msg)
	assert.Empty(t, rest)
}

func TestReadDelimitedTruncated(t *testing.T) {
	_, _, err := ReadDelimited([]byte{5, 1})
	assert.ErrorIs(t, err, ErrMalformed)
}
