package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFixedWidth(t *testing.T) {
	u16, err := ExtractU16([]byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), u16)

	u24, err := ExtractU24([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x030201), u24)

	u32, err := ExtractU32([]byte{0x01, 0x02, 0x03, 0x04})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x04030201), u32)

	_, err = ExtractU32([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestUnpack5IsBigEndian(t *testing.T) {
	v, err := Unpack5([]byte{0x00, 0x00, 0x00, 0x00, 0x01})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	v, err = Unpack5([]byte{0x00, 0x00, 0x00, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint64(256), v)
}

func TestCursorLenencInt(t *testing.T) {
	c := NewCursor([]byte{0x05})
	v, err := c.LenencInt()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), v)

	c = NewCursor([]byte{0xfc, 0x01, 0x01})
	v, err = c.LenencInt()
	require.NoError(t, err)
	assert.Equal(t, uint64(257), v)

	c = NewCursor([]byte{0xfd, 0x01, 0x01, 0x01})
	v, err = c.LenencInt()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x010101), v)

	c = NewCursor([]byte{0xfe, 1, 0, 0, 0, 0, 0, 0, 0})
	v, err = c.LenencInt()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}

func TestCursorLenencStr(t *testing.T) {
	c := NewCursor([]byte{0x03, 'f', 'o', 'o', 0xff})
	s, err := c.LenencStr()
	require.NoError(t, err)
	assert.Equal(t, "foo", string(s))
	assert.Equal(t, 1, c.Remaining())
}

func TestCursorNullTerminated(t *testing.T) {
	c := NewCursor([]byte("abc\x00def"))
	s, err := c.NullTerminated()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(s))
	rest, err := c.Bytes(3)
	require.NoError(t, err)
	assert.Equal(t, "def", string(rest))
}

func TestCursorShortBufferErrors(t *testing.T) {
	c := NewCursor([]byte{0x01})
	_, err := c.U32()
	assert.Error(t, err)

	c = NewCursor(nil)
	_, err = c.Byte()
	assert.Error(t, err)
}

func TestZigZagRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 2, -2, 64, -64, 1 << 20, -(1 << 20), 1 << 40, -(1 << 40)} {
		buf := ZigZagEncodeLong(nil, n)
		c := NewCursor(buf)
		got, err := c.ZigZagDecodeLong()
		require.NoError(t, err)
		assert.Equal(t, n, got, "zig-zag round trip for %d", n)
		assert.Equal(t, 0, c.Remaining())
	}
}

func TestZigZagSmallValuesAreOneByte(t *testing.T) {
	for _, n := range []int64{0, -1, 1, -2, 2, 63, -64} {
		buf := ZigZagEncodeLong(nil, n)
		assert.Len(t, buf, 1, "value %d should encode to a single byte", n)
	}
}
