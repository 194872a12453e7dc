package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTryWriteInt_ShortestForm(t *testing.T) {
	tests := []struct {
		name string
		v    int64
		want []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"fixint max", 127, []byte{0x7f}},
		{"uint8", 128, []byte{0xcc, 0x80}},
		{"neg fixint -1", -1, []byte{0xff}},
		{"neg fixint min", -32, []byte{0xe0}},
		{"int8", -33, []byte{0xd0, 0xdf}},
		{"uint16", 256, []byte{0xcd, 0x01, 0x00}},
		{"uint16 max", 65535, []byte{0xcd, 0xff, 0xff}},
		{"uint32", 65536, []byte{0xce, 0x00, 0x01, 0x00, 0x00}},
		{"int16", -129, []byte{0xd1, 0xff, 0x7f}},
		{"int32", -32769, []byte{0xd2, 0xff, 0xff, 0x7f, 0xff}},
		{"uint64", math.MaxInt64, []byte{0xcf, 0x7f, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"int64 min", math.MinInt64, []byte{0xd3, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 9)
			n, ok := TryWriteInt(buf, tt.v)
			require.True(t, ok)
			require.Equal(t, tt.want, buf[:n])
		})
	}
}

func TestTryWriteUint_ShortestForm(t *testing.T) {
	tests := []struct {
		v    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0xcc, 0x80}},
		{255, []byte{0xcc, 0xff}},
		{256, []byte{0xcd, 0x01, 0x00}},
		{65536, []byte{0xce, 0x00, 0x01, 0x00, 0x00}},
		{math.MaxUint32, []byte{0xce, 0xff, 0xff, 0xff, 0xff}},
		{math.MaxUint32 + 1, []byte{0xcf, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}},
		{math.MaxUint64, []byte{0xcf, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	}
	for _, tt := range tests {
		buf := make([]byte, 9)
		n, ok := TryWriteUint(buf, tt.v)
		require.True(t, ok)
		require.Equal(t, tt.want, buf[:n], "value %d", tt.v)
	}
}

func TestTryWriteInt_BufferTooSmall(t *testing.T) {
	// A 3-byte value into a 2-byte span must not partial-write.
	buf := []byte{0xaa, 0xbb}
	n, ok := TryWriteInt(buf, 256)
	require.False(t, ok)
	require.Zero(t, n)
	require.Equal(t, []byte{0xaa, 0xbb}, buf)
}

func TestTryWriteBool_And_Nil(t *testing.T) {
	buf := make([]byte, 1)

	n, ok := TryWriteBool(buf, true)
	require.True(t, ok)
	require.Equal(t, []byte{0xc3}, buf[:n])

	n, ok = TryWriteBool(buf, false)
	require.True(t, ok)
	require.Equal(t, []byte{0xc2}, buf[:n])

	n, ok = TryWriteNil(buf)
	require.True(t, ok)
	require.Equal(t, []byte{0xc0}, buf[:n])
}

func TestTryWriteFloat32_Canonical(t *testing.T) {
	buf := make([]byte, 5)
	n, ok := TryWriteFloat32(buf, 1.5)
	require.True(t, ok)
	require.Equal(t, []byte{0xca, 0x3f, 0xc0, 0x00, 0x00}, buf[:n])
}

func TestTryWriteStrHeader_Forms(t *testing.T) {
	buf := make([]byte, 5)

	n, ok := TryWriteStrHeader(buf, 3)
	require.True(t, ok)
	require.Equal(t, []byte{0xa3}, buf[:n])

	n, ok = TryWriteStrHeader(buf, 31)
	require.True(t, ok)
	require.Equal(t, []byte{0xbf}, buf[:n])

	n, ok = TryWriteStrHeader(buf, 32)
	require.True(t, ok)
	require.Equal(t, []byte{0xd9, 0x20}, buf[:n])

	n, ok = TryWriteStrHeader(buf, 256)
	require.True(t, ok)
	require.Equal(t, []byte{0xda, 0x01, 0x00}, buf[:n])

	n, ok = TryWriteStrHeader(buf, 70000)
	require.True(t, ok)
	require.Equal(t, []byte{0xdb, 0x00, 0x01, 0x11, 0x70}, buf[:n])
}

func TestTryWriteArrayMapHeaders(t *testing.T) {
	buf := make([]byte, 5)

	n, ok := TryWriteArrayHeader(buf, 3)
	require.True(t, ok)
	require.Equal(t, []byte{0x93}, buf[:n])

	n, ok = TryWriteArrayHeader(buf, 16)
	require.True(t, ok)
	require.Equal(t, []byte{0xdc, 0x00, 0x10}, buf[:n])

	n, ok = TryWriteArrayHeader(buf, 1<<16)
	require.True(t, ok)
	require.Equal(t, []byte{0xdd, 0x00, 0x01, 0x00, 0x00}, buf[:n])

	n, ok = TryWriteMapHeader(buf, 2)
	require.True(t, ok)
	require.Equal(t, []byte{0x82}, buf[:n])

	n, ok = TryWriteMapHeader(buf, 16)
	require.True(t, ok)
	require.Equal(t, []byte{0xde, 0x00, 0x10}, buf[:n])
}

func TestTryWriteExtHeader_Forms(t *testing.T) {
	buf := make([]byte, 6)

	// fixext widths carry no explicit length byte
	n, ok := TryWriteExtHeader(buf, 5, 8)
	require.True(t, ok)
	require.Equal(t, []byte{0xd7, 0x05}, buf[:n])

	n, ok = TryWriteExtHeader(buf, -1, 12)
	require.True(t, ok)
	require.Equal(t, []byte{0xc7, 0x0c, 0xff}, buf[:n])

	n, ok = TryWriteExtHeader(buf, 7, 300)
	require.True(t, ok)
	require.Equal(t, []byte{0xc8, 0x01, 0x2c, 0x07}, buf[:n])
}

func TestTryReadInt64_AcceptsNonShortest(t *testing.T) {
	// Zero as uint16: legal on the wire even though not shortest-form.
	v, size, res, ok := TryReadInt64([]byte{0xcd, 0x00, 0x00})
	require.Equal(t, Success, res)
	require.True(t, ok)
	require.Equal(t, 3, size)
	require.Zero(t, v)

	// -1 as int32.
	v, size, res, ok = TryReadInt64([]byte{0xd2, 0xff, 0xff, 0xff, 0xff})
	require.Equal(t, Success, res)
	require.True(t, ok)
	require.Equal(t, 5, size)
	require.Equal(t, int64(-1), v)

	// 200 as uint64.
	v, _, res, ok = TryReadInt64([]byte{0xcf, 0, 0, 0, 0, 0, 0, 0, 200})
	require.Equal(t, Success, res)
	require.True(t, ok)
	require.Equal(t, int64(200), v)
}

func TestTryReadInt64_Overflow(t *testing.T) {
	// MaxUint64 decodes fine as a token but can't widen into int64.
	_, size, res, ok := TryReadInt64([]byte{0xcf, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	require.Equal(t, Success, res)
	require.False(t, ok)
	require.Equal(t, 9, size)
}

func TestTryReadUint64_NegativeRejected(t *testing.T) {
	_, _, res, ok := TryReadUint64([]byte{0xff}) // -1 fixint
	require.Equal(t, Success, res)
	require.False(t, ok)
}

func TestTryReadInt64_Results(t *testing.T) {
	_, _, res, _ := TryReadInt64(nil)
	require.Equal(t, InsufficientBuffer, res)

	_, _, res, _ = TryReadInt64([]byte{0xc0}) // nil token is not an int
	require.Equal(t, TokenMismatch, res)

	_, _, res, _ = TryReadInt64([]byte{0xcd, 0x01}) // truncated uint16
	require.Equal(t, InsufficientBuffer, res)
}

func TestIntRoundTrip_BoundaryRegions(t *testing.T) {
	boundaries := []int64{
		0, 1, -1, 31, 32, -31, -32, -33,
		127, 128, 129, -127, -128, -129,
		255, 256, 32767, 32768, -32768, -32769,
		65535, 65536, math.MaxInt32, int64(math.MaxInt32) + 1,
		math.MinInt32, int64(math.MinInt32) - 1,
		math.MaxInt64, math.MinInt64,
	}
	buf := make([]byte, 9)
	for _, v := range boundaries {
		n, ok := TryWriteInt(buf, v)
		require.True(t, ok)
		got, size, res, fits := TryReadInt64(buf[:n])
		require.Equal(t, Success, res, "value %d", v)
		require.True(t, fits)
		require.Equal(t, n, size)
		require.Equal(t, v, got)
	}
}

func TestFloatRoundTrip(t *testing.T) {
	buf := make([]byte, 9)

	for _, v := range []float64{0, 1.5, -2.25, math.Pi, math.Inf(1), math.Inf(-1)} {
		n, ok := TryWriteFloat64(buf, v)
		require.True(t, ok)
		got, size, res := TryReadFloat64(buf[:n])
		require.Equal(t, Success, res)
		require.Equal(t, n, size)
		require.Equal(t, v, got) //nolint:testifylint // exact bit round-trip intended
	}

	n, ok := TryWriteFloat64(buf, math.NaN())
	require.True(t, ok)
	got, _, res := TryReadFloat64(buf[:n])
	require.Equal(t, Success, res)
	require.True(t, math.IsNaN(got))
}

func TestFloat32_NotPromoted(t *testing.T) {
	buf := make([]byte, 9)
	n, _ := TryWriteFloat64(buf, 1.5)
	_, _, res := TryReadFloat32(buf[:n])
	require.Equal(t, TokenMismatch, res)
}

func TestHeaderRoundTrips(t *testing.T) {
	buf := make([]byte, 6)

	for _, count := range []int{0, 1, 15, 16, 65535, 65536} {
		n, ok := TryWriteArrayHeader(buf, count)
		require.True(t, ok)
		got, size, res := TryReadArrayHeader(buf[:n])
		require.Equal(t, Success, res)
		require.Equal(t, n, size)
		require.Equal(t, count, got)
	}

	for _, byteLen := range []int{0, 31, 32, 255, 256, 65535, 65536} {
		n, ok := TryWriteStrHeader(buf, byteLen)
		require.True(t, ok)
		got, size, res := TryReadStringHeader(buf[:n])
		require.Equal(t, Success, res)
		require.Equal(t, n, size)
		require.Equal(t, byteLen, got)
	}

	for _, byteLen := range []int{0, 255, 256, 65536} {
		n, ok := TryWriteBinHeader(buf, byteLen)
		require.True(t, ok)
		got, size, res := TryReadBinHeader(buf[:n])
		require.Equal(t, Success, res)
		require.Equal(t, n, size)
		require.Equal(t, byteLen, got)
	}
}

func TestExtHeaderRoundTrips(t *testing.T) {
	buf := make([]byte, 6)
	for _, length := range []int{0, 1, 2, 3, 4, 8, 16, 17, 255, 256, 65536} {
		n, ok := TryWriteExtHeader(buf, 42, length)
		require.True(t, ok)
		typeCode, gotLen, size, res := TryReadExtensionHeader(buf[:n])
		require.Equal(t, Success, res)
		require.Equal(t, n, size)
		require.Equal(t, int8(42), typeCode)
		require.Equal(t, length, gotLen)
	}
}

func TestTimestampRoundTrips(t *testing.T) {
	tests := []struct {
		name        string
		sec         int64
		nsec        uint32
		payloadSize int
	}{
		{"seconds only", 1700000000, 0, 4},
		{"with nanos", 1700000000, 123456789, 8},
		{"34-bit seconds", 1 << 33, 1, 8},
		{"negative seconds", -1, 0, 12},
		{"beyond 34-bit", 1 << 35, 999999999, 12},
	}
	buf := make([]byte, 20)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := TryWriteTimestamp(buf, tt.sec, tt.nsec)
			require.True(t, ok)

			typeCode, length, headerSize, res := TryReadExtensionHeader(buf[:n])
			require.Equal(t, Success, res)
			require.Equal(t, ExtTimestamp, typeCode)
			require.Equal(t, tt.payloadSize, length)

			sec, nsec, res := TryReadTimestamp(buf[headerSize:n])
			require.Equal(t, Success, res)
			require.Equal(t, tt.sec, sec)
			require.Equal(t, tt.nsec, nsec)
		})
	}
}

func TestFixedTokenSize(t *testing.T) {
	fixed := map[byte]int{
		0x00: 1, 0x7f: 1, 0xe0: 1, 0xff: 1, // fixints
		0xc0: 1, 0xc2: 1, 0xc3: 1, // nil/bool
		0xcc: 2, 0xd0: 2,
		0xcd: 3, 0xd1: 3,
		0xce: 5, 0xd2: 5, 0xca: 5,
		0xcf: 9, 0xd3: 9, 0xcb: 9,
		0x80: 1, 0x90: 1, 0xa0: 1, // fixmap/fixarray headers and an empty fixstr count as 1
	}
	for code, want := range fixed {
		got, ok := FixedTokenSize(code)
		require.True(t, ok, "code 0x%02x", code)
		require.Equal(t, want, got, "code 0x%02x", code)
	}

	for _, code := range []byte{0xc4, 0xc7, 0xd4, 0xd9, 0xdc, 0xde} {
		_, ok := FixedTokenSize(code)
		require.False(t, ok, "code 0x%02x has a variable payload", code)
	}
}

func FuzzIntShortestForm(f *testing.F) {
	for _, seed := range []int64{0, 1, -1, 127, 128, -32, -33, 255, 256, 32767, -32768, 65535, 65536, math.MaxInt32, math.MinInt32, math.MaxInt64, math.MinInt64} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, v int64) {
		buf := make([]byte, 9)
		n, ok := TryWriteInt(buf, v)
		if !ok {
			t.Fatalf("TryWriteInt(%d) failed with a 9-byte span", v)
		}

		wantLen := 9
		switch {
		case v >= -32 && v <= 127:
			wantLen = 1
		case (v >= 0 && v <= math.MaxUint8) || (v >= math.MinInt8 && v < 0):
			wantLen = 2
		case (v >= 0 && v <= math.MaxUint16) || (v >= math.MinInt16 && v < 0):
			wantLen = 3
		case (v >= 0 && v <= math.MaxUint32) || (v >= math.MinInt32 && v < 0):
			wantLen = 5
		}
		if n != wantLen {
			t.Fatalf("TryWriteInt(%d) wrote %d bytes, want %d", v, n, wantLen)
		}

		got, size, res, fits := TryReadInt64(buf[:n])
		if res != Success || !fits || size != n || got != v {
			t.Fatalf("round-trip of %d failed: got %d (res=%v fits=%v size=%d)", v, got, res, fits, size)
		}
	})
}
