package msgpax

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/msgpax/convert"
	"github.com/arloliu/msgpax/errs"
	"github.com/arloliu/msgpax/internal/shapetest"
	"github.com/arloliu/msgpax/payload"
	"github.com/arloliu/msgpax/shape"
)

type event struct {
	Name  string
	Count int64
}

func eventShape() *shapetest.ObjectShape {
	return shapetest.Object(reflect.TypeOf(&event{}),
		shapetest.Prop{Name: "name", Field: "Name", Shape: shapetest.Opaque(reflect.TypeOf(""))},
		shapetest.Prop{Name: "count", Field: "Count", Shape: shapetest.Opaque(reflect.TypeOf(int64(0)))},
	)
}

func TestSerializer_RoundTrip(t *testing.T) {
	ser := NewSerializer()
	s := eventShape()

	data, err := ser.Marshal(&event{Name: "boot", Count: 3}, s, nil)
	require.NoError(t, err)

	got, err := ser.Deserialize(data, s, nil)
	require.NoError(t, err)
	require.Equal(t, &event{Name: "boot", Count: 3}, got)
}

func TestSerializer_SerializeToWriter(t *testing.T) {
	ser := NewSerializer()
	s := eventShape()

	var buf bytes.Buffer
	require.NoError(t, ser.Serialize(&buf, &event{Name: "x", Count: 1}, s, nil))
	require.Positive(t, buf.Len())

	got, err := ser.Deserialize(buf.Bytes(), s, nil)
	require.NoError(t, err)
	require.Equal(t, &event{Name: "x", Count: 1}, got)
}

func TestSerializer_DeserializeFrom_ChunkedSource(t *testing.T) {
	ser := NewSerializer()
	s := eventShape()

	data, err := ser.Marshal(&event{Name: "streamed", Count: 42}, s, nil)
	require.NoError(t, err)

	// One byte per Read call: the streaming reader must suspend and resume
	// on every refill.
	got, err := ser.DeserializeFrom(&trickleReader{data: data}, s, nil)
	require.NoError(t, err)
	require.Equal(t, &event{Name: "streamed", Count: 42}, got)
}

// trickleReader yields one byte per Read call.
type trickleReader struct {
	data []byte
	off  int
}

func (r *trickleReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.off]
	r.off++
	return 1, nil
}

func TestSerializer_DeserializeEnumerable(t *testing.T) {
	ser := NewSerializer()
	s := eventShape()

	// Three values back to back, no framing.
	var stream bytes.Buffer
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, ser.Serialize(&stream, &event{Name: "e", Count: i}, s, nil))
	}

	var decoded []*event
	for v, err := range ser.DeserializeEnumerable(bytes.NewReader(stream.Bytes()), s, nil) {
		require.NoError(t, err)
		decoded = append(decoded, v.(*event))
	}

	require.Len(t, decoded, 3)
	for i, e := range decoded {
		require.Equal(t, int64(i+1), e.Count)
	}
}

func TestSerializer_DeserializeEnumerable_EarlyBreak(t *testing.T) {
	ser := NewSerializer()
	s := eventShape()

	var stream bytes.Buffer
	for i := int64(0); i < 5; i++ {
		require.NoError(t, ser.Serialize(&stream, &event{Name: "e", Count: i}, s, nil))
	}

	n := 0
	for _, err := range ser.DeserializeEnumerable(bytes.NewReader(stream.Bytes()), s, nil) {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	require.Equal(t, 2, n)
}

func TestSerializer_DepthGuard(t *testing.T) {
	ser := NewSerializer()

	selfSlice := shapetest.Slice(reflect.TypeOf(deepSlice{}), nil)
	selfSlice.SetElement(selfSlice)

	nested := func(n int) []byte {
		out := make([]byte, n)
		for i := 0; i < n-1; i++ {
			out[i] = 0x91
		}
		out[n-1] = 0x90
		return out
	}

	okCtx, err := NewSerializationContext(convert.WithMaxDepth(16))
	require.NoError(t, err)
	_, err = ser.Deserialize(nested(16), selfSlice, okCtx)
	require.NoError(t, err)

	failCtx, err := NewSerializationContext(convert.WithMaxDepth(16))
	require.NoError(t, err)
	_, err = ser.Deserialize(nested(17), selfSlice, failCtx)
	require.ErrorIs(t, err, errs.ErrDepthExceeded)
}

type deepSlice []deepSlice

func TestSerializer_Cancellation(t *testing.T) {
	ser := NewSerializer()
	s := eventShape()

	data, err := ser.Marshal(&event{Name: "x", Count: 1}, s, nil)
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	ctx, err := NewSerializationContext(convert.WithCancellationToken(canceled))
	require.NoError(t, err)

	_, err = ser.Deserialize(data, s, ctx)
	require.ErrorIs(t, err, errs.ErrOperationCanceled)

	// The streaming path reports cancellation too, not end-of-stream.
	ctx2, err := NewSerializationContext(convert.WithCancellationToken(canceled))
	require.NoError(t, err)
	_, err = ser.DeserializeFrom(&trickleReader{data: data}, s, ctx2)
	require.ErrorIs(t, err, errs.ErrOperationCanceled)
	require.NotErrorIs(t, err, errs.ErrEndOfStream)
}

func TestSerializer_RegisterUnion(t *testing.T) {
	ser := NewSerializer()

	type circle struct{ R int64 }
	type rect struct{ W, H int64 }
	type anyShapeBase struct{ Tag string }

	base := shapetest.Object(reflect.TypeOf(&anyShapeBase{}),
		shapetest.Prop{Name: "tag", Field: "Tag", Shape: shapetest.Opaque(reflect.TypeOf(""))},
	)
	circleShape := shapetest.Object(reflect.TypeOf(&circle{}),
		shapetest.Prop{Name: "r", Field: "R", Shape: shapetest.Opaque(reflect.TypeOf(int64(0)))},
	)
	rectShape := shapetest.Object(reflect.TypeOf(&rect{}),
		shapetest.Prop{Name: "w", Field: "W", Shape: shapetest.Opaque(reflect.TypeOf(int64(0)))},
		shapetest.Prop{Name: "h", Field: "H", Shape: shapetest.Opaque(reflect.TypeOf(int64(0)))},
	)

	require.NoError(t, ser.RegisterUnion(base,
		shape.UnionCase{Shape: circleShape, IntAlias: 1, HasIntAlias: true},
		shape.UnionCase{Shape: rectShape, StringAlias: "rect"},
	))

	data, err := ser.Marshal(&circle{R: 4}, base, nil)
	require.NoError(t, err)

	got, err := ser.Deserialize(data, base, nil)
	require.NoError(t, err)
	require.Equal(t, &circle{R: 4}, got)
}

func TestSerializer_RegisterUnion_DuplicateAlias(t *testing.T) {
	ser := NewSerializer()

	type circle struct{ R int64 }
	type anyShapeBase struct{ Tag string }

	base := shapetest.Object(reflect.TypeOf(&anyShapeBase{}),
		shapetest.Prop{Name: "tag", Field: "Tag", Shape: shapetest.Opaque(reflect.TypeOf(""))},
	)
	circleShape := shapetest.Object(reflect.TypeOf(&circle{}),
		shapetest.Prop{Name: "r", Field: "R", Shape: shapetest.Opaque(reflect.TypeOf(int64(0)))},
	)

	err := ser.RegisterUnion(base,
		shape.UnionCase{Shape: circleShape, IntAlias: 1, HasIntAlias: true},
		shape.UnionCase{Shape: circleShape, IntAlias: 1, HasIntAlias: true},
	)
	require.ErrorIs(t, err, errs.ErrConfigurationError)
}

func TestSerializer_ReferencePreservationEndToEnd(t *testing.T) {
	ser := NewSerializer()

	type link struct {
		Label string
		Next  *link
	}
	obj := shapetest.Object(reflect.TypeOf(&link{}),
		shapetest.Prop{Name: "label", Field: "Label", Shape: shapetest.Opaque(reflect.TypeOf(""))},
	)
	obj.AddProp(shapetest.Prop{Name: "next", Field: "Next", Shape: shapetest.Pointer(reflect.TypeOf(&link{}), obj)})

	a := &link{Label: "a"}
	b := &link{Label: "b", Next: a}
	a.Next = b

	ctx, err := NewSerializationContext(convert.WithPreserveReferences(convert.PreserveReferencesAllowCycles))
	require.NoError(t, err)

	data, err := ser.Marshal(a, obj, ctx)
	require.NoError(t, err)

	ctx2, err := NewSerializationContext(convert.WithPreserveReferences(convert.PreserveReferencesAllowCycles))
	require.NoError(t, err)
	got, err := ser.Deserialize(data, obj, ctx2)
	require.NoError(t, err)

	head := got.(*link)
	require.Equal(t, "a", head.Label)
	require.Equal(t, "b", head.Next.Label)
	require.Same(t, head, head.Next.Next)
}

func TestSerializer_LargePayloadCompression(t *testing.T) {
	ser := NewSerializer()
	s := eventShape()

	big := strings.Repeat("telemetry ", 200)
	ctx, err := NewSerializationContext(convert.WithLargePayloadCompression(64, payload.TypeS2))
	require.NoError(t, err)

	data, err := ser.Marshal(&event{Name: big, Count: 1}, s, ctx)
	require.NoError(t, err)

	// The compressed form must be dramatically smaller than the raw string.
	require.Less(t, len(data), len(big)/2)

	got, err := ser.Deserialize(data, s, nil)
	require.NoError(t, err)
	require.Equal(t, big, got.(*event).Name)
}

func TestSerializer_NamingPolicyOption(t *testing.T) {
	ser := NewSerializer(WithNamingPolicy(strings.ToUpper))
	s := eventShape()

	data, err := ser.Marshal(&event{Name: "n", Count: 2}, s, nil)
	require.NoError(t, err)
	require.Contains(t, string(data), "COUNT")

	got, err := ser.Deserialize(data, s, nil)
	require.NoError(t, err)
	require.Equal(t, &event{Name: "n", Count: 2}, got)
}

func TestSerializer_Freeze(t *testing.T) {
	ser := NewSerializer()
	s := eventShape()

	_, err := ser.Marshal(&event{Name: "warm", Count: 1}, s, nil)
	require.NoError(t, err)

	ser.Freeze()

	data, err := ser.Marshal(&event{Name: "frozen", Count: 2}, s, nil)
	require.NoError(t, err)
	got, err := ser.Deserialize(data, s, nil)
	require.NoError(t, err)
	require.Equal(t, &event{Name: "frozen", Count: 2}, got)
}

func TestSerializer_DeserializeEnumerable_MidValueEOF(t *testing.T) {
	ser := NewSerializer()
	s := eventShape()

	data, err := ser.Marshal(&event{Name: "cut", Count: 1}, s, nil)
	require.NoError(t, err)

	truncated := data[:len(data)-1]
	sawError := false
	for _, err := range ser.DeserializeEnumerable(bytes.NewReader(truncated), s, nil) {
		require.Error(t, err)
		require.ErrorIs(t, err, errs.ErrEndOfStream)
		sawError = true
	}
	require.True(t, sawError, "a mid-value EOF must surface as an error")
}
