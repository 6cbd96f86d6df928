package ipc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeHeader(t *testing.T) {
	tests := []struct {
		name      string
		cmd       uint16
		normal    uint8
		translate uint8
		want      uint32
	}{
		{"register client", 0x1, 0, 2, 0x10002},
		{"enable notification", 0x2, 0, 0, 0x20000},
		{"register service", 0x3, 4, 0, 0x30100},
		{"unregister service", 0x4, 3, 0, 0x400C0},
		{"get service handle", 0x5, 4, 0, 0x50100},
		{"register port", 0x6, 3, 2, 0x600C2},
		{"unregister port", 0x7, 3, 0, 0x700C0},
		{"get port", 0x8, 4, 0, 0x80100},
		{"subscribe", 0x9, 1, 0, 0x90040},
		{"unsubscribe", 0xA, 1, 0, 0xA0040},
		{"receive notification", 0xB, 0, 0, 0xB0000},
		{"publish to subscriber", 0xC, 2, 0, 0xC0080},
		{"publish and get subscriber", 0xD, 1, 0, 0xD0040},
		{"is service registered", 0xE, 3, 0, 0xE00C0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := MakeHeader(tt.cmd, tt.normal, tt.translate)
			assert.Equal(t, tt.want, uint32(h))
			assert.Equal(t, tt.cmd, h.CommandID())
			assert.Equal(t, int(tt.normal), h.Normal())
			assert.Equal(t, int(tt.translate), h.Translate())
		})
	}
}

func TestDescriptors(t *testing.T) {
	assert.Equal(t, uint32(0x20), DescCurProcessHandle())
	assert.Equal(t, uint32(0x0), DescSharedHandles(1))
	assert.Equal(t, uint32(0x04000000), DescSharedHandles(2))
	assert.Equal(t, uint32(0x10), DescMoveHandles(1))
	assert.Equal(t, uint32(0x40008), DescBuffer(0x4000, 0))
	assert.Equal(t, uint32(0x4000A), DescBuffer(0x4000, BufferR))
	assert.Equal(t, uint32(0x4000C), DescBuffer(0x4000, BufferW))
	assert.Equal(t, uint32(0x100002|0x400), DescStaticBuffer(0x40, 1))

	assert.Equal(t, DescHandles, KindOf(DescCurProcessHandle()))
	assert.Equal(t, DescHandles, KindOf(DescMoveHandles(3)))
	assert.Equal(t, DescMapped, KindOf(DescBuffer(16, BufferRW)))
	assert.Equal(t, DescStatic, KindOf(DescStaticBuffer(16, 0)))
	assert.Equal(t, 3, HandleCount(DescMoveHandles(3)))
	assert.True(t, IsMove(DescMoveHandles(1)))
	assert.False(t, IsMove(DescSharedHandles(1)))
	assert.True(t, IsCurProcess(DescCurProcessHandle()))
}

func TestNameRoundTrip(t *testing.T) {
	names := []string{"", "a", "srv:", "fs:USER", "http:C", "APT:U", "12345678"}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			var buf CommandBuffer
			require.NoError(t, NewBuilder(&buf, 0x4).Name(name).Finish())

			assert.Equal(t, uint32(len(name)), buf.Words[3])
			got, err := NewReader(&buf).Name(1)
			require.NoError(t, err)
			assert.Equal(t, name, got)
		})
	}
}

func TestNameTruncation(t *testing.T) {
	tests := []string{"123456789", "abcdefghijklmnop", strings.Repeat("x", 40)}

	for _, name := range tests {
		var buf CommandBuffer
		require.NoError(t, NewBuilder(&buf, 0x4).Name(name).Finish())

		assert.Equal(t, uint32(len(name)), buf.Words[3])
		var short CommandBuffer
		require.NoError(t, NewBuilder(&short, 0x4).Name(name[:NameSize]).Finish())
		assert.Equal(t, short.Words[1:3], buf.Words[1:3])
		_, err := NewReader(&buf).Name(1)
		assert.Error(t, err)
	}
}

func TestNameIsLittleEndian(t *testing.T) {
	var buf CommandBuffer
	require.NoError(t, NewBuilder(&buf, 0x5).Name("fs:USER").Word(0).Finish())

	assert.Equal(t, uint32(0x50100), buf.Words[0])
	assert.Equal(t, uint32(0x553A7366), buf.Words[1]) // "fs:U"
	assert.Equal(t, uint32(0x00524553), buf.Words[2]) // "SER\0"
	assert.Equal(t, uint32(7), buf.Words[3])
}

func TestNameDecodeRejectsBadLength(t *testing.T) {
	var buf CommandBuffer
	buf.Words[3] = 9
	_, err := NewReader(&buf).Name(1)
	assert.Error(t, err)
}

func TestNameEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"http", "http", true},
		{"http", "http:C", false},
		{"12345678", "123456789", true},
		{"", "", true},
		{"fs:USER", "fs:LDR", false},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, MakeName(tt.a).Equal(MakeName(tt.b)))
		})
	}
}

func TestBuilderCountsMatchPayload(t *testing.T) {
	var buf CommandBuffer
	err := NewBuilder(&buf, 0x6).Name("port").SharedHandles(0x1234).Finish()
	require.NoError(t, err)

	h := buf.Header()
	assert.Equal(t, uint32(0x600C2), uint32(h))
	assert.Equal(t, DescSharedHandles(1), buf.Words[4])
	assert.Equal(t, uint32(0x1234), buf.Words[5])
}

func TestBuilderRejectsNormalAfterTranslate(t *testing.T) {
	var buf CommandBuffer
	err := NewBuilder(&buf, 0x1).CurrentProcess().Word(7).Finish()
	assert.ErrorIs(t, err, ErrNormalAfterXlt)
}

func TestBuilderOverflow(t *testing.T) {
	var buf CommandBuffer
	b := NewBuilder(&buf, 0x1)
	for i := 0; i < MaxWords; i++ {
		b.Word(uint32(i))
	}
	assert.ErrorIs(t, b.Finish(), ErrOverflow)
}

func TestBuilderRejectsEmptyHandleList(t *testing.T) {
	var buf CommandBuffer
	assert.Error(t, NewBuilder(&buf, 0x6).SharedHandles().Finish())
}

func TestBuilderBuffer(t *testing.T) {
	var buf CommandBuffer
	data := []byte("launch-params")
	require.NoError(t, NewBuilder(&buf, 0xA).Word(uint32(len(data))).Buffer(data, BufferR).Finish())

	assert.Equal(t, uint32(0xA0042), uint32(buf.Header()))
	r := NewReader(&buf)
	b, err := r.Buffer(2)
	require.NoError(t, err)
	assert.Equal(t, data, b.Data)
	assert.Equal(t, BufferR, b.Rights)
}

func TestReaderHandle(t *testing.T) {
	var buf CommandBuffer
	require.NoError(t, NewReply(&buf, 0x5, 0).MoveHandles(0x55).Finish())

	r := NewReader(&buf)
	assert.Equal(t, uint32(0x50042), uint32(r.Header()))
	assert.True(t, r.Result().Succeeded())
	h, err := r.Handle(2)
	require.NoError(t, err)
	assert.Equal(t, Handle(0x55), h)
}

func TestReaderHandleRejectsBufferDescriptor(t *testing.T) {
	var buf CommandBuffer
	require.NoError(t, NewReply(&buf, 0x7, 0).Buffer(make([]byte, 4), BufferW).Finish())

	_, err := NewReader(&buf).Handle(2)
	assert.Error(t, err)
}

func TestReaderExpect(t *testing.T) {
	var buf CommandBuffer
	require.NoError(t, NewBuilder(&buf, 0x9).Word(0x100).Finish())

	r := NewReader(&buf)
	assert.NoError(t, r.Expect(0x9, 1, 0))
	assert.Error(t, r.Expect(0x9, 2, 0))
	assert.Error(t, r.Expect(0xA, 1, 0))
}

func TestReaderWordsClampsToBuffer(t *testing.T) {
	var buf CommandBuffer
	for i := range buf.Words {
		buf.Words[i] = uint32(i)
	}

	dst := make([]uint32, 100)
	n := NewReader(&buf).Words(dst, 3, 100)
	assert.Equal(t, MaxWords-3, n)
	assert.Equal(t, uint32(3), dst[0])
}
