package maple

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKnownFrame(t *testing.T) {
	f := &Frame{Command: CmdBlockRead, DestAddr: 0x01, OriginAddr: 0x00}
	f.SetWord(FnMemoryCard, 0)
	f.SetWord(0x0000002A, 1)

	got := Encode(f)
	assert.Equal(t, "0B 01 00 02 02 00 00 00 2A 00 00 00\r\n", got)
}

func TestEncodeNoPayload(t *testing.T) {
	f := &Frame{Command: CmdAck, DestAddr: 0x20, OriginAddr: 0x01}
	assert.Equal(t, "07 20 01 00\r\n", Encode(f))
}

func TestRoundTrip(t *testing.T) {
	frames := []*Frame{
		{Command: 0x00, DestAddr: 0x00, OriginAddr: 0x00, WordCount: 0},
		{Command: CmdDeviceInfoReq, DestAddr: 0x01, OriginAddr: 0x20},
		func() *Frame {
			f := &Frame{Command: CmdDataTransfer, DestAddr: 0x20, OriginAddr: 0x01}
			f.SetData([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01})
			return f
		}(),
		func() *Frame {
			// Full payload: 255 words.
			f := &Frame{Command: CmdBlockWrite, DestAddr: 0xFF, OriginAddr: 0xAA}
			for i := 0; i < 255; i++ {
				f.SetWord(uint32(i)*0x01010101, i)
			}
			return f
		}(),
	}
	for _, want := range frames {
		got, err := Decode(Encode(want))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeWithoutTerminator(t *testing.T) {
	f, err := Decode("07 20 01 00")
	require.NoError(t, err)
	assert.Equal(t, CmdAck, f.Command)
	assert.Equal(t, 0, f.DataLen())
}

func TestDecodeLowercaseAccepted(t *testing.T) {
	f, err := Decode("0b 01 00 01 de ad be ef\r\n")
	require.NoError(t, err)
	assert.Equal(t, CmdBlockRead, f.Command)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, f.Data())
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"two header tokens", "AB CD"},
		{"three header tokens", "AB CD EF"},
		{"non-hex header token", "0B 01 ZZ 00"},
		{"one-digit token", "B 01 00 00"},
		{"three-digit token", "00B 01 00 00"},
		{"truncated payload", "0B 01 00 02 DE AD BE EF"},
		{"missing payload entirely", "0B 01 00 01"},
		{"trailing data", "07 20 01 00 FF"},
		{"non-hex payload token", "08 01 00 01 DE AD xy EF"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Decode(tc.line)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFrameFormat)
			assert.Nil(t, f)
		})
	}
}

func TestDecodeNeverOverflowsPayload(t *testing.T) {
	// Claim the maximum word count and supply every token; the decode must
	// stay inside the 1024-byte payload.
	var b strings.Builder
	b.WriteString("0C 01 00 FF")
	for i := 0; i < 255*4; i++ {
		b.WriteString(" 5A")
	}
	f, err := Decode(b.String())
	require.NoError(t, err)
	assert.Equal(t, 1020, f.DataLen())
	assert.Equal(t, byte(0x5A), f.Payload[1019])
	assert.Equal(t, byte(0x00), f.Payload[1020])
}

func TestSetDataRounding(t *testing.T) {
	var f Frame
	f.SetData([]byte{1, 2, 3, 4, 5})
	assert.Equal(t, byte(2), f.WordCount)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 0, 0, 0}, f.Data())
}

func TestSetWordAndWord(t *testing.T) {
	var f Frame
	f.SetWord(0x11223344, 2)
	assert.Equal(t, byte(3), f.WordCount)
	assert.Equal(t, uint32(0x11223344), f.Word(2))
	assert.Equal(t, uint32(0), f.Word(0))
	assert.Equal(t, uint32(0), f.Word(3))

	// Out-of-range indexes are ignored.
	f.SetWord(0xFFFFFFFF, -1)
	f.SetWord(0xFFFFFFFF, PayloadCap/4)
	assert.Equal(t, byte(3), f.WordCount)
}
