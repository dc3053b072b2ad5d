// Package maple defines the fixed-format bus frame exchanged with the
// companion peer and its ASCII-hex line codec.
package maple

// PayloadCap is the payload buffer capacity in bytes. Only the first
// WordCount*4 bytes of a frame's payload are semantically valid.
const PayloadCap = 1024

// Well-known bus command codes.
const (
	CmdDeviceInfoReq byte = 0x01
	CmdExtInfoReq    byte = 0x02
	CmdReset         byte = 0x03
	CmdShutdown      byte = 0x04
	CmdDeviceInfo    byte = 0x05
	CmdExtInfo       byte = 0x06
	CmdAck           byte = 0x07
	CmdDataTransfer  byte = 0x08
	CmdGetCondition  byte = 0x09
	CmdGetMemInfo    byte = 0x0A
	CmdBlockRead     byte = 0x0B
	CmdBlockWrite    byte = 0x0C

	CmdErrFile       byte = 0xFA
	CmdErrUnsupport  byte = 0xFD
	CmdErrUnknownCmd byte = 0xFE
)

// FnMemoryCard is the function code of the storage function.
const FnMemoryCard uint32 = 0x00000002

// Frame is the wire-level message unit: one command with addressing, a word
// count and up to PayloadCap bytes of payload. It is a plain value; no
// ownership outlives the call that produced it.
type Frame struct {
	Command    byte
	DestAddr   byte
	OriginAddr byte
	WordCount  byte
	Payload    [PayloadCap]byte
}

// DataLen returns the number of semantically valid payload bytes.
func (f *Frame) DataLen() int { return int(f.WordCount) * 4 }

// Data returns the valid portion of the payload.
func (f *Frame) Data() []byte { return f.Payload[:f.DataLen()] }

// SetData copies b into the payload and sets WordCount to cover it,
// rounding up to whole 4-byte words. Bytes beyond PayloadCap are dropped.
func (f *Frame) SetData(b []byte) {
	if len(b) > PayloadCap {
		b = b[:PayloadCap]
	}
	copy(f.Payload[:], b)
	f.WordCount = byte((len(b) + 3) / 4)
}

// SetWord stores a little-endian 32-bit word at the given word index and
// grows WordCount to include it. Out-of-range indexes are ignored.
func (f *Frame) SetWord(w uint32, index int) {
	if index < 0 || index >= PayloadCap/4 {
		return
	}
	off := index * 4
	f.Payload[off] = byte(w)
	f.Payload[off+1] = byte(w >> 8)
	f.Payload[off+2] = byte(w >> 16)
	f.Payload[off+3] = byte(w >> 24)
	if int(f.WordCount) <= index {
		f.WordCount = byte(index + 1)
	}
}

// Word reads the little-endian 32-bit word at the given word index.
// Indexes outside the valid payload return 0.
func (f *Frame) Word(index int) uint32 {
	if index < 0 || index >= int(f.WordCount) {
		return 0
	}
	off := index * 4
	return uint32(f.Payload[off]) |
		uint32(f.Payload[off+1])<<8 |
		uint32(f.Payload[off+2])<<16 |
		uint32(f.Payload[off+3])<<24
}
