package main

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vmulink/vmulink/internal/maple"
)

const (
	blockSize = 512
	numBlocks = 256 // 128 KB card
)

// card is the emulated memory-card block store.
type card struct {
	mu     sync.Mutex
	blocks [numBlocks][blockSize]byte
}

// read copies out one block, or returns nil when the locator is out of
// range.
func (c *card) read(block uint32) []byte {
	if block >= numBlocks {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, blockSize)
	copy(out, c.blocks[block][:])
	return out
}

// write stores data at the start of one block. Data longer than a block is
// truncated.
func (c *card) write(block uint32, data []byte) bool {
	if block >= numBlocks {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.blocks[block][:], data)
	return true
}

// simulator answers bus frames against the emulated card.
type simulator struct {
	log  *zap.Logger
	card *card
}

func newSimulator(log *zap.Logger) *simulator {
	return &simulator{log: log, card: &card{}}
}

// handle builds the reply for one request frame. Every reply swaps the
// request's addressing so it travels back to the originator.
func (s *simulator) handle(req *maple.Frame) *maple.Frame {
	rep := &maple.Frame{
		DestAddr:   req.OriginAddr,
		OriginAddr: req.DestAddr,
	}

	switch req.Command {
	case maple.CmdDeviceInfoReq:
		rep.Command = maple.CmdDeviceInfo
		rep.SetWord(maple.FnMemoryCard, 0)
		// Function data: one 128 KB storage partition, 512-byte blocks.
		rep.SetWord(uint32(numBlocks-1)<<16, 1)
		rep.SetWord(0, 2)
		rep.SetWord(0, 3)

	case maple.CmdGetMemInfo:
		rep.Command = maple.CmdDataTransfer
		rep.SetWord(maple.FnMemoryCard, 0)
		rep.SetWord(uint32(numBlocks-1)<<16, 1) // last block | partition 0
		rep.SetWord(uint32(numBlocks-1)<<16|uint32(numBlocks-2), 2)
		rep.SetWord(0, 3)

	case maple.CmdBlockRead:
		if req.Word(0) != maple.FnMemoryCard {
			rep.Command = maple.CmdErrUnsupport
			break
		}
		locator := req.Word(1)
		data := s.card.read(locator & 0xFFFF)
		if data == nil {
			rep.Command = maple.CmdErrFile
			break
		}
		rep.Command = maple.CmdDataTransfer
		rep.SetWord(maple.FnMemoryCard, 0)
		rep.SetWord(locator, 1)
		for i := 0; i < blockSize; i += 4 {
			w := uint32(data[i]) | uint32(data[i+1])<<8 |
				uint32(data[i+2])<<16 | uint32(data[i+3])<<24
			rep.SetWord(w, 2+i/4)
		}

	case maple.CmdBlockWrite:
		if req.Word(0) != maple.FnMemoryCard {
			rep.Command = maple.CmdErrUnsupport
			break
		}
		if req.WordCount < 2 {
			rep.Command = maple.CmdErrFile
			break
		}
		locator := req.Word(1)
		if !s.card.write(locator&0xFFFF, req.Data()[8:]) {
			rep.Command = maple.CmdErrFile
			break
		}
		rep.Command = maple.CmdAck

	default:
		s.log.Warn("unknown command", zap.Uint8("command", req.Command))
		rep.Command = maple.CmdErrUnknownCmd
	}
	return rep
}

// serve runs the accept loop until the listener is closed.
func (s *simulator) serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Error("accept", zap.Error(err))
			}
			return
		}
		s.log.Info("emulator connected", zap.String("remote", conn.RemoteAddr().String()))
		go s.session(conn)
	}
}

// session answers frames on one connection until the peer goes away.
func (s *simulator) session(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("read", zap.Error(err))
			}
			return
		}
		req, err := maple.Decode(strings.TrimRight(line, "\r\n"))
		if err != nil {
			s.log.Warn("malformed frame", zap.Error(err))
			continue
		}
		rep := s.handle(req)
		if _, err := conn.Write([]byte(maple.Encode(rep))); err != nil {
			s.log.Debug("write", zap.Error(err))
			return
		}
	}
}
