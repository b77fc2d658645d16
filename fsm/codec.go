// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fsm

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// messageHeaderSize is the 4-byte magic + 12-byte command + 4-byte length +
// 4-byte checksum envelope every wire message begins with.
const messageHeaderSize = 24

// decodeBuffer is the per-peer byte-oriented decode buffer the FSM appends
// received_bytes into and greedily parses complete messages out of.
type decodeBuffer struct {
	buf bytes.Buffer
}

// frame is one parsed-but-undecoded wire message frame.
type frame struct {
	command  string
	length   uint32
	payload  []byte
	fullSize int // header + payload, for buffer advancement
}

// errIncomplete is a sentinel meaning "not enough bytes buffered yet";
// callers must stop parsing and wait for more received_bytes.
var errIncomplete = fmt.Errorf("fsm: incomplete frame")

// append adds newly received bytes to the buffer.
func (d *decodeBuffer) append(b []byte) {
	d.buf.Write(b)
}

// nextFrame attempts to parse and validate one frame's envelope (magic,
// command, length, checksum) out of the front of the buffer without
// consuming it from the underlying wire.Message decoder, which re-parses the
// envelope itself via wire.ReadMessageWithEncodingN. Returns errIncomplete
// when fewer than a full frame's bytes are buffered. Any other error is
// peer-attributable per spec and callers must disconnect.
func (d *decodeBuffer) nextFrame(net wire.BitcoinNet, maxPayload uint32) (*frame, error) {
	raw := d.buf.Bytes()
	if len(raw) < messageHeaderSize {
		return nil, errIncomplete
	}

	magic := wire.BitcoinNet(binary.LittleEndian.Uint32(raw[0:4]))
	if magic != net {
		return nil, fmt.Errorf("magic mismatch: got %08x, want %08x", uint32(magic), uint32(net))
	}

	var commandBytes [12]byte
	copy(commandBytes[:], raw[4:16])
	command := trimCommand(commandBytes)

	length := binary.LittleEndian.Uint32(raw[16:20])
	if length > maxPayload {
		return nil, fmt.Errorf("payload length %d exceeds cap %d", length, maxPayload)
	}

	var checksum [4]byte
	copy(checksum[:], raw[20:24])

	fullSize := messageHeaderSize + int(length)
	if len(raw) < fullSize {
		return nil, errIncomplete
	}

	payload := raw[messageHeaderSize:fullSize]
	sum := chainhash.DoubleHashB(payload)
	if !bytes.Equal(sum[:4], checksum[:]) {
		return nil, fmt.Errorf("checksum mismatch for %s message", command)
	}

	return &frame{command: command, length: length, payload: payload, fullSize: fullSize}, nil
}

// advance drops the most recently returned frame's bytes from the buffer.
func (d *decodeBuffer) advance(f *frame) {
	remaining := d.buf.Bytes()[f.fullSize:]
	next := make([]byte, len(remaining))
	copy(next, remaining)
	d.buf.Reset()
	d.buf.Write(next)
}

// decode fully decodes one frame into a wire.Message using the exact bytes
// already validated by nextFrame, reusing wire's own envelope parsing and
// message-type registry rather than re-implementing it.
func (d *decodeBuffer) decode(f *frame, pver uint32, net wire.BitcoinNet) (wire.Message, error) {
	full := make([]byte, messageHeaderSize+len(f.payload))
	copy(full, d.buf.Bytes()[:f.fullSize])
	_, msg, _, err := wire.ReadMessageWithEncodingN(
		bytes.NewReader(full), pver, net, wire.WitnessEncoding,
	)
	return msg, err
}

func trimCommand(raw [12]byte) string {
	n := bytes.IndexByte(raw[:], 0)
	if n < 0 {
		n = len(raw)
	}
	return string(raw[:n])
}

// encodeMessage serializes msg into a full wire frame ready to hand to the
// reactor as a Write output.
func encodeMessage(msg wire.Message, pver uint32, net wire.BitcoinNet) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := wire.WriteMessageWithEncodingN(&buf, msg, pver, net, wire.WitnessEncoding); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
