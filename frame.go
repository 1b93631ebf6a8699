package gateway

/*
MIT License

Copyright (c) 2015-2017 University Corporation for Atmospheric Research

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

/*Wire frame structure, all multi-byte integers little endian:

  offset size  field
  0      1     signature1 (0xC5)
  1      1     signature2 (0xC3)
  2      1     version    (0x01)
  3      1     flags      (reserved, 0)
  4      2     payload length
  6      2     intent
  8      N     payload
  8+N    1     checksum: additive inverse of the sum of all prior bytes
               mod 256

A valid frame's full byte range, trailing checksum included, sums to
exactly 0 mod 256.*/
const (
	frameSignature1  = 0xC5
	frameSignature2  = 0xC3
	frameVersion     = 0x01
	frameHeaderSize  = 8
	frameTrailerSize = 1

	//MaxPayload is the largest payload one frame can carry
	MaxPayload = 0xFFFF
)

/*ParseStatus is the outcome of one ParseFrame attempt against a buffer*/
type ParseStatus int

const (
	//ParseSuccess - a complete, checksum-clean frame was extracted
	ParseSuccess ParseStatus = iota
	//ParseIncomplete - not an error; wait for more bytes
	ParseIncomplete
	//ParseBadSignature - second signature byte mismatched; recoverable
	ParseBadSignature
	//ParseBadVersion - unsupported version byte; recoverable
	ParseBadVersion
	//ParseBadChecksum - frame failed its checksum; recoverable
	ParseBadChecksum
)

/*String implements the Stringer interface*/
func (s ParseStatus) String() string {
	switch s {
	case ParseSuccess:
		return "Success"
	case ParseIncomplete:
		return "Incomplete"
	case ParseBadSignature:
		return "BadSignature"
	case ParseBadVersion:
		return "BadVersion"
	case ParseBadChecksum:
		return "BadChecksum"
	}
	return "Unknown"
}

/*Frame is one complete, self delimiting, checksum verified binary message.
Content is immutable once constructed: frames come either from NewFrame
wrapping a payload, or from ParseFrame pulling a valid byte range off the
wire*/
type Frame struct {
	raw []byte
}

/*checksum computes the frame checksum byte over b: the additive inverse
of the byte sum mod 256.  Appending the result makes the whole range sum
to 0 mod 256, which is the receive-side validity check*/
func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return -sum
}

/*NewFrame formats intent and payload into a wire frame.  Payloads larger
than MaxPayload cannot be represented in the 16 bit length field and are
rejected*/
func NewFrame(intent Intent, payload []byte) (*Frame, error) {
	if len(payload) > MaxPayload {
		return nil, errors.Errorf("payload of %d bytes exceeds frame maximum of %d", len(payload), MaxPayload)
	}
	raw := make([]byte, frameHeaderSize+len(payload)+frameTrailerSize)
	raw[0] = frameSignature1
	raw[1] = frameSignature2
	raw[2] = frameVersion
	raw[3] = 0 //flags, reserved
	binary.LittleEndian.PutUint16(raw[4:6], uint16(len(payload)))
	binary.LittleEndian.PutUint16(raw[6:8], uint16(intent))
	copy(raw[frameHeaderSize:], payload)
	raw[len(raw)-1] = checksum(raw[:len(raw)-1])
	return &Frame{raw: raw}, nil
}

/*ParseFrame attempts to extract one frame from the front of buf, which is
typically an accumulation buffer that grows as reads complete.  It returns
the parsed frame (nil unless status is ParseSuccess), the number of bytes
the caller should discard from the front of buf, and the parse status.

Garbage ahead of a signature byte is consumed silently - that is the
resynchronization path after line noise or a dropped byte.  The Bad*
statuses consume exactly one byte past the candidate signature so that a
signature byte appearing inside payload data cannot wedge the parser;
callers should simply try again.  ParseIncomplete consumes nothing beyond
leading garbage and means "wait for more data".  Callers normally loop
until ParseIncomplete, draining every complete frame the buffer holds*/
func ParseFrame(buf []byte) (*Frame, int, ParseStatus) {
	start := bytes.IndexByte(buf, frameSignature1)
	if start < 0 {
		//no candidate at all: the whole buffer is noise
		return nil, len(buf), ParseIncomplete
	}
	cand := buf[start:]
	if len(cand) < frameHeaderSize+frameTrailerSize {
		return nil, start, ParseIncomplete
	}
	if cand[1] != frameSignature2 {
		return nil, start + 1, ParseBadSignature
	}
	if cand[2] != frameVersion {
		return nil, start + 1, ParseBadVersion
	}
	//cand[3] is flags: reserved, ignored on receive
	length := int(binary.LittleEndian.Uint16(cand[4:6]))
	total := frameHeaderSize + length + frameTrailerSize
	if len(cand) < total {
		return nil, start, ParseIncomplete
	}
	var sum byte
	for _, v := range cand[:total] {
		sum += v
	}
	if sum != 0 {
		return nil, start + 1, ParseBadChecksum
	}
	raw := make([]byte, total)
	copy(raw, cand[:total])
	return &Frame{raw: raw}, start + total, ParseSuccess
}

/*Bytes returns the frame's full wire representation, header and checksum
included.  Callers must not modify the returned slice*/
func (f *Frame) Bytes() []byte {
	return f.raw
}

/*Len returns the total wire length of the frame*/
func (f *Frame) Len() int {
	return len(f.raw)
}

/*Intent extracts the 16 bit intent field without a full parse.  The second
return is false for frames too short to hold a header*/
func (f *Frame) Intent() (Intent, bool) {
	if len(f.raw) < frameHeaderSize {
		return 0, false
	}
	return Intent(binary.LittleEndian.Uint16(f.raw[6:8])), true
}

/*Payload returns a copy of the payload byte range, excluding header and
checksum.  The second return is false for frames too short to carry one*/
func (f *Frame) Payload() ([]byte, bool) {
	if len(f.raw) < frameHeaderSize+frameTrailerSize {
		return nil, false
	}
	p := make([]byte, len(f.raw)-frameHeaderSize-frameTrailerSize)
	copy(p, f.raw[frameHeaderSize:len(f.raw)-frameTrailerSize])
	return p, true
}

/*String implements the Stringer interface*/
func (f *Frame) String() string {
	intent, ok := f.Intent()
	if !ok {
		return fmt.Sprintf("Frame<invalid, %d bytes>", len(f.raw))
	}
	return fmt.Sprintf("Frame<%v, %d byte payload>", intent, len(f.raw)-frameHeaderSize-frameTrailerSize)
}
