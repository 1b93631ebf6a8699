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
	"encoding/binary"
	"io"
	"unsafe"

	"github.com/pkg/errors"
)

/*ByteOrder selects how fixed width integers hit the wire.  HostOrder copies
raw machine bytes with no conversion, which is NOT portable between machines
of different endianness - it exists for trusted/local contexts only.  Wire
layouts should stick to LittleEndian or BigEndian*/
type ByteOrder int

const (
	HostOrder ByteOrder = iota
	LittleEndian
	BigEndian
)

/*hostEndian is the byte order of this machine, probed once at init*/
var hostEndian binary.ByteOrder = func() binary.ByteOrder {
	probe := uint16(0x0102)
	if (*[2]byte)(unsafe.Pointer(&probe))[0] == 0x02 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}()

func (o ByteOrder) order() binary.ByteOrder {
	switch o {
	case LittleEndian:
		return binary.LittleEndian
	case BigEndian:
		return binary.BigEndian
	}
	return hostEndian
}

/*Encoder writes wire primitives to an io.Writer.  It is a thin stateless
wrapper: any error from the underlying writer is returned as-is and the
Encoder may be kept using or discarded as the caller sees fit*/
type Encoder struct {
	w io.Writer
}

/*NewEncoder returns an Encoder writing to w*/
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

/*PutUint8 writes a single byte*/
func (enc *Encoder) PutUint8(v uint8) error {
	return enc.PutBytes([]byte{v})
}

/*PutUint16 writes 2 bytes in the requested order*/
func (enc *Encoder) PutUint16(v uint16, o ByteOrder) error {
	var b [2]byte
	o.order().PutUint16(b[:], v)
	return enc.PutBytes(b[:])
}

/*PutUint32 writes 4 bytes in the requested order*/
func (enc *Encoder) PutUint32(v uint32, o ByteOrder) error {
	var b [4]byte
	o.order().PutUint32(b[:], v)
	return enc.PutBytes(b[:])
}

/*PutUint64 writes 8 bytes in the requested order*/
func (enc *Encoder) PutUint64(v uint64, o ByteOrder) error {
	var b [8]byte
	o.order().PutUint64(b[:], v)
	return enc.PutBytes(b[:])
}

/*PutUvarint writes v in the variable length wire format: 7 data bits per
byte, high bit set on every byte but the last, least significant group
first.  Values below 128 cost a single byte*/
func (enc *Encoder) PutUvarint(v uint64) error {
	var b [10]byte //64/7 rounds up to 10
	n := 0
	for {
		b[n] = byte(v & 0x7F)
		v >>= 7
		if v == 0 {
			n++
			break
		}
		b[n] |= 0x80
		n++
	}
	return enc.PutBytes(b[:n])
}

/*PutVarint zig-zag maps v onto the unsigned space and writes it with
PutUvarint, so small magnitudes of either sign stay short on the wire*/
func (enc *Encoder) PutVarint(v int64) error {
	return enc.PutUvarint(uint64(v<<1) ^ uint64(v>>63))
}

/*PutString writes a variable length byte count followed by the raw bytes.
No character encoding transformation is applied*/
func (enc *Encoder) PutString(s string) error {
	if err := enc.PutUvarint(uint64(len(s))); err != nil {
		return err
	}
	return enc.PutBytes([]byte(s))
}

/*PutBytes writes b byte-for-byte with no length prefix*/
func (enc *Encoder) PutBytes(b []byte) error {
	n, err := enc.w.Write(b)
	if err != nil {
		return errors.Wrap(err, "encode write failed")
	}
	if n != len(b) {
		return errors.Wrapf(io.ErrShortWrite, "wrote %d of %d bytes", n, len(b))
	}
	return nil
}

/*Decoder reads wire primitives from an io.Reader.  Unlike the devices this
package talks to, the Decoder refuses to invent data: any read that runs
past the end of the stream fails with ErrTruncated rather than silently
zero filling, so corrupt frames surface as errors instead of garbage
values*/
type Decoder struct {
	r io.Reader
}

/*NewDecoder returns a Decoder reading from r*/
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

func (dec *Decoder) read(b []byte) error {
	if _, err := io.ReadFull(dec.r, b); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ErrTruncated
		}
		return errors.Wrap(err, "decode read failed")
	}
	return nil
}

/*Uint8 reads a single byte*/
func (dec *Decoder) Uint8() (uint8, error) {
	var b [1]byte
	err := dec.read(b[:])
	return b[0], err
}

/*Uint16 reads 2 bytes in the requested order*/
func (dec *Decoder) Uint16(o ByteOrder) (uint16, error) {
	var b [2]byte
	if err := dec.read(b[:]); err != nil {
		return 0, err
	}
	return o.order().Uint16(b[:]), nil
}

/*Uint32 reads 4 bytes in the requested order*/
func (dec *Decoder) Uint32(o ByteOrder) (uint32, error) {
	var b [4]byte
	if err := dec.read(b[:]); err != nil {
		return 0, err
	}
	return o.order().Uint32(b[:]), nil
}

/*Uint64 reads 8 bytes in the requested order*/
func (dec *Decoder) Uint64(o ByteOrder) (uint64, error) {
	var b [8]byte
	if err := dec.read(b[:]); err != nil {
		return 0, err
	}
	return o.order().Uint64(b[:]), nil
}

/*Uvarint reads a variable length unsigned integer of at most bits data
bits.  Decoding stops at the first byte with a clear high bit, or after
ceil(bits/7) bytes - whichever comes first - which bounds how far a
malformed stream can drag the decoder*/
func (dec *Decoder) Uvarint(bits int) (uint64, error) {
	var v uint64
	max := (bits + 6) / 7
	for i := 0; i < max; i++ {
		b, err := dec.Uint8()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7F) << uint(7*i)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return v, nil
}

/*Varint reads a zig-zag encoded signed integer of at most bits data bits*/
func (dec *Decoder) Varint(bits int) (int64, error) {
	u, err := dec.Uvarint(bits)
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

/*String reads a variable length byte count followed by that many raw bytes*/
func (dec *Decoder) String() (string, error) {
	n, err := dec.Uvarint(32)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if err := dec.read(b); err != nil {
		return "", err
	}
	return string(b), nil
}

/*Bytes reads exactly n raw bytes*/
func (dec *Decoder) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := dec.read(b); err != nil {
		return nil, err
	}
	return b, nil
}
