/*Package gateway implements the binary framing protocol and transceiver
engine used to bridge small hardware devices (serial, pipe, socket or
websocket connected microcontrollers) to a device-management service.
Everything a device says or is told travels in self-describing binary
Frames; the shape of each Frame's payload is described by a Layout keyed
by a 16 bit intent, so generic code can convert payloads to and from
structured values without per-message marshalling code.

Pieces

The package is built leaf first:

  binary.go      - primitive encode/decode (fixed width, varint, zig-zag)
  layout.go      - Layout schemas, the intent registry, DataType aliases
  frame.go       - one checksum-verified wire frame, streaming parser
  engine.go      - structured value <-> Frame using Layouts, plus the
                   registration handshake that teaches the engine a
                   device's command/notification vocabulary
  transceiver.go - ordered async send/receive of Frames over one IDoIO

Transports

The wire side is any IDoIO: something that can Read, Write, Open, Close
and describe itself.  Dial strings pick the concrete transport:

  tcp://<host:port>        - Outgoing sockets, also tcp4/tcp6/udp/udp4/udp6
  serial://<device>:<baud> - Serial connection, also rs232://
  ws://<host:port/path>    - WebSocket binary stream, also wss://
  loop://                  - In-memory loopback pair (testing, pipes)

Error Handling

Neither the transports nor the Transceiver try to maintain a constant
connection; when the connection dies / is killed / fails these errors are
passed to the caller who should have a better idea of what to do.  Frame
level corruption (bad signature, version or checksum) is never fatal: the
parser skips a byte, resynchronizes on the next signature and keeps count.
*/
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
