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
	"context"
	"net"
	"regexp"
)

var _ IDoIO = &Loopback{}
var loopRe = regexp.MustCompile("^loop:\\/\\/$")

/*Loopback is an in-memory duplex IDoIO: whatever one end writes the other
end reads.  It stands in for pipe-connected devices and carries most of
the package's own tests.  Dialing "loop://" through NewIDoIO yields one
end with the peer discarded, which is rarely what production code wants -
call NewLoopback directly to hold both ends*/
type Loopback struct {
	ctx    context.Context
	cancel context.CancelFunc
	conn   net.Conn
}

/*NewLoopback returns both ends of an in-memory duplex stream*/
func NewLoopback(ctx context.Context) (*Loopback, *Loopback) {
	a, b := net.Pipe()
	actx, acancel := context.WithCancel(ctx)
	bctx, bcancel := context.WithCancel(ctx)
	return &Loopback{ctx: actx, cancel: acancel, conn: a},
		&Loopback{ctx: bctx, cancel: bcancel, conn: b}
}

/*String conforms to the fmt.Stringer interface*/
func (l *Loopback) String() string { return "in-memory loopback pipe" }

/*Open conforms to IDoIO.  A loopback cannot be re-established once torn
down; Open only reports whether the pipe is still usable*/
func (l *Loopback) Open() error {
	select {
	case <-l.ctx.Done():
		return newErr(false, false, l.ctx.Err())
	default:
		return nil
	}
}

/*Read conforms to io.Reader, but immediately returns upon ctx destruction
after closing the underlying pipe*/
func (l *Loopback) Read(b []byte) (int, error) {
	select {
	case <-l.ctx.Done():
		defer l.Close()
		return 0, newErr(false, false, l.ctx.Err())
	default:
		n, e := l.conn.Read(b)
		if e != nil {
			return n, newErr(false, false, e)
		}
		return n, nil
	}
}

/*Write conforms to io.Writer, but immediately returns upon ctx destruction
after closing the underlying pipe*/
func (l *Loopback) Write(b []byte) (int, error) {
	select {
	case <-l.ctx.Done():
		defer l.Close()
		return 0, newErr(false, false, l.ctx.Err())
	default:
		n, e := l.conn.Write(b)
		if e != nil {
			return n, newErr(false, false, e)
		}
		return n, nil
	}
}

/*Close conforms to io.Closer.  Closing one end makes the peer's pending
and future reads fail, which is also how a Transceiver blocked in Read
gets unstuck*/
func (l *Loopback) Close() error {
	l.cancel()
	return l.conn.Close()
}
