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
	"fmt"
	"io"
	"regexp"
	"time"
)

/*IDoIO is the generic duplex byte stream the Transceiver drives. An IDoIO
should be able to tell others in some human readable string form what the
transport actually is (fmt.Stringer), should be able to read and write
byte slices (io.ReadWriter), and should be able to Open and Close the
device at will.  This does mean that once created, an IDoIO needs to cache
and properly deal with its opening criteria.

Any error returned must be castable to net.Error*/
type IDoIO interface {
	fmt.Stringer
	io.ReadWriter
	io.Closer
	Open() error
}

var known = map[*regexp.Regexp]func(context.Context, time.Duration, string) (IDoIO, error){
	netClientRe: func(ctx context.Context, dur time.Duration, dial string) (IDoIO, error) {
		return NewNetClient(ctx, dur, dial)
	},
	serialRe: func(ctx context.Context, dur time.Duration, dial string) (IDoIO, error) {
		return NewSerialClient(ctx, dur, dial)
	},
	wsClientRe: func(ctx context.Context, dur time.Duration, dial string) (IDoIO, error) {
		return NewWSClient(ctx, dur, dial)
	},
	loopRe: func(ctx context.Context, dur time.Duration, dial string) (IDoIO, error) {
		a, _ := NewLoopback(ctx)
		return a, nil
	},
}

/*NewIDoIO returns the transport matching the dial string: see the package
docs for the known schemes*/
func NewIDoIO(ctx context.Context, timeout time.Duration, dial string) (IDoIO, error) {
	for re, funcptr := range known {
		if re.MatchString(dial) {
			return funcptr(ctx, timeout, dial)
		}
	}
	err := newErr(false, false, fmt.Errorf("No known way to create an IDoIO from %q", dial))
	return InvalidIO(err.Error()), err
}

var _ IDoIO = InvalidIO("")

/*InvalidIO is the IDoIO equivalent of /dev/null with an attitude: every
operation fails with the reason it exists.  NewIDoIO hands one back
alongside the error so callers that ignore errors still get something
that conforms*/
type InvalidIO string

/*String conforms to the fmt.Stringer interface*/
func (i InvalidIO) String() string { return "invalid io: " + string(i) }

/*Read conforms to io.Reader, but always fails*/
func (i InvalidIO) Read([]byte) (int, error) { return 0, i.err() }

/*Write conforms to io.Writer, but always fails*/
func (i InvalidIO) Write([]byte) (int, error) { return 0, i.err() }

/*Close conforms to io.Closer, but always fails*/
func (i InvalidIO) Close() error { return i.err() }

/*Open conforms to IDoIO, but always fails*/
func (i InvalidIO) Open() error { return i.err() }

func (i InvalidIO) err() error {
	return newErr(false, false, fmt.Errorf("%s", i.String()))
}
