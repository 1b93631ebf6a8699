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
	"net"

	"github.com/pkg/errors"
)

/*Protocol level errors.  These are value errors so callers can compare
against them directly (or via errors.Cause after wrapping).*/
var (
	ErrTruncated      = errors.New("gateway: truncated data - read past end of buffer")
	ErrDuplicateField = errors.New("gateway: duplicate field name in layout")
	ErrReservedIntent = errors.New("gateway: intent is within the reserved system range")
	ErrUnknownIntent  = errors.New("gateway: no layout registered for intent")
	ErrUnknownType    = errors.New("gateway: unrecognized data type alias")
	ErrInvalidSchema  = errors.New("gateway: invalid registration schema")
	ErrClosed         = errors.New("gateway: transceiver is closed")
)

var _ net.Error = &Error{}

/*Error is the error type emitted from the IDoIO implementations. It conforms
to net.Error, so callers can interrogate a failure for its timeout-ness or
temporary-ness without caring which transport produced it*/
type Error struct {
	temporary, timeout bool
	embedded           error
}

/*newErr wraps err with transport agnostic timeout/temporary markers*/
func newErr(temporary, timeout bool, err error) *Error {
	return &Error{temporary: temporary, timeout: timeout, embedded: err}
}

/*Error conforms to the error interface*/
func (e *Error) Error() string {
	if e.embedded == nil {
		return "<nil>"
	}
	return e.embedded.Error()
}

/*Timeout conforms to net.Error*/
func (e *Error) Timeout() bool { return e.timeout }

/*Temporary conforms to net.Error*/
func (e *Error) Temporary() bool { return e.temporary }

/*Unwrap exposes the embedded error to the errors package*/
func (e *Error) Unwrap() error { return e.embedded }

/*IsTimeout returns true if the passed error is a timeout style error: eg
the operation might work if retried later. Panics if handed a nil error:
asking whether nothing timed out is a caller bug*/
func IsTimeout(err error) bool {
	if err == nil {
		panic("IsTimeout called with a nil error")
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

/*IsTemporary returns true if the passed error is a temporary style error.
Panics if handed a nil error for the same reason IsTimeout does*/
func IsTemporary(err error) bool {
	if err == nil {
		panic("IsTemporary called with a nil error")
	}
	type temporary interface{ Temporary() bool }
	var te temporary
	if errors.As(err, &te) {
		return te.Temporary()
	}
	return false
}
