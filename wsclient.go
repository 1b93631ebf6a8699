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
	"regexp"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

var _ IDoIO = &WSClient{}
var wsClientRe = regexp.MustCompile("^wss?:\\/\\/.+$")

/*WSClient presents a WebSocket connection as a plain byte stream.  Each
Write goes out as one binary message; Reads drain binary messages in
order, spanning message boundaries as needed, so the framing layer above
neither knows nor cares that the transport has messages of its own*/
type WSClient struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	url     string
	conn    *websocket.Conn
	pending []byte //unread remainder of the last binary message
}

/*NewWSClient opens a WebSocket connection to dial, which should be in the
form 'ws://<host:port>/<path>' or 'wss://...'.  Timeout bounds the opening
handshake; reads and writes afterwards block until data moves or the
connection dies*/
func NewWSClient(ctx context.Context, timeout time.Duration, dial string) (*WSClient, error) {
	if !wsClientRe.MatchString(dial) {
		return nil, newErr(false, false, fmt.Errorf("dial string not in correct form"))
	}
	nctx, cancel := context.WithCancel(ctx)
	ws := &WSClient{
		ctx:     nctx,
		cancel:  cancel,
		timeout: timeout,
		url:     dial,
	}
	return ws, ws.Open()
}

/*String conforms to the fmt.Stringer interface*/
func (ws *WSClient) String() string {
	return fmt.Sprintf("websocket connection to %v", ws.url)
}

/*Open forcibly drops any previous connection (ignoring errors) and
attempts the handshake again.  It returns an error if it was unable to
start*/
func (ws *WSClient) Open() (err error) {
	select {
	case <-ws.ctx.Done():
		return newErr(false, false, ws.ctx.Err())
	default:
	}
	if ws.conn != nil {
		ws.conn.Close()
		ws.conn = nil
	}
	ws.pending = nil
	dialer := websocket.Dialer{HandshakeTimeout: ws.timeout}
	ws.conn, _, err = dialer.DialContext(ws.ctx, ws.url, nil)
	if err != nil {
		return newErr(false, false, errors.Wrapf(err, "unable to open websocket to %q", ws.url))
	}
	return nil
}

/*Read conforms to io.Reader, but immediately returns upon ctx destruction
after closing the underlying transport*/
func (ws *WSClient) Read(b []byte) (int, error) {
	select {
	case <-ws.ctx.Done():
		defer ws.Close()
		return 0, newErr(false, false, ws.ctx.Err())
	default:
	}
	if ws.conn == nil {
		return 0, newErr(false, false, errors.New("broken connection"))
	}
	for len(ws.pending) == 0 {
		mt, msg, err := ws.conn.ReadMessage()
		if err != nil {
			return 0, newErr(false, false, err)
		}
		if mt != websocket.BinaryMessage {
			continue //text/control chatter carries no frame bytes
		}
		ws.pending = msg
	}
	n := copy(b, ws.pending)
	ws.pending = ws.pending[n:]
	return n, nil
}

/*Write conforms to io.Writer, but immediately returns upon ctx destruction
after closing the underlying transport.  The whole slice goes out as a
single binary message*/
func (ws *WSClient) Write(b []byte) (int, error) {
	select {
	case <-ws.ctx.Done():
		defer ws.Close()
		return 0, newErr(false, false, ws.ctx.Err())
	default:
	}
	if ws.conn == nil {
		return 0, newErr(false, false, errors.New("broken connection"))
	}
	if err := ws.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, newErr(false, false, err)
	}
	return len(b), nil
}

/*Close conforms to io.Closer, but immediately returns upon ctx
destruction after closing the underlying transport*/
func (ws *WSClient) Close() error {
	ws.cancel()
	defer func() { ws.conn = nil }()
	if ws.conn != nil {
		return ws.conn.Close()
	}
	return nil
}
