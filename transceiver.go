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
	"log/slog"
	"sync"
	"sync/atomic"
)

/*RecvFunc receives inbound frames in wire order.  A nil frame with a
non-nil error means the read side of the stream has failed; that is
delivered exactly once and the read loop stops*/
type RecvFunc func(*Frame, error)

/*SendFunc reports the outcome of one Send.  It always fires, success or
failure*/
type SendFunc func(error)

/*Stats is a snapshot of a Transceiver's counters*/
type Stats struct {
	FramesRx     uint64
	FramesTx     uint64
	BytesRx      uint64
	BytesTx      uint64
	BadSignature uint64
	BadVersion   uint64
	BadChecksum  uint64
}

type txTask struct {
	frame *Frame
	cb    SendFunc
}

/*Transceiver provides ordered, single-flight-per-direction asynchronous
send and receive of Frames over one IDoIO.  It does not own the IDoIO's
lifetime - the caller opens and closes the transport - and it does not
retry or reconnect: a hard stream error is handed to the caller, who has
a better idea of what to do (typically tear down and redial).

Guarantees: frames go out strictly in Send order, one at a time; inbound
frames are delivered strictly in the order they parse off the wire; no
overlapping reads, no overlapping writes.  All callbacks are dispatched
from a single internal goroutine, never synchronously from inside Send or
Recv, so a callback can safely call back into the Transceiver*/
type Transceiver struct {
	idoio IDoIO
	log   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mux    sync.Mutex
	recvCb RecvFunc
	rxBusy bool
	txBusy bool
	txq    []txTask
	closed bool

	//rxbuf is touched only by the read loop goroutine
	rxbuf []byte

	dispatch *dispatcher

	framesRx, framesTx, bytesRx, bytesTx uint64
	badSig, badVer, badSum               uint64
}

/*NewTransceiver returns a Transceiver over the passed IDoIO.  The ctx
bounds the transceiver's internal loops; cancelling it (or calling Close)
stops them*/
func NewTransceiver(ctx context.Context, idoio IDoIO) *Transceiver {
	tctx, cancel := context.WithCancel(ctx)
	return &Transceiver{
		idoio:    idoio,
		log:      slog.Default(),
		ctx:      tctx,
		cancel:   cancel,
		dispatch: newDispatcher(),
	}
}

/*String conforms to the fmt.Stringer interface*/
func (t *Transceiver) String() string {
	return fmt.Sprintf("Transceiver over %s", t.idoio.String())
}

/*SetLogger replaces the logger used for recoverable parse drops.  Call
before Recv; the default is slog.Default()*/
func (t *Transceiver) SetLogger(l *slog.Logger) {
	if l != nil {
		t.log = l
	}
}

/*Stats returns a snapshot of the transceiver's counters*/
func (t *Transceiver) Stats() Stats {
	return Stats{
		FramesRx:     atomic.LoadUint64(&t.framesRx),
		FramesTx:     atomic.LoadUint64(&t.framesTx),
		BytesRx:      atomic.LoadUint64(&t.bytesRx),
		BytesTx:      atomic.LoadUint64(&t.bytesTx),
		BadSignature: atomic.LoadUint64(&t.badSig),
		BadVersion:   atomic.LoadUint64(&t.badVer),
		BadChecksum:  atomic.LoadUint64(&t.badSum),
	}
}

/*Send enqueues frame at the back of the outbound FIFO and returns
immediately; cb (which may be nil) fires later with the outcome.  If no
write is in flight one is started.  On a hard write error the remaining
queue is deliberately left intact: a stream error usually invalidates the
whole connection, so whether to drop the transceiver or flush and carry on
is the owner's call*/
func (t *Transceiver) Send(frame *Frame, cb SendFunc) {
	t.mux.Lock()
	if t.closed {
		t.mux.Unlock()
		//the dispatcher may already be gone, so fire directly - still
		//asynchronously, to honor the no-reentrant-callback rule
		if cb != nil {
			go cb(ErrClosed)
		}
		return
	}
	t.txq = append(t.txq, txTask{frame: frame, cb: cb})
	start := !t.txBusy
	if start {
		t.txBusy = true
	}
	t.mux.Unlock()
	if start {
		go t.drainTx()
	}
}

/*drainTx pops and transmits queued frames one at a time until the queue
empties or a hard error stops the loop*/
func (t *Transceiver) drainTx() {
	for {
		t.mux.Lock()
		if t.closed || len(t.txq) == 0 {
			t.txBusy = false
			t.mux.Unlock()
			return
		}
		task := t.txq[0]
		t.txq = t.txq[1:]
		t.mux.Unlock()

		err := t.writeAll(task.frame.Bytes())
		if err == nil {
			atomic.AddUint64(&t.framesTx, 1)
			atomic.AddUint64(&t.bytesTx, uint64(task.frame.Len()))
		}
		cb := task.cb
		t.dispatch.post(func() {
			if cb != nil {
				cb(err)
			}
		})
		if err != nil {
			t.mux.Lock()
			t.txBusy = false
			t.mux.Unlock()
			return
		}
	}
}

/*writeAll pushes every byte of b to the transport, riding out the
timeout/temporary errors the transports produce from their short internal
deadlines.  "Write all", not "write some": a frame is never left half on
the wire by this side*/
func (t *Transceiver) writeAll(b []byte) error {
	for len(b) > 0 {
		select {
		case <-t.ctx.Done():
			return newErr(false, false, t.ctx.Err())
		default:
		}
		n, err := t.idoio.Write(b)
		b = b[n:]
		if err != nil && !IsTimeout(err) && !IsTemporary(err) {
			return err
		}
	}
	return nil
}

/*Recv registers cb as the inbound frame callback and, if not already
listening, starts the read loop.  Passing nil unregisters the callback;
the read loop winds down at its next opportunity.  Re-registering a
callback restarts it*/
func (t *Transceiver) Recv(cb RecvFunc) {
	t.mux.Lock()
	t.recvCb = cb
	start := cb != nil && !t.rxBusy && !t.closed
	if start {
		t.rxBusy = true
	}
	t.mux.Unlock()
	if start {
		go t.readLoop()
	}
}

/*readLoop issues one read at a time, feeds whatever arrives into the
accumulation buffer, and drains every complete frame out of it before
reading again.  Recoverable parse failures never stop the loop; a hard
transport error is delivered once and ends it*/
func (t *Transceiver) readLoop() {
	buf := make([]byte, 4096)
	for {
		t.mux.Lock()
		if t.closed || t.recvCb == nil {
			t.rxBusy = false
			t.mux.Unlock()
			return
		}
		t.mux.Unlock()

		n, err := t.idoio.Read(buf)
		if n > 0 {
			atomic.AddUint64(&t.bytesRx, uint64(n))
			t.rxbuf = append(t.rxbuf, buf[:n]...)
			t.drainFrames()
		}
		if err != nil {
			if IsTimeout(err) || IsTemporary(err) {
				continue
			}
			t.mux.Lock()
			t.rxBusy = false
			cb := t.recvCb
			t.mux.Unlock()
			t.dispatch.post(func() {
				if cb != nil {
					cb(nil, err)
				}
			})
			return
		}
	}
}

/*drainFrames repeatedly parses the accumulation buffer, delivering every
complete frame in wire order and skipping over corruption, until the
parser wants more data*/
func (t *Transceiver) drainFrames() {
	for {
		frame, consumed, status := ParseFrame(t.rxbuf)
		t.rxbuf = t.rxbuf[consumed:]
		switch status {
		case ParseSuccess:
			atomic.AddUint64(&t.framesRx, 1)
			t.mux.Lock()
			cb := t.recvCb
			t.mux.Unlock()
			f := frame
			t.dispatch.post(func() {
				if cb != nil {
					cb(f, nil)
				}
			})
		case ParseIncomplete:
			if len(t.rxbuf) == 0 {
				t.rxbuf = nil //let the backing array go
			}
			return
		case ParseBadSignature:
			atomic.AddUint64(&t.badSig, 1)
			t.log.Debug("dropping byte on bad frame signature", "transport", t.idoio.String())
		case ParseBadVersion:
			atomic.AddUint64(&t.badVer, 1)
			t.log.Debug("dropping byte on bad frame version", "transport", t.idoio.String())
		case ParseBadChecksum:
			atomic.AddUint64(&t.badSum, 1)
			t.log.Debug("dropping byte on bad frame checksum", "transport", t.idoio.String())
		}
	}
}

/*Close stops both loops and, after any already-queued callbacks have
fired, the dispatcher.  It does not close the IDoIO - the caller owns
that, and closing it is also how a read blocked in the transport gets
unstuck.  Close is idempotent*/
func (t *Transceiver) Close() error {
	t.mux.Lock()
	if t.closed {
		t.mux.Unlock()
		return nil
	}
	t.closed = true
	t.mux.Unlock()
	t.cancel()
	t.dispatch.close()
	return nil
}

/*dispatcher serializes callback delivery through one goroutine, so
callbacks observe the same order events happened in but are never invoked
synchronously from inside the Transceiver's internals*/
type dispatcher struct {
	mux    sync.Mutex
	cond   *sync.Cond
	q      []func()
	closed bool
}

func newDispatcher() *dispatcher {
	d := &dispatcher{}
	d.cond = sync.NewCond(&d.mux)
	go d.run()
	return d
}

/*post queues f for delivery.  Posts after close are dropped: the owner
said they were done listening*/
func (d *dispatcher) post(f func()) {
	d.mux.Lock()
	defer d.mux.Unlock()
	if d.closed {
		return
	}
	d.q = append(d.q, f)
	d.cond.Signal()
}

func (d *dispatcher) run() {
	for {
		d.mux.Lock()
		for len(d.q) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.q) == 0 && d.closed {
			d.mux.Unlock()
			return
		}
		f := d.q[0]
		d.q = d.q[1:]
		d.mux.Unlock()
		f()
	}
}

/*close lets the run goroutine finish delivering what is already queued and
then exit*/
func (d *dispatcher) close() {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.closed = true
	d.cond.Broadcast()
}
