/*
MIT License

Copyright (c) 2015-2018 University Corporation for Atmospheric Research

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

package gateway

import (
	"context"
	"flag"
	"fmt"
	"testing"
	"time"
)

//hardware-in-the-loop: run with -serialdev /dev/ttyUSB0 (ideally with TX
//jumpered to RX) to exercise a real port
var serialdev = flag.String("serialdev", "", "serial device to test against, e.g. /dev/ttyUSB0")

func TestNewSerialClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := NewSerialClient(ctx, time.Second, "not a dial string"); err == nil {
		t.Error("Bad dial string should fail")
		t.FailNow()
	}
	if _, err := NewSerialClient(ctx, time.Second, "serial:///dev/path/to/nowhere:115200"); err == nil {
		t.Error("A device that does not exist should fail to open")
		t.FailNow()
	}

	dead, kill := context.WithCancel(context.Background())
	kill()
	sc := &SerialClient{ctx: dead, cancel: kill}
	if err := sc.Open(); err == nil {
		t.Error("Open on a dead context should fail")
	}
	if _, err := sc.Read(make([]byte, 16)); err == nil {
		t.Error("Read on a dead context should fail")
	}
	if _, err := sc.Write([]byte("x")); err == nil {
		t.Error("Write on a dead context should fail")
	}
	if err := sc.Close(); err == nil {
		t.Error("Close on a dead context should fail")
	}
}

func TestSerialClientDevice(t *testing.T) {
	if *serialdev == "" {
		t.Skip("no -serialdev passed; skipping the hardware test")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dial := fmt.Sprintf("serial://%s:115200", *serialdev)
	sc, err := NewIDoIO(ctx, time.Second, dial)
	if err != nil {
		t.Error("Unable to open", dial, ":", err)
		t.FailNow()
	}
	t.Log("Opened", sc.String())
	defer sc.Close()

	msg := []byte("a dead cow sings the blues")
	if n, e := sc.Write(msg); e != nil || n != len(msg) {
		t.Log("Wanted to write", len(msg), "bytes, wrote", n)
		t.Log("Error was ", e)
		t.Error("Write is borked")
		t.FailNow()
	}

	//with TX jumpered to RX the bytes come straight back; without the
	//jumper the reads just time out, which is also a legal answer
	buf := make([]byte, 1024)
	if n, e := sc.Read(buf); e != nil && !IsTimeout(e) && !IsTemporary(e) {
		t.Log("Read", n, "bytes, error was", e)
		t.Error("Read is borked")
	}
}
