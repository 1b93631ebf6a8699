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

/*gwsnoop is a crappy netcat for the gateway frame protocol: it dials a
transport, decodes every frame that drifts past using a TOML device
profile, and can inject a command by name.  Optionally serves frame
counters for prometheus*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NCAR/gateway"
)

var (
	app     = kingpin.New("gwsnoop", "Snoop and inject gateway protocol frames on any transport")
	profile = app.Flag("profile", "TOML device profile").Short('p').Required().String()
	dial    = app.Flag("dial", "Dial string, overriding the profile's").Short('d').String()
	metrics = app.Flag("metrics", "Serve prometheus frame counters on this address").String()
	send    = app.Flag("send", "Inject a command: name or name={json params}").Strings()
	debug   = app.Flag("debug", "Log at debug level").Bool()
	timeout = app.Flag("timeout", "Transport connect timeout").Default("5s").Duration()
)

func main() {
	_ = kingpin.MustParse(app.Parse(os.Args[1:]))

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	prof, err := LoadProfile(*profile)
	if err != nil {
		log.Error("cannot load profile", "err", err)
		os.Exit(1)
	}
	if *dial != "" {
		prof.Dial = *dial
	}

	eng := gateway.NewEngine()
	if err := prof.Apply(eng); err != nil {
		log.Error("cannot apply profile", "err", err)
		os.Exit(1)
	}
	fmt.Fprint(os.Stderr, eng.Registry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	con, err := gateway.NewIDoIO(ctx, *timeout, prof.Dial)
	if err != nil {
		log.Error("cannot dial", "dial", prof.Dial, "err", err)
		os.Exit(1)
	}
	defer con.Close()

	trx := gateway.NewTransceiver(ctx, con)
	trx.SetLogger(log)
	defer trx.Close()

	if *metrics != "" {
		serveMetrics(log, *metrics, trx)
	}

	done := make(chan struct{})
	trx.Recv(func(f *gateway.Frame, err error) {
		if err != nil {
			log.Error("stream failed", "transport", con.String(), "err", err)
			close(done)
			return
		}
		printFrame(log, eng, f)
	})

	for _, s := range *send {
		inject(log, eng, trx, s)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigs:
		log.Info("interrupted")
	case <-done:
	}
	log.Info("session totals",
		"framesRx", trx.Stats().FramesRx,
		"framesTx", trx.Stats().FramesTx,
		"badChecksum", trx.Stats().BadChecksum)
}

/*printFrame decodes f through the engine and prints one line of JSON.
Unknown intents still print, payload as hex, so nothing silently vanishes*/
func printFrame(log *slog.Logger, eng *gateway.Engine, f *gateway.Frame) {
	intent, _ := f.Intent()
	label := intent.String()
	if name, ok := eng.NotificationName(intent); ok {
		label = name
	}
	v, err := eng.Unmarshal(f)
	if err != nil {
		payload, _ := f.Payload()
		fmt.Printf("%s %s <undecodable: %v> % x\n", time.Now().Format(time.RFC3339), label, err, payload)
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		log.Warn("cannot render value", "err", err)
		return
	}
	fmt.Printf("%s %s %s\n", time.Now().Format(time.RFC3339), label, raw)
}

/*inject parses a name={json} spec, marshals it through the engine and
queues it for transmission*/
func inject(log *slog.Logger, eng *gateway.Engine, trx *gateway.Transceiver, spec string) {
	name, params := spec, interface{}(nil)
	for i := 0; i < len(spec); i++ {
		if spec[i] == '=' {
			name = spec[:i]
			var v interface{}
			if err := json.Unmarshal([]byte(spec[i+1:]), &v); err != nil {
				log.Error("bad command params", "spec", spec, "err", err)
				return
			}
			params = v
			break
		}
	}
	intent, ok := eng.CommandIntent(name)
	if !ok {
		log.Error("unknown command", "name", name)
		return
	}
	f, err := eng.Marshal(intent, map[string]interface{}{
		"id":         uint32(time.Now().Unix()),
		"parameters": params,
	})
	if err != nil {
		log.Error("cannot marshal command", "name", name, "err", err)
		return
	}
	trx.Send(f, func(err error) {
		if err != nil {
			log.Error("send failed", "name", name, "err", err)
			return
		}
		log.Info("sent", "name", name, "intent", uint16(intent))
	})
}

/*serveMetrics exports the transceiver's counters at /metrics*/
func serveMetrics(log *slog.Logger, addr string, trx *gateway.Transceiver) {
	reg := prometheus.NewRegistry()
	counter := func(name, help string, get func(gateway.Stats) uint64) {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "gwsnoop",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(get(trx.Stats())) }))
	}
	counter("frames_rx_total", "Frames parsed off the wire", func(s gateway.Stats) uint64 { return s.FramesRx })
	counter("frames_tx_total", "Frames written to the wire", func(s gateway.Stats) uint64 { return s.FramesTx })
	counter("bytes_rx_total", "Bytes read from the transport", func(s gateway.Stats) uint64 { return s.BytesRx })
	counter("bytes_tx_total", "Bytes written to the transport", func(s gateway.Stats) uint64 { return s.BytesTx })
	counter("bad_signature_total", "Bytes dropped on signature mismatch", func(s gateway.Stats) uint64 { return s.BadSignature })
	counter("bad_version_total", "Bytes dropped on version mismatch", func(s gateway.Stats) uint64 { return s.BadVersion })
	counter("bad_checksum_total", "Frames dropped on checksum mismatch", func(s gateway.Stats) uint64 { return s.BadChecksum })

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		log.Info("metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics server failed", "err", err)
		}
	}()
}
