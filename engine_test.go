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
	"errors"
	"strings"
	"testing"

	uuid "github.com/satori/go.uuid"
)

func TestMarshalCommandResult(t *testing.T) {
	eng := NewEngine()
	f, err := eng.Marshal(IntentCommandResult, map[string]interface{}{
		"id":     42,
		"status": "Success",
		"result": "ok",
	})
	if err != nil {
		t.Fatal("marshal should not fail:", err)
	}

	v, err := eng.Unmarshal(f)
	if err != nil {
		t.Fatal("unmarshal should not fail:", err)
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		t.Fatal("expected an object back, got", v)
	}
	if obj["id"] != uint64(42) || obj["status"] != "Success" || obj["result"] != "ok" {
		t.Error("command result did not round trip:", obj)
	}
}

func TestMarshalUnknownIntent(t *testing.T) {
	eng := NewEngine()
	f, err := eng.Marshal(Intent(666), map[string]interface{}{"x": 1})
	if f != nil || !errors.Is(err, ErrUnknownIntent) {
		t.Error("marshal of an unregistered intent must fail hard, got", f, err)
	}
}

func TestUnmarshalUnknownIntent(t *testing.T) {
	//the frame arrived off the wire; unknown intent is the caller's call
	f, _ := NewFrame(Intent(666), []byte{1, 2, 3})
	eng := NewEngine()
	v, err := eng.Unmarshal(f)
	if v != nil || !errors.Is(err, ErrUnknownIntent) {
		t.Error("unmarshal of an unknown intent should yield nil + ErrUnknownIntent, got", v, err)
	}
}

func TestUnmarshalTruncatedPayload(t *testing.T) {
	//a frame whose payload is shorter than its layout demands must decode
	//loudly, equivalent in spirit to a bad checksum
	f, _ := NewFrame(IntentCommandResult, []byte{0x01, 0x02}) //id needs 4 bytes
	eng := NewEngine()
	if _, err := eng.Unmarshal(f); !errors.Is(err, ErrTruncated) {
		t.Error("expected ErrTruncated, got", err)
	}
}

func TestRegistrationResponseRoundTrip(t *testing.T) {
	//the registration response exercises every interesting layout shape:
	//uuid, nested object, arrays of records
	eng := NewEngine()
	id := uuid.FromStringOrNil("6f8c3bb0-24f1-4a41-bb8b-9dcf5e5f78a2")
	doc := map[string]interface{}{
		"id":   id,
		"key":  "secret",
		"name": "weatherbox",
		"deviceClass": map[string]interface{}{
			"name":    "sensor",
			"version": "1.2",
		},
		"equipment": []interface{}{
			map[string]interface{}{"name": "thermometer", "code": "t0", "type": "sensor"},
		},
		"notifications": []interface{}{
			map[string]interface{}{
				"intent": 257,
				"name":   "temperature",
				"params": []interface{}{
					map[string]interface{}{"type": uint64(TypeSingle), "name": "celsius"},
				},
			},
		},
		"commands": []interface{}{
			map[string]interface{}{
				"intent": 256,
				"name":   "setLED",
				"params": []interface{}{
					map[string]interface{}{"type": uint64(TypeUint8), "name": "state"},
				},
			},
		},
	}

	f, err := eng.Marshal(IntentRegistrationResponse, doc)
	if err != nil {
		t.Fatal("marshal of registration response failed:", err)
	}
	v, err := eng.Unmarshal(f)
	if err != nil {
		t.Fatal("unmarshal of registration response failed:", err)
	}
	got := v.(map[string]interface{})
	if got["id"] != id {
		t.Error("uuid did not round trip:", got["id"])
	}
	if got["key"] != "secret" || got["name"] != "weatherbox" {
		t.Error("scalar fields mangled:", got)
	}
	class := got["deviceClass"].(map[string]interface{})
	if class["name"] != "sensor" || class["version"] != "1.2" {
		t.Error("nested object mangled:", class)
	}
	equip := got["equipment"].([]interface{})
	if len(equip) != 1 || equip[0].(map[string]interface{})["code"] != "t0" {
		t.Error("record array mangled:", equip)
	}

	//and the engine should be able to learn from its own round trip
	if err := eng.HandleRegistration(v); err != nil {
		t.Fatal("HandleRegistration choked on a round tripped doc:", err)
	}
	if intent, ok := eng.CommandIntent("setLED"); !ok || intent != Intent(256) {
		t.Error("command table not learned:", intent, ok)
	}
	if name, ok := eng.NotificationName(Intent(257)); !ok || name != "temperature" {
		t.Error("notification table not learned:", name, ok)
	}

	//the learned command layout wraps the declared params in {id, parameters}
	cmd, err := eng.Marshal(Intent(256), map[string]interface{}{
		"id":         7,
		"parameters": map[string]interface{}{"state": 1},
	})
	if err != nil {
		t.Fatal("marshal via a learned command layout failed:", err)
	}
	back, err := eng.Unmarshal(cmd)
	if err != nil {
		t.Fatal("unmarshal via a learned command layout failed:", err)
	}
	bobj := back.(map[string]interface{})
	if bobj["id"] != uint64(7) {
		t.Error("command id mangled:", bobj)
	}
	if params := bobj["parameters"].(map[string]interface{}); params["state"] != uint64(1) {
		t.Error("command params mangled:", params)
	}

	//the learned notification layout is the bare params
	ntf, err := eng.Marshal(Intent(257), map[string]interface{}{"celsius": 21.5})
	if err != nil {
		t.Fatal("marshal via a learned notification layout failed:", err)
	}
	nv, err := eng.Unmarshal(ntf)
	if err != nil {
		t.Fatal("unmarshal via a learned notification layout failed:", err)
	}
	if c := nv.(map[string]interface{})["celsius"].(float64); c < 21.49 || c > 21.51 {
		t.Error("float param mangled:", c)
	}
}

func TestHandleRegistrationRejectsReservedIntents(t *testing.T) {
	eng := NewEngine()
	err := eng.HandleRegistration(map[string]interface{}{
		"commands": []interface{}{
			map[string]interface{}{"intent": 7, "name": "sneaky", "params": []interface{}{}},
		},
	})
	if !errors.Is(err, ErrReservedIntent) {
		t.Error("a device claiming a system intent must be rejected, got", err)
	}
}

func TestHandleRegistrationBadEntries(t *testing.T) {
	//an absent intent is a schema error, not an accidental claim on
	//intent 0
	eng := NewEngine()
	err := eng.HandleRegistration(map[string]interface{}{
		"commands": []interface{}{
			map[string]interface{}{"name": "orphan", "params": []interface{}{}},
		},
	})
	if !errors.Is(err, ErrInvalidSchema) {
		t.Error("missing intent should be ErrInvalidSchema, got", err)
	}

	//same for an explicit null intent
	err = eng.HandleRegistration(map[string]interface{}{
		"notifications": []interface{}{
			map[string]interface{}{"intent": nil, "name": "ghost", "params": []interface{}{}},
		},
	})
	if !errors.Is(err, ErrInvalidSchema) {
		t.Error("null intent should be ErrInvalidSchema, got", err)
	}

	//a parameter type of 256 must not wrap around into null
	err = eng.HandleRegistration(map[string]interface{}{
		"notifications": []interface{}{
			map[string]interface{}{"intent": 300, "name": "wide", "params": []interface{}{
				map[string]interface{}{"type": 256, "name": "x"},
			}},
		},
	})
	if !errors.Is(err, ErrUnknownType) {
		t.Error("out of range type should be ErrUnknownType, got", err)
	}
}

func TestHandleRegistration2(t *testing.T) {
	eng := NewEngine()
	doc := `{
		"commands": [
			{"intent": 300, "name": "configure", "params": {
				"interval": "u16",
				"mode": "string",
				"thresholds": [{"low": "i16", "high": "i16"}]
			}},
			{"intent": 301, "name": "ping", "params": null},
			{"intent": 302, "name": "echo", "params": "string"}
		],
		"notifications": [
			{"intent": 400, "name": "reading", "params": {"celsius": "f32", "tag": "s"}},
			{"intent": 401, "name": "heartbeat", "params": null}
		]
	}`
	if err := eng.HandleRegistration2(doc); err != nil {
		t.Fatal("HandleRegistration2 failed:", err)
	}

	for name, intent := range map[string]Intent{"configure": 300, "ping": 301, "echo": 302} {
		if got, ok := eng.CommandIntent(name); !ok || got != intent {
			t.Errorf("command %q not learned: %v %v", name, got, ok)
		}
	}
	if name, ok := eng.NotificationName(Intent(400)); !ok || name != "reading" {
		t.Error("notification not learned:", name, ok)
	}

	//drive a learned layout with nested array-of-records params
	f, err := eng.Marshal(Intent(300), map[string]interface{}{
		"id": 1,
		"parameters": map[string]interface{}{
			"interval": 30,
			"mode":     "fast",
			"thresholds": []interface{}{
				map[string]interface{}{"low": -10, "high": 45},
			},
		},
	})
	if err != nil {
		t.Fatal("marshal of a nested learned layout failed:", err)
	}
	v, err := eng.Unmarshal(f)
	if err != nil {
		t.Fatal("unmarshal of a nested learned layout failed:", err)
	}
	params := v.(map[string]interface{})["parameters"].(map[string]interface{})
	if params["interval"] != uint64(30) || params["mode"] != "fast" {
		t.Error("params mangled:", params)
	}
	th := params["thresholds"].([]interface{})[0].(map[string]interface{})
	if th["low"] != int64(-10) || th["high"] != int64(45) {
		t.Error("threshold record mangled:", th)
	}

	//a notification with null params decodes to nothing at all
	hb, err := eng.Marshal(Intent(401), nil)
	if err != nil {
		t.Fatal("marshal of a null-param notification failed:", err)
	}
	if p, _ := hb.Payload(); len(p) != 0 {
		t.Error("null params should carry no payload bytes, got", p)
	}
}

func TestHandleRegistration2BadSchemas(t *testing.T) {
	cases := map[string]string{
		"not json":           `{"commands": [}`,
		"array of size 2":    `{"commands": [{"intent": 300, "name": "x", "params": [{"a":"u8"},{"b":"u8"}]}]}`,
		"bool param":         `{"commands": [{"intent": 300, "name": "x", "params": true}]}`,
		"bad alias":          `{"commands": [{"intent": 300, "name": "x", "params": "quaternion"}]}`,
		"missing name":       `{"commands": [{"intent": 300, "params": "u8"}]}`,
		"missing intent":     `{"commands": [{"name": "x", "params": "u8"}]}`,
		"entry not object":   `{"commands": [42]}`,
	}
	for label, doc := range cases {
		eng := NewEngine()
		if err := eng.HandleRegistration2(doc); err == nil {
			t.Errorf("schema %q should have been rejected", label)
		}
	}

	//the missing-intent rejection must carry the schema error, not fall
	//through to a reserved-intent collision at 0
	eng := NewEngine()
	err := eng.HandleRegistration2(`{"commands": [{"name": "x", "params": "u8"}]}`)
	if !errors.Is(err, ErrInvalidSchema) {
		t.Error("missing intent should be ErrInvalidSchema, got", err)
	}
}

func TestEngineString(t *testing.T) {
	eng := NewEngine()
	eng.HandleRegistration2(`{"commands":[{"intent":300,"name":"configure","params":null}],
		"notifications":[{"intent":400,"name":"reading","params":null}]}`)
	s := eng.String()
	for _, want := range []string{"configure", "reading", "command", "notification"} {
		if !strings.Contains(s, want) {
			t.Errorf("engine table missing %q:\n%s", want, s)
		}
	}
}

func TestBinaryAndBoolFields(t *testing.T) {
	eng := NewEngine()
	if err := eng.HandleRegistration2(`{"notifications":[
		{"intent": 500, "name": "blob", "params": {"data": "bin", "ok": "bool", "raw": "b"}}
	]}`); err != nil {
		t.Fatal("registration failed:", err)
	}
	f, err := eng.Marshal(Intent(500), map[string]interface{}{
		"data": []byte{0xDE, 0xAD},
		"ok":   true,
		"raw":  []byte{},
	})
	if err != nil {
		t.Fatal("marshal failed:", err)
	}
	v, err := eng.Unmarshal(f)
	if err != nil {
		t.Fatal("unmarshal failed:", err)
	}
	obj := v.(map[string]interface{})
	if !bytes.Equal(obj["data"].([]byte), []byte{0xDE, 0xAD}) {
		t.Error("binary field mangled:", obj["data"])
	}
	if obj["ok"] != true {
		t.Error("bool field mangled:", obj["ok"])
	}
	if len(obj["raw"].([]byte)) != 0 {
		t.Error("empty binary field mangled:", obj["raw"])
	}
}
