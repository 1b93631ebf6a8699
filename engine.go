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
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

/*Engine bridges structured application values and binary Frames using the
Layout abstraction.  It owns a Registry of intent layouts plus the
command-name to intent and intent to notification-name tables learned from
a device's registration handshake.  One Engine per connection: the tables
are that device's vocabulary, not global state.

Structured values follow the encoding/json conventions:
map[string]interface{} for objects, []interface{} for arrays, plus
numbers, strings, bools, []byte for binary and uuid.UUID for uuids*/
type Engine struct {
	registry *Registry

	mux           sync.RWMutex
	commands      map[string]Intent
	notifications map[Intent]string
}

/*NewEngine returns an Engine with a fresh Registry holding only the system
layouts*/
func NewEngine() *Engine {
	return &Engine{
		registry:      NewRegistry(),
		commands:      map[string]Intent{},
		notifications: map[Intent]string{},
	}
}

/*Registry exposes the engine's intent registry*/
func (e *Engine) Registry() *Registry {
	return e.registry
}

/*Marshal converts a structured value into a Frame using the layout
registered for intent.  An unknown intent is a hard error: there is no way
to format a message whose shape the engine has never learned*/
func (e *Engine) Marshal(intent Intent, v interface{}) (*Frame, error) {
	layout, ok := e.registry.Find(intent)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownIntent, "marshal intent %d", uint16(intent))
	}
	buf := bytes.NewBuffer(nil)
	if err := encodeLayout(NewEncoder(buf), layout, v); err != nil {
		return nil, errors.Wrapf(err, "marshal intent %d", uint16(intent))
	}
	return NewFrame(intent, buf.Bytes())
}

/*Unmarshal converts a Frame's payload back into a structured value.  An
unknown intent is soft here - the frame arrived off the wire, so the
caller decides whether to log and drop it or treat it as a protocol
violation - and is reported as a nil value plus ErrUnknownIntent*/
func (e *Engine) Unmarshal(f *Frame) (interface{}, error) {
	intent, ok := f.Intent()
	if !ok {
		return nil, errors.Wrap(ErrTruncated, "frame too short for a header")
	}
	layout, ok := e.registry.Find(intent)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownIntent, "unmarshal intent %d", uint16(intent))
	}
	payload, ok := f.Payload()
	if !ok {
		return nil, errors.Wrap(ErrTruncated, "frame too short for a payload")
	}
	return decodeLayout(NewDecoder(bytes.NewReader(payload)), layout)
}

/*CommandIntent returns the wire intent a device registered for the named
command*/
func (e *Engine) CommandIntent(name string) (Intent, bool) {
	e.mux.RLock()
	defer e.mux.RUnlock()
	i, ok := e.commands[name]
	return i, ok
}

/*NotificationName returns the logical name a device registered for a
notification intent*/
func (e *Engine) NotificationName(intent Intent) (string, bool) {
	e.mux.RLock()
	defer e.mux.RUnlock()
	n, ok := e.notifications[intent]
	return n, ok
}

/*String implements the Stringer interface, rendering the learned
command/notification vocabulary as a table*/
func (e *Engine) String() string {
	e.mux.RLock()
	type row struct {
		kind, name string
		intent     Intent
	}
	rows := []row{}
	for name, intent := range e.commands {
		rows = append(rows, row{"command", name, intent})
	}
	for intent, name := range e.notifications {
		rows = append(rows, row{"notification", name, intent})
	}
	e.mux.RUnlock()
	sort.Slice(rows, func(i, j int) bool { return rows[i].intent < rows[j].intent })

	buf := bytes.NewBufferString("")
	tw := tablewriter.NewWriter(buf)
	tw.SetAutoWrapText(false)
	tw.SetHeader([]string{"Intent", "Kind", "Name"})
	for _, r := range rows {
		tw.Append([]string{fmt.Sprintf("%d", uint16(r.intent)), r.kind, r.name})
	}
	tw.Render()
	return buf.String()
}

/*HandleRegistration processes the structured payload of a binary
registration response (intent 1): a listing of the device's commands and
notifications, each with a wire intent, a logical name and a parameter
list of type/name pairs.  Each command gets a synthetic layout
{id:uint32, parameters:object{...}} so the service can address command
invocations by id; each notification gets a layout built straight from
its declared parameters.  Both are registered into the intent registry and
the name tables.  A malformed listing aborts with ErrInvalidSchema and
registers nothing further*/
func (e *Engine) HandleRegistration(v interface{}) error {
	doc, ok := v.(map[string]interface{})
	if !ok {
		return errors.Wrap(ErrInvalidSchema, "registration payload is not an object")
	}

	for _, c := range asArray(doc["commands"]) {
		cmd, ok := c.(map[string]interface{})
		if !ok {
			return errors.Wrap(ErrInvalidSchema, "command entry is not an object")
		}
		intent, name, params, err := registrationEntry(cmd)
		if err != nil {
			return err
		}
		sub, err := layoutFromTypedParams(params)
		if err != nil {
			return errors.Wrapf(err, "command %q", name)
		}
		layout := NewLayout()
		layout.Add("id", TypeUint32, nil)
		layout.Add("parameters", TypeObject, sub)
		if err := e.registry.Register(intent, layout); err != nil {
			return errors.Wrapf(err, "command %q", name)
		}
		e.mux.Lock()
		e.commands[name] = intent
		e.mux.Unlock()
	}

	for _, n := range asArray(doc["notifications"]) {
		ntf, ok := n.(map[string]interface{})
		if !ok {
			return errors.Wrap(ErrInvalidSchema, "notification entry is not an object")
		}
		intent, name, params, err := registrationEntry(ntf)
		if err != nil {
			return err
		}
		layout, err := layoutFromTypedParams(params)
		if err != nil {
			return errors.Wrapf(err, "notification %q", name)
		}
		if err := e.registry.Register(intent, layout); err != nil {
			return errors.Wrapf(err, "notification %q", name)
		}
		e.mux.Lock()
		e.notifications[intent] = name
		e.mux.Unlock()
	}
	return nil
}

/*registrationEntry pulls the intent/name/params triple out of one
command or notification listing*/
func registrationEntry(m map[string]interface{}) (Intent, string, []interface{}, error) {
	raw, ok := m["intent"]
	if !ok || raw == nil {
		return 0, "", nil, errors.Wrap(ErrInvalidSchema, "entry missing an intent")
	}
	iv, err := toUint64(raw)
	if err != nil {
		return 0, "", nil, errors.Wrap(ErrInvalidSchema, "entry missing a numeric intent")
	}
	name, ok := m["name"].(string)
	if !ok || name == "" {
		return 0, "", nil, errors.Wrap(ErrInvalidSchema, "entry missing a name")
	}
	return Intent(iv), name, asArray(m["params"]), nil
}

/*layoutFromTypedParams builds a layout from the binary registration form
of a parameter list: an array of {type:uint8, name:string} pairs*/
func layoutFromTypedParams(params []interface{}) (*Layout, error) {
	layout := NewLayout()
	for _, p := range params {
		pm, ok := p.(map[string]interface{})
		if !ok {
			return nil, errors.Wrap(ErrInvalidSchema, "parameter entry is not an object")
		}
		tv, err := toUint64(pm["type"])
		if err != nil {
			return nil, errors.Wrap(ErrInvalidSchema, "parameter missing a numeric type")
		}
		//range check before the uint8 conversion, or 256 aliases to null
		if tv > math.MaxUint8 {
			return nil, errors.Wrapf(ErrUnknownType, "parameter type %d", tv)
		}
		t := DataType(tv)
		if _, ok := dataTypeNames[t]; !ok {
			return nil, errors.Wrapf(ErrUnknownType, "parameter type %d", tv)
		}
		name, _ := pm["name"].(string)
		if err := layout.Add(name, t, nil); err != nil {
			return nil, err
		}
	}
	return layout, nil
}

/*HandleRegistration2 processes the JSON-native registration variant
(intent 3): doc is the JSON registration document itself, with parameter
types spelled as strings ("u8", "string", ...) and nested object/array
descriptions.  The resulting layout registrations are equivalent to
HandleRegistration's*/
func (e *Engine) HandleRegistration2(doc string) error {
	var v map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return errors.Wrap(ErrInvalidSchema, err.Error())
	}

	for _, c := range asArray(v["commands"]) {
		cmd, ok := c.(map[string]interface{})
		if !ok {
			return errors.Wrap(ErrInvalidSchema, "command entry is not an object")
		}
		intent, name, err := registration2Entry(cmd)
		if err != nil {
			return err
		}
		param, err := elementFromDescription("parameters", cmd["params"])
		if err != nil {
			return errors.Wrapf(err, "command %q", name)
		}
		layout := NewLayout()
		layout.Add("id", TypeUint32, nil)
		layout.elems = append(layout.elems, param)
		if err := e.registry.Register(intent, layout); err != nil {
			return errors.Wrapf(err, "command %q", name)
		}
		e.mux.Lock()
		e.commands[name] = intent
		e.mux.Unlock()
	}

	for _, n := range asArray(v["notifications"]) {
		ntf, ok := n.(map[string]interface{})
		if !ok {
			return errors.Wrap(ErrInvalidSchema, "notification entry is not an object")
		}
		intent, name, err := registration2Entry(ntf)
		if err != nil {
			return err
		}
		layout, err := layoutFromDescription(ntf["params"])
		if err != nil {
			return errors.Wrapf(err, "notification %q", name)
		}
		if err := e.registry.Register(intent, layout); err != nil {
			return errors.Wrapf(err, "notification %q", name)
		}
		e.mux.Lock()
		e.notifications[intent] = name
		e.mux.Unlock()
	}
	return nil
}

func registration2Entry(m map[string]interface{}) (Intent, string, error) {
	raw, ok := m["intent"]
	if !ok || raw == nil {
		return 0, "", errors.Wrap(ErrInvalidSchema, "entry missing an intent")
	}
	iv, err := toUint64(raw)
	if err != nil {
		return 0, "", errors.Wrap(ErrInvalidSchema, "entry missing a numeric intent")
	}
	name, ok := m["name"].(string)
	if !ok || name == "" {
		return 0, "", errors.Wrap(ErrInvalidSchema, "entry missing a name")
	}
	return Intent(iv), name, nil
}

/*elementFromDescription turns one JSON parameter description into a layout
element.  Accepted shapes:

  null            - no data (TypeNull)
  "u8"            - a primitive, via the ParseDataType alias table
  {"a":..,"b":..} - an object whose members are described recursively;
                    members are laid out in sorted name order since JSON
                    object order does not survive decoding
  [desc]          - an array (exactly one element describing the items)

Anything else is ErrInvalidSchema*/
func elementFromDescription(name string, desc interface{}) (Element, error) {
	switch d := desc.(type) {
	case nil:
		return Element{Name: name, Type: TypeNull}, nil
	case string:
		t, err := ParseDataType(d)
		if err != nil {
			return Element{}, err
		}
		return Element{Name: name, Type: t}, nil
	case map[string]interface{}:
		sub := NewLayout()
		members := make([]string, 0, len(d))
		for m := range d {
			members = append(members, m)
		}
		sort.Strings(members)
		for _, m := range members {
			el, err := elementFromDescription(m, d[m])
			if err != nil {
				return Element{}, err
			}
			if el.Name == "" {
				return Element{}, errors.Wrap(ErrInvalidSchema, "object member must be named")
			}
			if _, dup := sub.Find(el.Name); dup {
				return Element{}, errors.Wrapf(ErrDuplicateField, "field %q", el.Name)
			}
			sub.elems = append(sub.elems, el)
		}
		return Element{Name: name, Type: TypeObject, Sub: sub}, nil
	case []interface{}:
		if len(d) != 1 {
			return Element{}, errors.Wrapf(ErrInvalidSchema, "array description must have exactly 1 element, got %d", len(d))
		}
		item, err := elementFromDescription("", d[0])
		if err != nil {
			return Element{}, err
		}
		sub := NewLayout()
		if item.Type == TypeObject {
			//array of records: flatten the item's members into the sub layout
			sub = item.Sub
		} else {
			sub.elems = append(sub.elems, item)
		}
		return Element{Name: name, Type: TypeArray, Sub: sub}, nil
	}
	return Element{}, errors.Wrapf(ErrInvalidSchema, "unsupported parameter description %T", desc)
}

/*layoutFromDescription builds a whole-payload layout from a JSON parameter
description: objects spread their members into the layout, anything else
becomes a single anonymous field*/
func layoutFromDescription(desc interface{}) (*Layout, error) {
	el, err := elementFromDescription("", desc)
	if err != nil {
		return nil, err
	}
	if el.Type == TypeObject {
		return el.Sub, nil
	}
	layout := NewLayout()
	layout.elems = append(layout.elems, el)
	return layout, nil
}

/*encodeLayout writes v per the layout.  Layouts holding a single anonymous
element describe the whole value; otherwise v must be an object and each
named element is pulled from it (absent members encode as zero values)*/
func encodeLayout(enc *Encoder, layout *Layout, v interface{}) error {
	if layout.Len() == 1 && layout.elems[0].Name == "" {
		return encodeElement(enc, layout.elems[0], v)
	}
	obj, _ := v.(map[string]interface{})
	for _, el := range layout.elems {
		if err := encodeElement(enc, el, obj[el.Name]); err != nil {
			return errors.Wrapf(err, "field %q", el.Name)
		}
	}
	return nil
}

func encodeElement(enc *Encoder, el Element, v interface{}) error {
	switch el.Type {
	case TypeNull:
		return nil
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		i, err := toInt64(v)
		if err != nil {
			return err
		}
		switch el.Type {
		case TypeInt8:
			return enc.PutUint8(uint8(i))
		case TypeInt16:
			return enc.PutUint16(uint16(i), LittleEndian)
		case TypeInt32:
			return enc.PutUint32(uint32(i), LittleEndian)
		}
		return enc.PutUint64(uint64(i), LittleEndian)
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		u, err := toUint64(v)
		if err != nil {
			return err
		}
		switch el.Type {
		case TypeUint8:
			return enc.PutUint8(uint8(u))
		case TypeUint16:
			return enc.PutUint16(uint16(u), LittleEndian)
		case TypeUint32:
			return enc.PutUint32(uint32(u), LittleEndian)
		}
		return enc.PutUint64(u, LittleEndian)
	case TypeSingle:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		return enc.PutUint32(math.Float32bits(float32(f)), LittleEndian)
	case TypeDouble:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		return enc.PutUint64(math.Float64bits(f), LittleEndian)
	case TypeBool:
		b, _ := v.(bool)
		if b {
			return enc.PutUint8(1)
		}
		return enc.PutUint8(0)
	case TypeUUID:
		u, err := toUUID(v)
		if err != nil {
			return err
		}
		return enc.PutBytes(u.Bytes())
	case TypeString:
		s, err := toString(v)
		if err != nil {
			return err
		}
		return putSized(enc, []byte(s))
	case TypeBinary:
		b, err := toBinary(v)
		if err != nil {
			return err
		}
		return putSized(enc, b)
	case TypeArray:
		items := asArray(v)
		if len(items) > math.MaxUint16 {
			return errors.Errorf("array of %d items exceeds the 16 bit count", len(items))
		}
		if err := enc.PutUint16(uint16(len(items)), LittleEndian); err != nil {
			return err
		}
		for _, item := range items {
			if err := encodeLayout(enc, el.Sub, item); err != nil {
				return err
			}
		}
		return nil
	case TypeObject:
		return encodeLayout(enc, el.Sub, v)
	}
	return errors.Wrapf(ErrUnknownType, "data type %d", uint8(el.Type))
}

/*putSized writes the 16 bit length prefix + raw bytes form used by string
and binary layout fields.  Note this differs from Encoder.PutString, which
is the varint-prefixed codec primitive*/
func putSized(enc *Encoder, b []byte) error {
	if len(b) > math.MaxUint16 {
		return errors.Errorf("value of %d bytes exceeds the 16 bit length", len(b))
	}
	if err := enc.PutUint16(uint16(len(b)), LittleEndian); err != nil {
		return err
	}
	return enc.PutBytes(b)
}

/*decodeLayout is the inverse of encodeLayout: single-anonymous-element
layouts decode to the bare value, everything else to an object*/
func decodeLayout(dec *Decoder, layout *Layout) (interface{}, error) {
	if layout.Len() == 1 && layout.elems[0].Name == "" {
		return decodeElement(dec, layout.elems[0])
	}
	obj := map[string]interface{}{}
	for _, el := range layout.elems {
		v, err := decodeElement(dec, el)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", el.Name)
		}
		obj[el.Name] = v
	}
	return obj, nil
}

func decodeElement(dec *Decoder, el Element) (interface{}, error) {
	switch el.Type {
	case TypeNull:
		return nil, nil
	case TypeInt8:
		v, err := dec.Uint8()
		return int64(int8(v)), err
	case TypeInt16:
		v, err := dec.Uint16(LittleEndian)
		return int64(int16(v)), err
	case TypeInt32:
		v, err := dec.Uint32(LittleEndian)
		return int64(int32(v)), err
	case TypeInt64:
		v, err := dec.Uint64(LittleEndian)
		return int64(v), err
	case TypeUint8:
		v, err := dec.Uint8()
		return uint64(v), err
	case TypeUint16:
		v, err := dec.Uint16(LittleEndian)
		return uint64(v), err
	case TypeUint32:
		v, err := dec.Uint32(LittleEndian)
		return uint64(v), err
	case TypeUint64:
		return dec.Uint64(LittleEndian)
	case TypeSingle:
		v, err := dec.Uint32(LittleEndian)
		return float64(math.Float32frombits(v)), err
	case TypeDouble:
		v, err := dec.Uint64(LittleEndian)
		return math.Float64frombits(v), err
	case TypeBool:
		v, err := dec.Uint8()
		return v != 0, err
	case TypeUUID:
		b, err := dec.Bytes(16)
		if err != nil {
			return nil, err
		}
		return uuid.FromBytes(b)
	case TypeString:
		b, err := getSized(dec)
		return string(b), err
	case TypeBinary:
		return getSized(dec)
	case TypeArray:
		count, err := dec.Uint16(LittleEndian)
		if err != nil {
			return nil, err
		}
		items := make([]interface{}, 0, count)
		for i := 0; i < int(count); i++ {
			item, err := decodeLayout(dec, el.Sub)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	case TypeObject:
		return decodeLayout(dec, el.Sub)
	}
	return nil, errors.Wrapf(ErrUnknownType, "data type %d", uint8(el.Type))
}

func getSized(dec *Decoder) ([]byte, error) {
	n, err := dec.Uint16(LittleEndian)
	if err != nil {
		return nil, err
	}
	return dec.Bytes(int(n))
}

/*value coercions - structured values arrive from encoding/json (float64
numbers), from hand built maps (Go ints) or from a previous Unmarshal
(int64/uint64), so the encoder meets numbers in many costumes*/

func asArray(v interface{}) []interface{} {
	a, _ := v.([]interface{})
	return a
}

func toUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case uint64:
		return n, nil
	case uint:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case int:
		return uint64(n), nil
	case int8:
		return uint64(n), nil
	case int16:
		return uint64(n), nil
	case int32:
		return uint64(n), nil
	case int64:
		return uint64(n), nil
	case float64:
		return uint64(n), nil
	case float32:
		return uint64(n), nil
	case Intent:
		return uint64(n), nil
	case json.Number:
		i, err := n.Int64()
		return uint64(i), err
	}
	return 0, errors.Errorf("cannot coerce %T to an unsigned integer", v)
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	}
	return 0, errors.Errorf("cannot coerce %T to an integer", v)
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, errors.Errorf("cannot coerce %T to a float", v)
}

func toString(v interface{}) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", errors.Errorf("cannot coerce %T to a string", v)
}

func toBinary(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return nil, errors.Errorf("cannot coerce %T to binary", v)
}

func toUUID(v interface{}) (uuid.UUID, error) {
	switch u := v.(type) {
	case nil:
		return uuid.Nil, nil
	case uuid.UUID:
		return u, nil
	case string:
		return uuid.FromString(u)
	case []byte:
		if len(u) == 16 {
			return uuid.FromBytes(u)
		}
		return uuid.FromString(string(u))
	}
	return uuid.Nil, errors.Errorf("cannot coerce %T to a uuid", v)
}
