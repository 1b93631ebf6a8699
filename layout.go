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
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
)

/*DataType enumerates the wire primitive kinds a layout element can carry.
Fixed size types occupy exactly their stated width; String, Binary and
Array are length prefixed with a 16 bit count; Object nests a sub layout
with no prefix of its own*/
type DataType uint8

const (
	TypeNull DataType = iota
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeSingle
	TypeDouble
	TypeBool
	TypeUUID
	TypeString
	TypeBinary
	TypeArray
	TypeObject
)

var dataTypeNames = map[DataType]string{
	TypeNull:   "null",
	TypeInt8:   "int8",
	TypeUint8:  "uint8",
	TypeInt16:  "int16",
	TypeUint16: "uint16",
	TypeInt32:  "int32",
	TypeUint32: "uint32",
	TypeInt64:  "int64",
	TypeUint64: "uint64",
	TypeSingle: "single",
	TypeDouble: "double",
	TypeBool:   "bool",
	TypeUUID:   "uuid",
	TypeString: "string",
	TypeBinary: "binary",
	TypeArray:  "array",
	TypeObject: "object",
}

/*String implements the Stringer interface*/
func (t DataType) String() string {
	if n, ok := dataTypeNames[t]; ok {
		return n
	}
	return "unknown"
}

/*dataTypeAliases maps the (lowercased) spellings devices are allowed to use
in registration documents onto DataTypes.  Devices are written by people
with firmware-sized patience, so most types answer to several names*/
var dataTypeAliases = map[string]DataType{
	"null": TypeNull, "none": TypeNull, "void": TypeNull,
	"i8": TypeInt8, "int8": TypeInt8, "byte": TypeInt8,
	"u8": TypeUint8, "uint8": TypeUint8, "ubyte": TypeUint8,
	"i16": TypeInt16, "int16": TypeInt16, "short": TypeInt16,
	"u16": TypeUint16, "uint16": TypeUint16, "ushort": TypeUint16,
	"i32": TypeInt32, "int32": TypeInt32, "int": TypeInt32,
	"u32": TypeUint32, "uint32": TypeUint32, "uint": TypeUint32,
	"i64": TypeInt64, "int64": TypeInt64, "long": TypeInt64,
	"u64": TypeUint64, "uint64": TypeUint64, "ulong": TypeUint64,
	"f": TypeSingle, "f32": TypeSingle, "single": TypeSingle, "float": TypeSingle,
	"ff": TypeDouble, "f64": TypeDouble, "double": TypeDouble,
	"bool": TypeBool, "boolean": TypeBool,
	"uuid": TypeUUID, "guid": TypeUUID,
	"s": TypeString, "str": TypeString, "string": TypeString,
	"b": TypeBinary, "bin": TypeBinary, "binary": TypeBinary,
	"array": TypeArray,
	"object": TypeObject,
}

/*ParseDataType maps a case-insensitive type alias from a registration
document to a DataType. Unrecognized aliases return ErrUnknownType*/
func ParseDataType(alias string) (DataType, error) {
	if t, ok := dataTypeAliases[strings.ToLower(strings.TrimSpace(alias))]; ok {
		return t, nil
	}
	return TypeNull, errors.Wrapf(ErrUnknownType, "alias %q", alias)
}

/*Element is one named, typed field of a Layout. Array and Object elements
carry a Sub layout describing their element/member structure; everything
else leaves Sub nil*/
type Element struct {
	Name string
	Type DataType
	Sub  *Layout
}

/*Layout is an ordered sequence of named Elements describing the binary
shape of one message payload.  Order is the wire contract.  Layouts are
built once (typically while processing a registration handshake) and must
not be mutated once handed to a Registry or Engine*/
type Layout struct {
	elems []Element
}

/*NewLayout returns an empty Layout*/
func NewLayout() *Layout {
	return &Layout{}
}

/*Add appends an element.  Names within one layout must be unique; the one
exception is the empty name, used when the whole payload is a single
anonymous field.  Violations return ErrDuplicateField*/
func (l *Layout) Add(name string, t DataType, sub *Layout) error {
	if name != "" {
		if _, ok := l.Find(name); ok {
			return errors.Wrapf(ErrDuplicateField, "field %q", name)
		}
	}
	l.elems = append(l.elems, Element{Name: name, Type: t, Sub: sub})
	return nil
}

/*Find returns the element with the given name, if present*/
func (l *Layout) Find(name string) (Element, bool) {
	for _, e := range l.elems {
		if e.Name == name {
			return e, true
		}
	}
	return Element{}, false
}

/*Elements returns the layout's elements in declared (wire) order*/
func (l *Layout) Elements() []Element {
	return l.elems
}

/*Len returns the number of elements*/
func (l *Layout) Len() int {
	return len(l.elems)
}

/*describe renders a layout as a compact single line, nesting as needed*/
func (l *Layout) describe() string {
	if l == nil {
		return "-"
	}
	parts := make([]string, 0, len(l.elems))
	for _, e := range l.elems {
		switch e.Type {
		case TypeArray, TypeObject:
			parts = append(parts, fmt.Sprintf("%s:%s{%s}", e.Name, e.Type, e.Sub.describe()))
		default:
			parts = append(parts, fmt.Sprintf("%s:%s", e.Name, e.Type))
		}
	}
	return strings.Join(parts, " ")
}

/*String implements the Stringer interface*/
func (l *Layout) String() string {
	return l.describe()
}

/*Intent identifies which Layout applies to a Frame's payload; think of it
as a message type tag.  Intents 0-255 are reserved for the system
handshake messages below; devices register their own vocabulary at 256 and
up during the registration handshake*/
type Intent uint16

const (
	IntentRegistrationRequest   = Intent(0)
	IntentRegistrationResponse  = Intent(1)
	IntentCommandResult         = Intent(2)
	IntentRegistration2Response = Intent(3)

	//UserIntentBase is the first intent devices may claim for themselves
	UserIntentBase = Intent(256)
)

var intentNames = map[Intent]string{
	IntentRegistrationRequest:   "RegistrationRequest",
	IntentRegistrationResponse:  "RegistrationResponse",
	IntentCommandResult:         "CommandResult",
	IntentRegistration2Response: "Registration2Response",
}

/*String implements the Stringer interface*/
func (i Intent) String() string {
	if n, ok := intentNames[i]; ok {
		return n
	}
	return fmt.Sprintf("Intent(%d)", uint16(i))
}

/*system layouts - these are fixed wire formats shared with every peer
speaking protocol version 1 and must stay bit-exact*/

func registrationRequestLayout() *Layout {
	l := NewLayout()
	l.Add("data", TypeNull, nil)
	return l
}

func registrationResponseLayout() *Layout {
	class := NewLayout()
	class.Add("name", TypeString, nil)
	class.Add("version", TypeString, nil)

	equip := NewLayout()
	equip.Add("name", TypeString, nil)
	equip.Add("code", TypeString, nil)
	equip.Add("type", TypeString, nil)

	params := NewLayout()
	params.Add("type", TypeUint8, nil)
	params.Add("name", TypeString, nil)

	msg := NewLayout()
	msg.Add("intent", TypeUint16, nil)
	msg.Add("name", TypeString, nil)
	msg.Add("params", TypeArray, params)

	l := NewLayout()
	l.Add("id", TypeUUID, nil)
	l.Add("key", TypeString, nil)
	l.Add("name", TypeString, nil)
	l.Add("deviceClass", TypeObject, class)
	l.Add("equipment", TypeArray, equip)
	l.Add("notifications", TypeArray, msg)
	l.Add("commands", TypeArray, msg)
	return l
}

func registration2ResponseLayout() *Layout {
	l := NewLayout()
	l.Add("json", TypeString, nil)
	return l
}

func commandResultLayout() *Layout {
	l := NewLayout()
	l.Add("id", TypeUint32, nil)
	l.Add("status", TypeString, nil)
	l.Add("result", TypeString, nil)
	return l
}

/*Registry maps intents to Layouts for one gateway/device connection.  The
four system intents are installed at construction and cannot be replaced
or removed; user intents come and go as devices announce their
capabilities.  Safe for use from multiple goroutines, as the Transceiver's
read loop and the application usually race on it*/
type Registry struct {
	mux     sync.RWMutex
	layouts map[Intent]*Layout
}

/*NewRegistry returns a Registry pre-populated with the system layouts*/
func NewRegistry() *Registry {
	return &Registry{
		layouts: map[Intent]*Layout{
			IntentRegistrationRequest:   registrationRequestLayout(),
			IntentRegistrationResponse:  registrationResponseLayout(),
			IntentCommandResult:         commandResultLayout(),
			IntentRegistration2Response: registration2ResponseLayout(),
		},
	}
}

/*Register installs a layout for a user intent.  Intents below
UserIntentBase belong to the system and return ErrReservedIntent*/
func (r *Registry) Register(intent Intent, l *Layout) error {
	if intent < UserIntentBase {
		return errors.Wrapf(ErrReservedIntent, "intent %d", uint16(intent))
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	r.layouts[intent] = l
	return nil
}

/*Unregister removes a user intent.  Reserved or absent intents are a no-op*/
func (r *Registry) Unregister(intent Intent) {
	if intent < UserIntentBase {
		return
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	delete(r.layouts, intent)
}

/*Find returns the layout registered for intent, if any*/
func (r *Registry) Find(intent Intent) (*Layout, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	l, ok := r.layouts[intent]
	return l, ok
}

/*String implements the Stringer interface, rendering the registered
intents as a table*/
func (r *Registry) String() string {
	r.mux.RLock()
	intents := make([]int, 0, len(r.layouts))
	for i := range r.layouts {
		intents = append(intents, int(i))
	}
	r.mux.RUnlock()
	sort.Ints(intents)

	buf := bytes.NewBufferString("")
	tw := tablewriter.NewWriter(buf)
	tw.SetAutoWrapText(false)
	tw.SetHeader([]string{"Intent", "Name", "Layout"})
	for _, i := range intents {
		intent := Intent(i)
		l, _ := r.Find(intent)
		tw.Append([]string{
			fmt.Sprintf("%d", i),
			intent.String(),
			l.describe(),
		})
	}
	tw.Render()
	return buf.String()
}
