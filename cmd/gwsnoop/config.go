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

package main

import (
	"encoding/json"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/NCAR/gateway"
)

/*Profile is the TOML device profile: where to dial, and the device's
command/notification vocabulary so frames can be decoded without waiting
for a live registration handshake.

  dial = "serial:///dev/ttyUSB0:115200"

  [[command]]
  name   = "setLED"
  intent = 256
    [command.params]
    state = "u8"

  [[notification]]
  name   = "temperature"
  intent = 257
    [notification.params]
    celsius = "f32"

Parameter types use the same aliases a registering device may use (u8,
int16, f32, string, bin, ...)*/
type Profile struct {
	Dial          string         `toml:"dial"`
	Commands      []ProfileEntry `toml:"command"`
	Notifications []ProfileEntry `toml:"notification"`
}

/*ProfileEntry is one command or notification declaration*/
type ProfileEntry struct {
	Name   string            `toml:"name"`
	Intent uint16            `toml:"intent"`
	Params map[string]string `toml:"params"`
}

/*LoadProfile reads and parses a TOML profile*/
func LoadProfile(path string) (*Profile, error) {
	p := &Profile{}
	if _, err := toml.DecodeFile(path, p); err != nil {
		return nil, errors.Wrapf(err, "unable to parse profile %q", path)
	}
	return p, nil
}

/*Apply teaches the engine this profile's vocabulary.  Rather than
reimplementing layout construction, the profile is rendered as a
registration document and pushed through the same code path a live
device's registration would take*/
func (p *Profile) Apply(eng *gateway.Engine) error {
	type entry struct {
		Intent uint16      `json:"intent"`
		Name   string      `json:"name"`
		Params interface{} `json:"params"`
	}
	doc := struct {
		Commands      []entry `json:"commands"`
		Notifications []entry `json:"notifications"`
	}{}
	for _, c := range p.Commands {
		doc.Commands = append(doc.Commands, entry{Intent: c.Intent, Name: c.Name, Params: paramsDoc(c.Params)})
	}
	for _, n := range p.Notifications {
		doc.Notifications = append(doc.Notifications, entry{Intent: n.Intent, Name: n.Name, Params: paramsDoc(n.Params)})
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return eng.HandleRegistration2(string(raw))
}

func paramsDoc(params map[string]string) interface{} {
	if len(params) == 0 {
		return nil
	}
	m := map[string]interface{}{}
	for name, alias := range params {
		m[name] = alias
	}
	return m
}
