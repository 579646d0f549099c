package token

import "strings"

// Descriptor is the connection descriptor decrypted from the session
// token: a protocol type plus its argument map.
type Descriptor struct {
	Type      string            `json:"type"`
	Arguments map[string]string `json:"arguments"`
}

// SupportedTypes enumerates the protocol tags a descriptor may declare.
var SupportedTypes = map[string]bool{
	"rdp":        true,
	"vnc":        true,
	"ssh":        true,
	"telnet":     true,
	"kubernetes": true,
}

// normalize lower-cases the type tag and the argument keys, since the
// token's JSON keys are case-insensitive.
func (d *Descriptor) normalize() {
	d.Type = strings.ToLower(strings.TrimSpace(d.Type))
	if d.Arguments == nil {
		d.Arguments = map[string]string{}
		return
	}
	lowered := make(map[string]string, len(d.Arguments))
	for k, v := range d.Arguments {
		lowered[strings.ToLower(k)] = v
	}
	d.Arguments = lowered
}
