// Package profile models kind-0 profile metadata documents.
package profile

import (
	"encoding/json"
	"strings"

	"github.com/relayseek/relayseek/internal/domain"
)

// Metadata is the parsed content of a profile event. Every field is optional;
// malformed input yields a best-effort partial struct, never an error.
type Metadata struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
	Lud16       string `json:"lud16,omitempty"`
	Website     string `json:"website,omitempty"`
}

// Parse decodes the content of a profile event. Unknown fields are ignored,
// wrong-typed fields are dropped individually, and a completely malformed
// payload returns the zero Metadata.
func Parse(ev *domain.Event) Metadata {
	if ev == nil || ev.Kind != domain.KindProfile {
		return Metadata{}
	}

	var m Metadata
	if err := json.Unmarshal([]byte(ev.Content), &m); err == nil {
		return m
	}

	// Field-typed mismatches (e.g. numeric "name") fail the struct decode as
	// a whole; retry field by field over a loose map.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(ev.Content), &raw); err != nil {
		return Metadata{}
	}
	m.Name = looseString(raw, "name")
	m.DisplayName = looseString(raw, "display_name")
	m.About = looseString(raw, "about")
	m.Picture = looseString(raw, "picture")
	m.NIP05 = looseString(raw, "nip05")
	m.Lud16 = looseString(raw, "lud16")
	m.Website = looseString(raw, "website")
	return m
}

func looseString(raw map[string]json.RawMessage, key string) string {
	data, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ""
	}
	return s
}

// BestName returns the display name if set, then the name, then "".
func (m Metadata) BestName() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}

// NIP05Domain returns the domain part of the nip05 handle, and whether the
// handle is root-level (local part "_" or absent).
func (m Metadata) NIP05Domain() (string, bool) {
	if m.NIP05 == "" {
		return "", false
	}
	name, dom, found := strings.Cut(m.NIP05, "@")
	if !found {
		return strings.ToLower(name), true
	}
	return strings.ToLower(dom), name == "_" || name == ""
}
