package meta

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
)

// Details is a small bounded string map attached to audit entries, with a
// stable JSON encoding so stored rows and API responses are deterministic.
type Details map[string]string

const (
	MaxPairs  = 16
	MaxKeyLen = 64
	MaxValLen = 256
)

// New copies m into a Details map; nil becomes an empty map.
func New(m map[string]string) Details {
	out := make(Details, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Validate enforces the pair/key/value bounds.
func (d Details) Validate() error {
	if len(d) > MaxPairs {
		return errors.New("details: too many pairs")
	}
	for k, v := range d {
		if len(k) == 0 || len(k) > MaxKeyLen {
			return errors.New("details: key empty or too long")
		}
		if len(v) > MaxValLen {
			return errors.New("details: value too long")
		}
	}
	return nil
}

// MarshalStableJSON returns a deterministic encoding with keys sorted.
func (d Details) MarshalStableJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("{}"), nil
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range keys {
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(d[k])
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		if i < len(keys)-1 {
			buf.WriteByte(',')
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d Details) MarshalJSON() ([]byte, error) { return d.MarshalStableJSON() }

func (d *Details) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = Details{}
		return nil
	}
	var tmp map[string]string
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*d = New(tmp)
	return nil
}
