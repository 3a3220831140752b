package session

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Profile field names returned by the API.
const (
	FieldID          = "id"
	FieldEmail       = "email"
	FieldDisplayName = "displayName"
	FieldCredits     = "credits"
)

// Profile is the server's view of the signed-in user, kept as a JSON object.
// Responses merge into it field by field; fields absent from a response keep
// their previous value, and fields the client does not know are preserved.
type Profile struct {
	raw []byte
}

func newProfile() *Profile {
	return &Profile{raw: []byte(`{}`)}
}

// merge applies every top-level field of body. Non-object bodies are rejected.
func (p *Profile) merge(body []byte) bool {
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return false
	}

	ok := true
	parsed.ForEach(func(key, value gjson.Result) bool {
		next, err := sjson.SetRawBytes(p.raw, escapePath(key.String()), []byte(value.Raw))
		if err != nil {
			ok = false
			return false
		}
		p.raw = next
		return true
	})
	return ok
}

// Get returns a raw field.
func (p *Profile) Get(field string) gjson.Result {
	if p == nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(p.raw, escapePath(field))
}

// Has reports whether field was ever returned by the server.
func (p *Profile) Has(field string) bool {
	return p.Get(field).Exists()
}

func (p *Profile) ID() string          { return p.Get(FieldID).String() }
func (p *Profile) Email() string       { return p.Get(FieldEmail).String() }
func (p *Profile) DisplayName() string { return p.Get(FieldDisplayName).String() }

// Credits returns the credit balance carried by the profile, if known.
func (p *Profile) Credits() (int, bool) {
	v := p.Get(FieldCredits)
	if !v.Exists() || v.Type == gjson.Null {
		return 0, false
	}
	return int(v.Int()), true
}

// JSON returns a copy of the merged object.
func (p *Profile) JSON() []byte {
	if p == nil {
		return nil
	}
	return append([]byte(nil), p.raw...)
}

func (p *Profile) clone() *Profile {
	if p == nil {
		return nil
	}
	return &Profile{raw: p.JSON()}
}

var pathEscaper = strings.NewReplacer(`\`, `\\`, `.`, `\.`, `*`, `\*`, `?`, `\?`, `|`, `\|`, `#`, `\#`, `@`, `\@`)

// escapePath makes a literal key safe to use as a gjson/sjson path.
func escapePath(key string) string {
	return pathEscaper.Replace(key)
}
