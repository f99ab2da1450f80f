package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Duration is a time.Duration read from text such as "500ms" or "30s".
type Duration time.Duration

// UnmarshalText parses a Go duration string. Negative values are rejected.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if v < 0 {
		return fmt.Errorf("invalid duration %q: negative", text)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

const redacted = "[REDACTED]"

var errRedactedSecret = errors.New("secret value is a redaction placeholder")

// Secret holds a credential such as the embeddings API key. Every
// printing or encoding path yields a placeholder; Value returns the key.
type Secret string

func (s Secret) masked() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) String() string   { return s.masked() }
func (s Secret) GoString() string { return "Secret(" + redacted + ")" }
func (s Secret) Value() string    { return string(s) }
func (s Secret) IsSet() bool      { return s != "" }

func (s Secret) MarshalText() ([]byte, error)      { return []byte(s.masked()), nil }
func (s Secret) MarshalJSON() ([]byte, error)      { return json.Marshal(s.masked()) }
func (s Secret) MarshalYAML() (interface{}, error) { return s.masked(), nil }

// UnmarshalText accepts the raw key, as read from the environment.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}

// UnmarshalJSON rejects the placeholder so a dumped config cannot be
// loaded back with a fake key.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == redacted {
		return errRedactedSecret
	}
	*s = Secret(raw)
	return nil
}
