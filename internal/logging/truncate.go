package logging

import (
	"fmt"
	"strings"

	"github.com/Dudley70/compression-framework/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// secretMarshaler wraps config.Secret for Zap object marshaling.
type secretMarshaler struct {
	key string
	val config.Secret
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s *secretMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString(s.key, fmt.Sprintf("[REDACTED:%d]", len(s.val.Value())))
	return nil
}

// Secret creates a Zap field for config.Secret with redaction indicator.
func Secret(key string, val config.Secret) zap.Field {
	return zap.Object(key, &secretMarshaler{key: key, val: val})
}

// Excerpt returns a field holding at most n runes of text plus the total
// rune count, for call sites that log a body outside the content keys.
func Excerpt(key, text string, n int) zap.Field {
	return zap.String(key, truncateRunes(text, n))
}

// TruncatingEncoder shortens document bodies and masks secrets before they
// reach the underlying encoder.
type TruncatingEncoder struct {
	zapcore.Encoder
	maxRunes int
	content  map[string]bool
	secrets  map[string]bool
}

// NewTruncatingEncoder wraps base. A disabled config returns a pass-through.
func NewTruncatingEncoder(base zapcore.Encoder, cfg TruncationConfig) *TruncatingEncoder {
	e := &TruncatingEncoder{Encoder: base}
	if !cfg.Enabled {
		return e
	}
	e.maxRunes = cfg.MaxRunes
	e.content = lowerSet(cfg.ContentFields)
	e.secrets = lowerSet(cfg.SecretFields)
	return e
}

func lowerSet(keys []string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[strings.ToLower(k)] = true
	}
	return m
}

// truncateRunes cuts s to n runes and appends the original length.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return fmt.Sprintf("%s…[%d runes]", s[:i], len([]rune(s)))
		}
		count++
	}
	return s
}

// AddString truncates content keys and masks secret keys.
func (e *TruncatingEncoder) AddString(key, val string) {
	k := strings.ToLower(key)
	switch {
	case e.secrets[k]:
		e.Encoder.AddString(key, "[REDACTED]")
	case e.content[k]:
		e.Encoder.AddString(key, truncateRunes(val, e.maxRunes))
	default:
		e.Encoder.AddString(key, val)
	}
}

// AddByteString applies the same rules as AddString.
func (e *TruncatingEncoder) AddByteString(key string, val []byte) {
	k := strings.ToLower(key)
	if e.secrets[k] || e.content[k] {
		e.AddString(key, string(val))
		return
	}
	e.Encoder.AddByteString(key, val)
}

// AddReflected drops secret keys entirely and summarises reflected bodies.
func (e *TruncatingEncoder) AddReflected(key string, val interface{}) error {
	k := strings.ToLower(key)
	if e.secrets[k] {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	if s, ok := val.(string); ok && e.content[k] {
		e.Encoder.AddString(key, truncateRunes(s, e.maxRunes))
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

// EncodeEntry rewrites per-call fields, which the wrapped encoder would
// otherwise add to its own clone without passing through AddString.
func (e *TruncatingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if len(e.content) == 0 && len(e.secrets) == 0 {
		return e.Encoder.EncodeEntry(ent, fields)
	}
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = e.rewrite(f)
	}
	return e.Encoder.EncodeEntry(ent, out)
}

func (e *TruncatingEncoder) rewrite(f zapcore.Field) zapcore.Field {
	k := strings.ToLower(f.Key)
	if e.secrets[k] {
		return zap.String(f.Key, "[REDACTED]")
	}
	if !e.content[k] {
		return f
	}
	switch f.Type {
	case zapcore.StringType:
		return zap.String(f.Key, truncateRunes(f.String, e.maxRunes))
	case zapcore.ByteStringType:
		if b, ok := f.Interface.([]byte); ok {
			return zap.String(f.Key, truncateRunes(string(b), e.maxRunes))
		}
	}
	return f
}

// Clone creates a copy of the encoder.
func (e *TruncatingEncoder) Clone() zapcore.Encoder {
	return &TruncatingEncoder{
		Encoder:  e.Encoder.Clone(),
		maxRunes: e.maxRunes,
		content:  e.content,
		secrets:  e.secrets,
	}
}
