package entities

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecognizer struct {
	spans []string
	err   error
	delay time.Duration
}

func (s stubRecognizer) Recognize(ctx context.Context, _ string) ([]string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.spans, s.err
}

func TestTechnical(t *testing.T) {
	text := "Call /api/users with user_id and getUser on the API at https://example.com using config.yaml and MAX_RETRIES"
	got := Technical(text)

	for _, want := range []string{
		"/api/users",
		"user_id",
		"getuser",
		"api",
		".yaml",
		"max_retries",
		"https://example.com",
	} {
		assert.True(t, got.Has(want), "missing %q in %v", want, got.Sorted())
	}
	assert.False(t, got.Has("call"))
}

func TestTechnical_NoIdentifiers(t *testing.T) {
	assert.Empty(t, Technical("plain words only here"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "oauth2", Normalize("  OAuth2 "))
	assert.Equal(t, "file", Normalize("ﬁle"))
	assert.Equal(t, "", Normalize("   "))
}

func TestSetOperations(t *testing.T) {
	a := NewSet("jwt", "oauth2", "redis")
	b := NewSet("jwt", "redis", "postgres")

	assert.Equal(t, []string{"jwt", "redis"}, a.Intersect(b).Sorted())
	assert.Equal(t, []string{"oauth2"}, a.Difference(b).Sorted())
	assert.Equal(t, []string{"postgres"}, b.Difference(a).Sorted())

	s := make(Set)
	s.Add("  ")
	s.Add("JWT")
	assert.Equal(t, []string{"jwt"}, s.Sorted())
}

func TestNewExtractor_RequiresRecognizer(t *testing.T) {
	_, err := NewExtractor(nil)
	assert.ErrorIs(t, err, ErrNoRecognizer)
}

func TestExtractor_Extract(t *testing.T) {
	ex, err := NewExtractor(stubRecognizer{spans: []string{"Alice Smith", "Berlin"}})
	require.NoError(t, err)

	got, err := ex.Extract(context.Background(), "Alice Smith deployed the JWT service in Berlin")
	require.NoError(t, err)

	assert.True(t, got.Has("alice smith"))
	assert.True(t, got.Has("berlin"))
	assert.True(t, got.Has("jwt"))
}

func TestExtractor_RecognizerError(t *testing.T) {
	ex, err := NewExtractor(stubRecognizer{err: errors.New("model missing")})
	require.NoError(t, err)

	_, err = ex.Extract(context.Background(), "text")
	assert.ErrorIs(t, err, ErrRecognitionFailed)
}

func TestExtractor_Timeout(t *testing.T) {
	ex, err := NewExtractor(stubRecognizer{delay: time.Second}, WithTimeout(10*time.Millisecond))
	require.NoError(t, err)

	_, err = ex.Extract(context.Background(), "text")
	assert.ErrorIs(t, err, ErrRecognitionFailed)
}

func TestProseRecognizer(t *testing.T) {
	r := NewProseRecognizer()
	spans, err := r.Recognize(context.Background(), "Barack Obama visited Paris last week.")
	require.NoError(t, err)
	assert.NotNil(t, spans)
}

func TestProseRecognizer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProseRecognizer().Recognize(ctx, "Barack Obama visited Paris.")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProseRecognizer_BoundsInFlight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	r := NewProseRecognizer(WithMaxInFlight(1))
	r.run = func(string) ([]string, error) {
		calls.Add(1)
		<-release
		return []string{"Paris"}, nil
	}

	// The first parse times out but keeps its slot while it runs on.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err := r.Recognize(ctx, "first")
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// A second caller cannot start another parse until that one finishes.
	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err = r.Recognize(ctx, "second")
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	spans, err := r.Recognize(context.Background(), "third")
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris"}, spans)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSimpleExtract(t *testing.T) {
	text := "The UserModel stores user_id via getData() in /api/users. Use `config.path` with JWT and fetchItems."
	got := SimpleExtract(text)

	for _, want := range []string{"UserModel", "user_id", "getData()", "/api/users", "config.path", "JWT", "fetchItems", "The"} {
		assert.Contains(t, got, want)
	}
}
