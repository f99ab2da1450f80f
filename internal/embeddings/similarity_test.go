package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errProvider struct{ *LexicalProvider }

func (errProvider) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("backend down")
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestComparator_Similarity(t *testing.T) {
	cmp, err := NewComparator(NewLexicalProvider(256), time.Second)
	require.NoError(t, err)

	same, err := cmp.Similarity(context.Background(), "token rotation policy", "token rotation policy")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, same, 1e-5)
}

func TestComparator_BackendError(t *testing.T) {
	cmp, err := NewComparator(errProvider{LexicalProvider: NewLexicalProvider(8)}, 0)
	require.NoError(t, err)

	_, err = cmp.Similarity(context.Background(), "a", "b")
	assert.Error(t, err)
}

func TestNewComparator_RequiresProvider(t *testing.T) {
	_, err := NewComparator(nil, 0)
	assert.ErrorIs(t, err, ErrNoProvider)
}
