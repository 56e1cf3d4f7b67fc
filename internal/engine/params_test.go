package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	p, err := ParseParams([]string{"n_clusters=4", "algorithm = dbscan", "confidence_levels=0.9,0.99"})
	require.NoError(t, err)

	n, err := p.Int("n_clusters", 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	alg, err := p.String("algorithm", "kmeans")
	require.NoError(t, err)
	assert.Equal(t, "dbscan", alg)

	levels, err := p.Floats("confidence_levels", nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0.99}, levels)

	_, err = ParseParams([]string{"novalue"})
	assert.Error(t, err)
}

func TestParamsDefaultsAndCoercion(t *testing.T) {
	p := Params{"window": 12.0, "sessions": "false", "rate": "0.03", "bad": "x"}

	w, err := p.Int("window", 30)
	require.NoError(t, err)
	assert.Equal(t, 12, w)

	s, err := p.Bool("sessions", true)
	require.NoError(t, err)
	assert.False(t, s)

	r, err := p.Float("rate", 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.03, r, 1e-12)

	d, err := p.Float("missing", 0.95)
	require.NoError(t, err)
	assert.Equal(t, 0.95, d)

	_, err = p.Int("bad", 0)
	assert.Error(t, err)

	assert.True(t, p.Has("bad"))
	assert.False(t, p.Has("missing"))
}

func TestParamsFloatsFromSlice(t *testing.T) {
	p := Params{"levels": []interface{}{0.95, "0.99"}}
	levels, err := p.Floats("levels", nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.95, 0.99}, levels)
}

func TestParamsKeyIsOrderIndependent(t *testing.T) {
	a := Params{"b": 2, "a": "x"}
	b := Params{"a": "x", "b": 2}
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "a=x&b=2", a.Key())
	assert.Equal(t, "", Params{}.Key())
	assert.NotEqual(t, a.Key(), Params{"a": "y", "b": 2}.Key())
}
