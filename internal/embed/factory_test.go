package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    ProviderType
		wantErr bool
	}{
		{"static", ProviderStatic, false},
		{"OpenAI", ProviderOpenAI, false},
		{" ollama ", ProviderOllama, false},
		{"none", ProviderNone, false},
		{"", ProviderNone, false},
		{"mlx", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Static(t *testing.T) {
	e, err := New(Options{Provider: ProviderStatic, Dimensions: 128})
	require.NoError(t, err)
	assert.Equal(t, 128, e.Dimensions())
	assert.IsType(t, &StaticEmbedder{}, e)
}

func TestNew_WrapsWithCache(t *testing.T) {
	e, err := New(Options{Provider: ProviderStatic, CacheSize: 16})
	require.NoError(t, err)
	assert.IsType(t, &CachedEmbedder{}, e)
}

func TestNew_NoneDisablesSemantic(t *testing.T) {
	for _, p := range []ProviderType{ProviderNone, ""} {
		e, err := New(Options{Provider: p})
		require.NoError(t, err)
		assert.Nil(t, e)
	}
}

func TestNew_RemoteNeedsModel(t *testing.T) {
	_, err := New(Options{Provider: ProviderOpenAI})
	assert.Error(t, err)
}

func TestNew_Unknown(t *testing.T) {
	_, err := New(Options{Provider: "mystery"})
	assert.Error(t, err)
}
