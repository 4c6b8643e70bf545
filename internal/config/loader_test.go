package config

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewLoader(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		NewLoader("", fstest.MapFS{})
	}, "config name is not set")
}

func TestLoader_RootConfig(t *testing.T) {
	t.Parallel()

	t.Run("without root config", func(t *testing.T) {
		t.Parallel()

		loader := NewLoader("blocks", fstest.MapFS{}, WithLogger(zaptest.NewLogger(t)))
		_, result, err := loader.RootConfig()
		require.ErrorIs(t, err, ErrRootConfigNotFound)
		require.Nil(t, result)
	})

	t.Run("with root config", func(t *testing.T) {
		t.Parallel()

		data := []byte("version = \"v1\"\n")
		fsys := fstest.MapFS{
			"blocks.toml": {Data: data},
		}
		loader := NewLoader("blocks", fsys, WithLogger(zaptest.NewLogger(t)))
		name, result, err := loader.RootConfig()
		require.NoError(t, err)
		require.Equal(t, "blocks.toml", name)
		require.Equal(t, data, result)
	})
}

func TestLoader_ChainConfigs(t *testing.T) {
	t.Parallel()

	t.Run("without root config", func(t *testing.T) {
		t.Parallel()

		loader := NewLoader("blocks", fstest.MapFS{}, WithLogger(zaptest.NewLogger(t)))
		result, err := loader.FindConfigChain("")
		require.NoError(t, err)
		require.Nil(t, result)
	})

	fsys := fstest.MapFS{
		"blocks.yaml": {
			Data: []byte("path:blocks.yaml"),
		},
		"nested/blocks.yml": {
			Data: []byte("path:nested/blocks.yml"),
		},
		"nested/path/blocks.yaml": {
			Data: []byte("path:nested/path/blocks.yaml"),
		},
		"nested/path/doc.html": {
			Data: []byte("<p></p>"),
		},
		"other/blocks.yaml": {
			Data: []byte("path:other/blocks.yaml"),
		},
		"without/config": {
			Mode: fs.ModeDir,
		},
	}
	loader := NewLoader("blocks", fsys, WithLogger(zaptest.NewLogger(t)))

	t.Run("root config", func(t *testing.T) {
		result, err := loader.FindConfigChain("")
		require.NoError(t, err)
		require.Equal(t, [][]byte{[]byte("path:blocks.yaml")}, result)
	})

	t.Run("nested deep config", func(t *testing.T) {
		result, err := loader.FindConfigChain("nested/path")
		require.NoError(t, err)
		require.Equal(
			t,
			[][]byte{
				[]byte("path:blocks.yaml"),
				[]byte("path:nested/blocks.yml"),
				[]byte("path:nested/path/blocks.yaml"),
			},
			result,
		)
	})

	t.Run("file in nested dir", func(t *testing.T) {
		result, err := loader.FindConfigChain("nested/path/doc.html")
		require.NoError(t, err)
		require.Len(t, result, 3)
	})

	t.Run("nested without config", func(t *testing.T) {
		result, err := loader.FindConfigChain("without/config")
		require.NoError(t, err)
		require.Equal(t, [][]byte{[]byte("path:blocks.yaml")}, result)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := loader.FindConfigChain("missing")
		require.Error(t, err)
	})
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"blocks.yaml": {
			Data: []byte("version: v1\nresolver:\n  concurrency: 2\n"),
		},
		"docs/blocks.toml": {
			Data: []byte("[identity]\ngenerator = \"uuid\"\n"),
		},
	}
	loader := NewLoader("blocks", fsys, WithLogger(zaptest.NewLogger(t)))

	t.Run("root", func(t *testing.T) {
		cfg, err := loader.Load("")
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Resolver.Concurrency)
		assert.Equal(t, "ulid", cfg.Identity.Generator)
	})

	t.Run("nested", func(t *testing.T) {
		cfg, err := loader.Load("docs")
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Resolver.Concurrency)
		assert.Equal(t, "uuid", cfg.Identity.Generator)
	})

	t.Run("defaults", func(t *testing.T) {
		cfg, err := NewLoader("blocks", fstest.MapFS{}).Load("")
		require.NoError(t, err)
		assert.Equal(t, Default().Resolver, cfg.Resolver)
	})
}
