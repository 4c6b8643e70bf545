package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateful/blocks/internal/log"
)

func TestDefault(t *testing.T) {
	// Invariant that all default configurations are equal.
	expected, err := newDefault()
	require.NoError(t, err)
	got := Default()
	opts := cmpopts.EquateEmpty()
	require.True(
		t,
		cmp.Equal(expected, got, opts, cmpopts.IgnoreUnexported(Filter{})),
		"%s",
		cmp.Diff(expected, got, opts, cmpopts.IgnoreUnexported(Filter{})),
	)

	assert.Equal(t, Version, got.Version)
	assert.Equal(t, 10, got.Identity.MaxIterations)
	assert.Equal(t, "ulid", got.Identity.Generator)
	assert.Equal(t, Resolver{CacheSize: 128, Concurrency: 4}, got.Resolver)
	assert.NotEmpty(t, got.Elements)
}

func TestDefault_Registry(t *testing.T) {
	r, err := Default().Registry()
	require.NoError(t, err)

	for _, name := range []string{"paragraph", "heading", "note", "section", "mention", "badge", "fragment"} {
		_, err := r.Lookup(name)
		assert.NoError(t, err, name)
	}
}

func TestParseYAML(t *testing.T) {
	testCases := []struct {
		name           string
		rawConfig      string
		check          func(t *testing.T, cfg *Config)
		errorSubstring string
	}{
		{
			name: "overrides",
			rawConfig: `version: v1
log:
  enabled: true
  path: /var/tmp/blocks.log
  verbose: true
identity:
  generator: uuid
resolver:
  concurrency: 8
filters:
  - type: FILTER_TYPE_BLOCK
    condition: "type == 'note'"
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, log.Options{Enabled: true, Path: "/var/tmp/blocks.log", Verbose: true}, cfg.Log)
				assert.Equal(t, Identity{MaxIterations: 10, Generator: "uuid"}, cfg.Identity)
				assert.Equal(t, Resolver{CacheSize: 128, Concurrency: 8}, cfg.Resolver)
				require.Len(t, cfg.Filters, 1)
				assert.Equal(t, FilterTypeBlock, cfg.Filters[0].Type)
				assert.NotEmpty(t, cfg.Elements)
			},
		},
		{
			name: "elements replaced",
			rawConfig: `version: v1
elements:
  - name: quote
    contents: "block+"
    template: <blockquote block-content=""></blockquote>
`,
			check: func(t *testing.T, cfg *Config) {
				require.Len(t, cfg.Elements, 1)
				assert.Equal(t, "quote", cfg.Elements[0].Name)
				require.Len(t, cfg.Elements[0].Contents, 1)
				assert.Equal(t, "block+", cfg.Elements[0].Contents[0].Nodes)
			},
		},
		{
			name:           "unknown version",
			rawConfig:      "version: v0\n",
			errorSubstring: "Version",
		},
		{
			name: "unknown generator",
			rawConfig: `version: v1
identity:
  generator: snowflake
`,
			errorSubstring: "Generator",
		},
		{
			name: "validate filter type",
			rawConfig: `version: v1
filters:
  - type: FILTER_TYPE_SOME_OTHER
    condition: "id != ''"
`,
			errorSubstring: "Type",
		},
		{
			name: "invalid filter condition",
			rawConfig: `version: v1
filters:
  - type: FILTER_TYPE_DOCUMENT
    condition: "name != ''"
`,
			errorSubstring: "filters[0]",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := ParseYAML([]byte(tc.rawConfig))

			if tc.errorSubstring != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.errorSubstring)
				return
			}

			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}

func TestParseTOML(t *testing.T) {
	cfg, err := Parse("blocks.toml", []byte(`version = "v1"

[identity]
max_iterations = 3

[resolver]
cache_size = 0

[[filters]]
type = "FILTER_TYPE_BLOCK"
condition = "standalone"
`))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Identity.MaxIterations)
	assert.Equal(t, 0, cfg.Resolver.CacheSize)
	assert.Equal(t, 4, cfg.Resolver.Concurrency)
	require.Len(t, cfg.Filters, 1)
	assert.Equal(t, "standalone", cfg.Filters[0].Condition)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse("blocks.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Resolver, cfg.Resolver)
}

func TestGenerator(t *testing.T) {
	cfg := Default()
	cfg.Identity.Generator = "uuid"
	gen, err := cfg.Generator()
	require.NoError(t, err)
	assert.Len(t, gen(), 36)
}
