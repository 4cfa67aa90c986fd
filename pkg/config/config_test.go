package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/format"
	"github.com/coolbeans/dcatgraph/pkg/prefix"
)

const sample = `
log_level: debug
http:
  timeout: 5s
  user_agent: test-agent
  probe_cache_ttl: 1m
loader:
  concurrency: 4
  declared_format_fallback: true
query:
  timeout: 2s
  planning: false
prefixes:
  foaf_friends: "http://dcat.query.defaultns#"
  vcard: null
formats:
  - name: ntriples-plain
    parser: ntriples
    media_type: text/plain
    extensions: [txt]
alignment_dir: ./alignments
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dcatgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultTimeout, cfg.HTTP.Timeout)
	assert.Equal(t, 1, cfg.Loader.Concurrency)
	assert.True(t, cfg.Query.Planning)
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeFile(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "test-agent", cfg.HTTP.UserAgent)
	assert.Equal(t, time.Minute, cfg.HTTP.ProbeCacheTTL)
	assert.Equal(t, 4, cfg.Loader.Concurrency)
	assert.True(t, cfg.Loader.DeclaredFormatFallback)
	assert.Equal(t, 2*time.Second, cfg.Query.Timeout)
	assert.False(t, cfg.Query.Planning)
	assert.Equal(t, "./alignments", cfg.AlignmentDir)

	require.Contains(t, cfg.Prefixes, "foaf_friends")
	assert.Equal(t, "http://dcat.query.defaultns#", *cfg.Prefixes["foaf_friends"])
	require.Contains(t, cfg.Prefixes, "vcard")
	assert.Nil(t, cfg.Prefixes["vcard"])

	require.Len(t, cfg.Formats, 1)
	assert.Equal(t, []string{"txt"}, cfg.Formats[0].Extensions)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "query:\n  timeout: 1s\n"))
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Query.Timeout)
	assert.True(t, cfg.Query.Planning)
	assert.Equal(t, DefaultUserAgent, cfg.HTTP.UserAgent)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    errs.Code
	}{
		{"bad yaml", "http: [", errs.CodeInvalidValue},
		{"bad duration", "http:\n  timeout: soon\n", errs.CodeInvalidValue},
		{"zero timeout", "http:\n  timeout: 0s\n", errs.CodeInvalidValue},
		{"zero concurrency", "loader:\n  concurrency: 0\n", errs.CodeInvalidValue},
		{"log level", "log_level: loud\n", errs.CodeInvalidValue},
		{"invalid prefix", "prefixes:\n  \"1x\": \"http://x/\"\n", errs.CodeInvalidPrefix},
		{"empty namespace", "prefixes:\n  x: \"\"\n", errs.CodeInvalidPrefix},
		{"alias without parser", "formats:\n  - name: x\n", errs.CodeInvalidValue},
		{"alias twice", "formats:\n  - {name: x, parser: turtle}\n  - {name: x, parser: turtle}\n", errs.CodeConflictingFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			require.Error(t, err)
			assert.True(t, errs.IsConfigError(err), "got %T", err)
			assert.Equal(t, tt.code, errs.CodeOf(err))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, errs.CodeReadFailed, errs.CodeOf(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestApplyPrefixes(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	reg := prefix.NewRegistry()
	require.NoError(t, cfg.ApplyPrefixes(reg))

	ns, ok := reg.Namespace("foaf_friends")
	assert.True(t, ok)
	assert.Equal(t, "http://dcat.query.defaultns#", ns)
	_, ok = reg.Namespace("vcard")
	assert.False(t, ok, "null removes a default prefix")
	_, ok = reg.Namespace("dcat")
	assert.True(t, ok)
}

func TestApplyFormats(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	reg := format.NewRegistry()
	require.NoError(t, format.InstallDefaults(reg))
	require.NoError(t, cfg.ApplyFormats(reg))

	f, ok := reg.ByExtension("txt")
	require.True(t, ok)
	assert.Equal(t, "ntriples-plain", f.Name)
	f, ok = reg.ByMediaType("text/plain; charset=utf-8")
	require.True(t, ok)
	assert.NotNil(t, f.Parser())
}

func TestApplyFormats_UnknownParser(t *testing.T) {
	cfg := Default()
	cfg.Formats = []FormatAlias{{Name: "x", Parser: "nope"}}

	err := cfg.ApplyFormats(format.NewRegistry())
	assert.Equal(t, errs.CodeUnknownParser, errs.CodeOf(err))
}
