package engine

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Konsultn-Engineering/ducktype/calltarget"
	"github.com/Konsultn-Engineering/ducktype/circuit"
	"github.com/Konsultn-Engineering/ducktype/config"
	"github.com/Konsultn-Engineering/ducktype/duck"
)

// =========================================================================
// Test Data Structures
// =========================================================================

type request struct {
	method string
	Path   string
}

type other struct {
	ID int
}

type requestView struct {
	duck.Shape
	Method func() string `duck:"name:method;nonpublic"`
	Path   func() string
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e, err := New(append([]Option{WithLogger(logger), WithRegisterer(prometheus.NewRegistry())}, opts...)...)
	require.NoError(t, err)
	return e, &buf
}

func logLines(t *testing.T, buf *bytes.Buffer, msg string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == msg {
			out = append(out, entry)
		}
	}
	return out
}

// =========================================================================
// Engine Tests
// =========================================================================

func TestNewDefaults(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	assert.Equal(t, *config.Default(), e.Config())
	assert.NotNil(t, e.Logger())
	assert.NotNil(t, e.Gatherer(), "metrics go to a private registry by default")
}

func TestNewOptionsOverrideConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Resolver.CacheSize = 8
	cfg.Metrics.Enabled = false

	e, _ := newTestEngine(t,
		WithConfig(cfg),
		WithCaseSensitive(true),
		WithEmbedded(false),
		WithResolverCacheSize(0),
	)

	got := e.Config()
	assert.True(t, got.Resolver.CaseSensitive)
	assert.False(t, got.Resolver.Embedded)
	assert.Zero(t, got.Resolver.CacheSize)
	assert.True(t, e.resolver.CaseSensitive())
	assert.False(t, e.resolver.Embedded())
	assert.Equal(t, 8, cfg.Resolver.CacheSize, "the caller's config is not modified")
	assert.Nil(t, e.Gatherer())
}

func TestNewLayersFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ducktype.yaml")
	file := config.Default()
	file.Resolver.CacheSize = 16
	file.Logging.Format = "json"
	require.NoError(t, file.SaveToFile(path))

	t.Setenv("DUCKTYPE_LOG_LEVEL", "debug")
	t.Setenv("DUCKTYPE_RESOLVER_CASE_SENSITIVE", "true")
	t.Setenv("DUCKTYPE_RESOLVER_EMBEDDED", "false")

	e, _ := newTestEngine(t, WithConfigFile(path), WithEnv(), WithEmbedded(true))
	got := e.Config()
	assert.Equal(t, 16, got.Resolver.CacheSize)
	assert.Equal(t, "json", got.Logging.Format)
	assert.Equal(t, "DEBUG", got.Logging.Level)
	assert.True(t, got.Resolver.CaseSensitive)
	assert.True(t, e.resolver.CaseSensitive())
	assert.True(t, got.Resolver.Embedded, "options override the environment")

	plain, _ := newTestEngine(t)
	assert.Equal(t, "WARN", plain.Config().Logging.Level, "the environment is only read with WithEnv")

	t.Setenv("DUCKTYPE_RESOLVER_CACHE_SIZE", "many")
	_, err := New(WithEnv())
	assert.Error(t, err)

	_, err = New(WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "LOUD"

	_, err := New(WithConfig(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestEngineAdapt(t *testing.T) {
	e, buf := newTestEngine(t)

	v, err := Adapt[requestView](e, &request{method: "GET", Path: "/health"})
	require.NoError(t, err)
	assert.Equal(t, "GET", v.Method())
	assert.Equal(t, "/health", v.Path())

	again, err := e.Adapt(&request{method: "PUT"}, reflect.TypeOf(requestView{}))
	require.NoError(t, err)
	assert.Equal(t, "PUT", again.(*requestView).Method())

	_, err = Adapt[requestView](e, &other{})
	require.Error(t, err)
	assert.Zero(t, e.Stats().Trips, "adapt failures never trip")

	stats := e.Stats()
	assert.Equal(t, int64(2), stats.Syntheses)
	assert.Equal(t, 1, stats.Adapters)
	assert.Len(t, logLines(t, buf, "adapter synthesized"), 2)
}

func TestEngineTryGetOrBind(t *testing.T) {
	var events []circuit.Event
	e, buf := newTestEngine(t, WithOnTrip(func(ev circuit.Event) { events = append(events, ev) }))

	d, err := e.Describe("http.OnBegin", func(r *requestView, tag string) string {
		return r.Method() + " " + r.Path() + " " + tag
	})
	require.NoError(t, err)

	got, err := e.Invoke(d, &request{method: "GET", Path: "/a"}, "x")
	require.NoError(t, err)
	assert.Equal(t, "GET /a x", got)
	assert.Equal(t, circuit.StateBound, e.State(d, reflect.TypeOf(&request{}), reflect.TypeOf("")))

	for i := 0; i < 3; i++ {
		got, err = e.Invoke(d, &other{ID: i}, "x")
		require.NoError(t, err)
		assert.Equal(t, "", got)
	}
	assert.Equal(t, circuit.StateTripped, e.State(d, reflect.TypeOf(&other{}), reflect.TypeOf("")))

	require.Len(t, events, 1)
	warnings := logLines(t, buf, "callback disabled after binding failure")
	require.Len(t, warnings, 1)
	assert.Equal(t, "WARN", warnings[0]["level"])
	assert.Equal(t, "http.OnBegin", warnings[0]["callback"])
	assert.Equal(t, "*engine.other", warnings[0]["instance_type"])
	assert.Equal(t, "GENERATION_FAILED", warnings[0]["kind"])
	assert.Equal(t, events[0].ID.String(), warnings[0]["event_id"])

	stats := e.Stats()
	assert.Equal(t, int64(1), stats.Bindings)
	assert.Equal(t, int64(1), stats.Trips)
	assert.Equal(t, 2, stats.Keys)
	assert.Equal(t, int64(2), stats.Syntheses)
	assert.Equal(t, []circuit.Key{{Callback: d.ID, Instance: reflect.TypeOf(&other{})}}, stats.Tripped)
}

func TestEngineBind(t *testing.T) {
	e, _ := newTestEngine(t)
	d, err := e.Describe("cb", func(instance any, n int) int { return n + 1 })
	require.NoError(t, err)

	ep, err := e.Bind(d, reflect.TypeOf(&other{}), reflect.TypeOf(""))
	require.Error(t, err)
	assert.Nil(t, ep)
	assert.Equal(t, circuit.StateUnbound, e.State(d, reflect.TypeOf(&other{}), reflect.TypeOf("")))

	ep, err = e.Bind(d, reflect.TypeOf(&other{}), reflect.TypeOf(0))
	require.NoError(t, err)
	got, err := calltarget.Call[int](ep, &other{}, 41)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestEngineDescribeMethod(t *testing.T) {
	e, _ := newTestEngine(t)

	d, err := e.DescribeMethod(integration{}, calltarget.PhaseBegin)
	require.NoError(t, err)
	state, err := e.Invoke(d, &request{method: "POST"})
	require.NoError(t, err)
	assert.Equal(t, "POST", state.(calltarget.State).Value)

	_, err = e.DescribeMethod(integration{}, calltarget.PhaseEnd)
	assert.Error(t, err)
}

type integration struct{}

func (integration) OnMethodBegin(r *requestView) calltarget.State {
	return calltarget.NewState(r.Method())
}

func TestEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, err := New(WithRegisterer(reg), WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	require.NoError(t, err)

	d, err := e.Describe("cb", func(r *requestView) string { return r.Path() })
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, _ = e.Invoke(d, &request{Path: "/"})
	}
	_, _ = e.Invoke(d, &other{})

	expected := `
# HELP ducktype_bindings_total Callback entry points bound
# TYPE ducktype_bindings_total counter
ducktype_bindings_total 1
# HELP ducktype_cache_hits_total Adapter and binding cache hits, by cache
# TYPE ducktype_cache_hits_total counter
ducktype_cache_hits_total{cache="binding"} 2
# HELP ducktype_cache_misses_total Adapter and binding cache misses, by cache
# TYPE ducktype_cache_misses_total counter
ducktype_cache_misses_total{cache="adapter"} 2
ducktype_cache_misses_total{cache="binding"} 2
# HELP ducktype_trips_total Callback keys disabled after a binding failure, by error kind
# TYPE ducktype_trips_total counter
ducktype_trips_total{kind="GENERATION_FAILED"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"ducktype_bindings_total", "ducktype_cache_hits_total", "ducktype_cache_misses_total", "ducktype_trips_total"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{Level: "INFO", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown")
	lines := logLines(t, &buf, "shown")
	require.Len(t, lines, 1)
	assert.Equal(t, "ducktype", lines[0]["component"])
	assert.Empty(t, logLines(t, &buf, "hidden"))

	_, err = newLogger(config.LoggingConfig{Level: "nope"}, &buf)
	assert.Error(t, err)
}
