package fanout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruslano69/ezsearch/pkg/adapters"
	"github.com/ruslano69/ezsearch/pkg/catalog"
	"github.com/ruslano69/ezsearch/pkg/diag"
	"github.com/ruslano69/ezsearch/pkg/resilience"
	"github.com/ruslano69/ezsearch/pkg/retry"
)

// fakeClient - клиент с заданными строками, задержкой и ошибкой
type fakeClient struct {
	rows  []adapters.RawRow
	err   error
	delay time.Duration
	calls atomic.Int32

	lastQuery string
	lastArgs  []any
}

func (f *fakeClient) Execute(ctx context.Context, query string, args ...any) ([]adapters.RawRow, error) {
	f.calls.Add(1)
	f.lastQuery = query
	f.lastArgs = args
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, diag.Wrap(diag.KindConnectionFailed, "fake", "canceled", ctx.Err())
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeClient) Rebind(query string) string { return query }
func (f *fakeClient) GetDatabaseType() string    { return "fake" }

func source(name, database string) catalog.Source {
	return catalog.Source{
		Name:     name,
		Database: database,
		Columns:  []string{"CustomerID", "IsActive", "PackageID"},
		Bool:     []string{"IsActive"},
		Numeric: catalog.SourceQuery{
			SQL:    "SELECT Col1, Col2, Col3 FROM t WHERE Col3 = ? OR Col1 = ?",
			Params: []string{catalog.ParamKey, catalog.ParamKey},
		},
		Text: catalog.SourceQuery{
			SQL:    "SELECT Col1, Col2, Col3 FROM t WHERE Col4 LIKE ?",
			Params: []string{catalog.ParamLike},
		},
	}
}

func testSearch() catalog.Search {
	return catalog.Search{
		Columns:   []string{"CustomerID", "PackageID", "Source", "IsActive"},
		KeyColumn: "PackageID",
		TagColumn: "Source",
		Empty:     "No results found.",
		Sources:   []catalog.Source{source("Source1", "db1"), source("Source2", "db2")},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		key  string
		want KeyKind
	}{
		{"123", KeyNumeric},
		{"0", KeyNumeric},
		{"", KeyText},
		{"12a", KeyText},
		{"-1", KeyText},
		{"1.5", KeyText},
		{" 12", KeyText},
		{"١٢", KeyText},
		{"Tournament", KeyText},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.key))
		})
	}
}

func TestSearch_RegistrationOrderUnderLatencyInversion(t *testing.T) {
	slow := &fakeClient{
		delay: 50 * time.Millisecond,
		rows:  []adapters.RawRow{{int64(1), []byte{1}, "P1"}, {int64(2), []byte{0}, "P2"}},
	}
	fast := &fakeClient{
		rows: []adapters.RawRow{{int64(3), []byte{1}, "P3"}},
	}
	d := New(map[string]adapters.Client{"db1": slow, "db2": fast})

	res, err := d.Search(context.Background(), testSearch(), "42")
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, "P1", res.Rows[0].Value("PackageID"))
	assert.Equal(t, "P2", res.Rows[1].Value("PackageID"))
	assert.Equal(t, "P3", res.Rows[2].Value("PackageID"))
	assert.Equal(t, "Source1", res.Rows[0].Value("Source"))
	assert.Equal(t, "Source2", res.Rows[2].Value("Source"))
	assert.Equal(t, "Yes", res.Rows[0].Value("IsActive"))
	assert.Equal(t, "No", res.Rows[1].Value("IsActive"))
	assert.False(t, res.Empty)
	assert.Equal(t, KeyNumeric, res.Kind)
	assert.Equal(t, []any{"42", "42"}, slow.lastArgs)
}

func TestSearch_TextVariant(t *testing.T) {
	c1 := &fakeClient{}
	c2 := &fakeClient{}
	d := New(map[string]adapters.Client{"db1": c1, "db2": c2})

	res, err := d.Search(context.Background(), testSearch(), "Cup")
	require.NoError(t, err)

	assert.Equal(t, KeyText, res.Kind)
	assert.Contains(t, c1.lastQuery, "LIKE")
	assert.Equal(t, []any{"%Cup%"}, c1.lastArgs)
}

func TestSearch_AllEmptyYieldsSentinel(t *testing.T) {
	d := New(map[string]adapters.Client{"db1": &fakeClient{}, "db2": &fakeClient{}})

	res, err := d.Search(context.Background(), testSearch(), "nothing")
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.True(t, res.Empty)
	assert.True(t, res.Rows[0].Placeholder)
	assert.Equal(t, "No results found.", res.Rows[0].Value("CustomerID"))
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, 0, res.Failed)
}

func TestSearch_FailureIsIsolated(t *testing.T) {
	broken := &fakeClient{err: diag.New(diag.KindConnectionFailed, "db1", "connection refused")}
	healthy := &fakeClient{rows: []adapters.RawRow{{int64(3), nil, "P3"}}}
	d := New(map[string]adapters.Client{"db1": broken, "db2": healthy})

	res, err := d.Search(context.Background(), testSearch(), "42")
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, "P3", res.Rows[0].Value("PackageID"))
	assert.Equal(t, "No data available", res.Rows[0].Value("IsActive"))
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, "1 of 2 sources unavailable", res.Summary())

	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, diag.KindConnectionFailed, res.Diagnostics[0].Kind)
	assert.Equal(t, "Source1", res.Diagnostics[0].Scope)
}

func TestSearch_AllFailedYieldsSentinel(t *testing.T) {
	d := New(map[string]adapters.Client{
		"db1": &fakeClient{err: errors.New("boom")},
	})

	res, err := d.Search(context.Background(), testSearch(), "42")
	require.NoError(t, err)

	assert.True(t, res.Empty)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, diag.KindQueryFailed, res.Diagnostics[0].Kind)
	assert.Equal(t, diag.KindConnectionFailed, res.Diagnostics[1].Kind)
}

func TestSearch_CanceledContext(t *testing.T) {
	d := New(map[string]adapters.Client{
		"db1": &fakeClient{delay: time.Second},
		"db2": &fakeClient{delay: time.Second},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Search(ctx, testSearch(), "42")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFan_PanicBecomesQueryFailed(t *testing.T) {
	d := New(map[string]adapters.Client{"db1": panicClient{}})

	out := d.Fan(context.Background(), []Target{{Source: "Source1", Database: "db1", Query: "SELECT 1"}})

	require.Len(t, out, 1)
	assert.True(t, out[0].Failed())
	assert.Equal(t, diag.KindQueryFailed, diag.KindOf(out[0].Err))
}

func TestFan_RetriesConnectionFailures(t *testing.T) {
	flaky := &flakyClient{failures: 2}
	r, err := retry.NewRetryer(retry.EnableRetry(3, time.Millisecond))
	require.NoError(t, err)

	d := New(map[string]adapters.Client{"db1": flaky}, WithRetry(r))
	out := d.Fan(context.Background(), []Target{{Source: "Source1", Database: "db1", Query: "SELECT 1"}})

	require.NoError(t, out[0].Err)
	assert.Len(t, out[0].Rows, 1)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestFan_OpenCircuitSkipsSource(t *testing.T) {
	broken := &fakeClient{err: diag.New(diag.KindConnectionFailed, "db1", "refused")}
	group, err := resilience.NewGroup(resilience.Config{
		Enabled:          true,
		MaxFailures:      2,
		Timeout:          time.Minute,
		SuccessThreshold: 1,
	})
	require.NoError(t, err)

	d := New(map[string]adapters.Client{"db1": broken}, WithBreakers(group))
	target := []Target{{Source: "Source1", Database: "db1", Query: "SELECT 1"}}

	d.Fan(context.Background(), target)
	d.Fan(context.Background(), target)
	out := d.Fan(context.Background(), target)

	assert.Equal(t, int32(2), broken.calls.Load())
	assert.ErrorIs(t, out[0].Err, resilience.ErrCircuitOpen)
	assert.Equal(t, diag.KindConnectionFailed, diag.KindOf(out[0].Err))
}

type panicClient struct{}

func (panicClient) Execute(ctx context.Context, query string, args ...any) ([]adapters.RawRow, error) {
	panic("driver bug")
}
func (panicClient) Rebind(query string) string { return query }
func (panicClient) GetDatabaseType() string    { return "fake" }

// flakyClient - первые failures вызовов падают с ConnectionFailed
type flakyClient struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyClient) Execute(ctx context.Context, query string, args ...any) ([]adapters.RawRow, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, diag.New(diag.KindConnectionFailed, "db1", "connection reset")
	}
	return []adapters.RawRow{{int64(1)}}, nil
}
func (f *flakyClient) Rebind(query string) string { return query }
func (f *flakyClient) GetDatabaseType() string    { return "fake" }
