package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/ezsearch/pkg/diag"
	"github.com/ruslano69/ezsearch/pkg/processors"
	"github.com/ruslano69/ezsearch/pkg/table"
)

var exportTime = time.Date(2024, 6, 10, 14, 30, 5, 0, time.Local)

var columns = []string{"CustomerID", "Description", "Source"}

// fiveRowTable - 5 строк, строки 2 и 4 (1-based) скрыты фильтром
func fiveRowTable(t *testing.T) *table.Table {
	t.Helper()
	tbl := table.New("primary")

	descriptions := []string{"keep one", "drop", "keep, two", "drop", "keep \"three\""}
	rows := make([]table.Row, len(descriptions))
	for i, d := range descriptions {
		rows[i] = table.NewRow("Source1", map[string]table.Cell{
			"CustomerID":  table.Text(string(rune('1' + i))),
			"Description": table.Text(d),
			"Source":      table.Text("Source1"),
		})
	}

	require.NoError(t, tbl.Load(tbl.Begin(), columns, rows))
	_, err := tbl.SetFilter("Description", table.Contains("keep"))
	require.NoError(t, err)
	require.Equal(t, 3, tbl.VisibleCount())
	return tbl
}

func newTestExporter(t *testing.T, cfg Config, opts ...Option) *Exporter {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return exportTime })}, opts...)
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	return e
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExport_CSVSkipsHiddenRows(t *testing.T) {
	dir := t.TempDir()
	tbl := fiveRowTable(t)
	e := newTestExporter(t, Config{Dir: dir})

	res, err := e.Export(context.Background(), tbl, "Primary")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "Primary_export_2024-06-10_14-30-05.csv"), res.Path)
	assert.Equal(t, 3, res.Rows)
	assert.Len(t, res.Checksum, 16)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, len(data), res.Bytes)

	records := readCSV(t, data)
	require.Len(t, records, 4)
	assert.Equal(t, columns, records[0])
	assert.Equal(t, []string{"1", "keep one", "Source1"}, records[1])
	assert.Equal(t, []string{"3", "keep, two", "Source1"}, records[2])
	assert.Equal(t, []string{"5", "keep \"three\"", "Source1"}, records[3])

	// таблица не изменилась
	assert.Equal(t, 5, tbl.RowCount())
	assert.Equal(t, 3, tbl.VisibleCount())
}

func TestExport_FollowsSortOrder(t *testing.T) {
	dir := t.TempDir()
	tbl := fiveRowTable(t)
	_, err := tbl.Sort("CustomerID")
	require.NoError(t, err)
	_, err = tbl.Sort("CustomerID")
	require.NoError(t, err)

	res, err := newTestExporter(t, Config{Dir: dir}).Export(context.Background(), tbl, "Primary")
	require.NoError(t, err)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	records := readCSV(t, data)
	require.Len(t, records, 4)
	assert.Equal(t, "5", records[1][0])
	assert.Equal(t, "1", records[3][0])
}

func TestExport_PlaceholderAbsentCellsAreEmpty(t *testing.T) {
	dir := t.TempDir()
	tbl := table.New("primary")
	require.NoError(t, tbl.Load(tbl.Begin(), columns, []table.Row{table.Placeholder("CustomerID", "No results found.")}))

	res, err := newTestExporter(t, Config{Dir: dir}).Export(context.Background(), tbl, "Primary")
	require.NoError(t, err)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	records := readCSV(t, data)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"No results found.", "", ""}, records[1])
}

func TestExport_SameSecondDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	e := newTestExporter(t, Config{Dir: dir})

	first, err := e.Export(context.Background(), fiveRowTable(t), "Primary")
	require.NoError(t, err)
	second, err := e.Export(context.Background(), fiveRowTable(t), "Primary")
	require.NoError(t, err)
	third, err := e.Export(context.Background(), fiveRowTable(t), "Primary")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "Primary_export_2024-06-10_14-30-05.csv"), first.Path)
	assert.Equal(t, filepath.Join(dir, "Primary_export_2024-06-10_14-30-05_2.csv"), second.Path)
	assert.Equal(t, filepath.Join(dir, "Primary_export_2024-06-10_14-30-05_3.csv"), third.Path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestExport_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Documents", "Ez Search")

	res, err := newTestExporter(t, Config{Dir: dir}).Export(context.Background(), fiveRowTable(t), "Infobox1")
	require.NoError(t, err)

	_, err = os.Stat(res.Path)
	assert.NoError(t, err)
}

func TestExport_UnwritableDirectory(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	e := newTestExporter(t, Config{Dir: filepath.Join(blocker, "sub")})
	_, err := e.Export(context.Background(), fiveRowTable(t), "Primary")

	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.ErrExportIOFailed))
}

func TestExport_Compressed(t *testing.T) {
	dir := t.TempDir()
	e := newTestExporter(t, Config{Dir: dir, Compress: true})

	res, err := e.Export(context.Background(), fiveRowTable(t), "Primary")
	require.NoError(t, err)
	assert.Equal(t, ".zst", filepath.Ext(res.Path))

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)

	decoder, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer decoder.Close()

	plain, err := decoder.DecodeAll(data, nil)
	require.NoError(t, err)
	assert.Len(t, readCSV(t, plain), 4)
}

func TestExport_XLSX(t *testing.T) {
	dir := t.TempDir()
	e := newTestExporter(t, Config{Dir: dir, Format: FormatXLSX})

	res, err := e.Export(context.Background(), fiveRowTable(t), "Primary")
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", filepath.Ext(res.Path))

	f, err := excelize.OpenFile(res.Path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Primary")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, columns, rows[0])
	assert.Equal(t, "keep, two", rows[2][1])
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{Format: "pdf"})
	assert.Equal(t, diag.KindConfigInvalid, diag.KindOf(err))

	_, err = New(Config{Format: FormatXLSX, Compress: true})
	assert.Equal(t, diag.KindConfigInvalid, diag.KindOf(err))
}

func TestFileName(t *testing.T) {
	e := newTestExporter(t, Config{})
	assert.Equal(t, "a_b_export_2024-06-10_14-30-05.csv", e.FileName("a/b", exportTime))
	assert.Equal(t, "table_export_2024-06-10_14-30-05.csv", e.FileName("", exportTime))
}

// fakeObjectUploader запоминает выгруженный объект
type fakeObjectUploader struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeObjectUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = input
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(input.Body); err != nil {
		return nil, err
	}
	f.body = buf.Bytes()
	return &manager.UploadOutput{}, nil
}

func TestExport_UploadsToS3(t *testing.T) {
	fake := &fakeObjectUploader{}
	uploader := newS3Uploader(S3Config{Bucket: "exports", Prefix: "ezsearch"}, fake)
	e := newTestExporter(t, Config{Dir: t.TempDir()}, WithUploader(uploader))

	res, err := e.Export(context.Background(), fiveRowTable(t), "Primary")
	require.NoError(t, err)

	assert.Equal(t, "s3://exports/ezsearch/Primary_export_2024-06-10_14-30-05.csv", res.Location)
	assert.Equal(t, "exports", *fake.input.Bucket)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, data, fake.body)
}

func TestExport_UploadFailureKeepsLocalFile(t *testing.T) {
	fake := &fakeObjectUploader{err: errors.New("access denied")}
	uploader := newS3Uploader(S3Config{Bucket: "exports"}, fake)
	e := newTestExporter(t, Config{Dir: t.TempDir()}, WithUploader(uploader))

	res, err := e.Export(context.Background(), fiveRowTable(t), "Primary")
	require.Error(t, err)
	assert.Equal(t, diag.KindExportIOFailed, diag.KindOf(err))

	require.NotNil(t, res)
	_, statErr := os.Stat(res.Path)
	assert.NoError(t, statErr)
}

func TestExport_MasksColumns(t *testing.T) {
	dir := t.TempDir()
	tbl := fiveRowTable(t)
	e := newTestExporter(t, Config{
		Dir:        dir,
		Processors: processors.Config{Mask: map[string]processors.MaskPattern{"Description": processors.MaskStars}},
	})

	res, err := e.Export(context.Background(), tbl, "Primary")
	require.NoError(t, err)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	records := readCSV(t, data)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"1", "**** ***", "Source1"}, records[1])

	// таблица не изменилась
	row, err := tbl.Row(0)
	require.NoError(t, err)
	assert.Equal(t, "keep one", row.Value("Description"))
}

func TestNew_InvalidMask(t *testing.T) {
	_, err := New(Config{Processors: processors.Config{Mask: map[string]processors.MaskPattern{"A": "rot13"}}})
	assert.Equal(t, diag.KindConfigInvalid, diag.KindOf(err))
}
