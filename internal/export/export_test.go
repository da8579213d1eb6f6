package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/oscillometry-report-server/internal/domain"
	"github.com/oscillometry-report-server/internal/service"
)

func testDocument(t *testing.T) *domain.ExportDocument {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	report := service.NewDerivationEngine(logger).Compute(map[domain.CellKey]string{
		domain.CellG7: "100",
		domain.CellJ7: "90",
		domain.CellG8: "80",
	}, 2)

	return &domain.ExportDocument{
		FileName:    domain.ExportFileName("Иванов"),
		Rows:        report.Table,
		Conclusion1: strings.Join(report.ConclusionTexts()[:4], "\n"),
		Conclusion2: strings.Join(report.ConclusionTexts()[4:], "\n"),
		PatientLine: "Пациент: Иванов, возраст: 44",
		DoctorName:  "Петров П.П.",
		Date:        time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatXLSX, false},
		{"XLSX", FormatXLSX, false},
		{"markdown", FormatMarkdown, false},
		{" md ", FormatMarkdown, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.True(t, errors.Is(err, domain.ErrUnsupportedFormat), tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestXLSXRenderer_PlacesCellsAtSheetCoordinates(t *testing.T) {
	doc := testDocument(t)

	var buf bytes.Buffer
	require.NoError(t, XLSXRenderer{}.Render(&buf, doc))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	value := func(cell string) string {
		v, err := f.GetCellValue(SheetName, cell)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, doc.Rows[0][0].Value, value("F5"))
	assert.Equal(t, "100", value("G7"))
	assert.Equal(t, "-10,00", value("M7"))
	assert.Equal(t, "20,00", value("H9"))
	assert.Equal(t, doc.PatientLine, value("F2"))
	assert.Equal(t, "Дата исследования: 05.03.2024", value("F3"))
	assert.Equal(t, doc.Conclusion1, value("F15"))
	assert.Equal(t, doc.Conclusion2, value("F16"))
	assert.Equal(t, "Врач: Петров П.П.", value("F18"))
}

func TestMarkdownRenderer(t *testing.T) {
	doc := testDocument(t)

	var buf bytes.Buffer
	require.NoError(t, MarkdownRenderer{}.Render(&buf, doc))
	out := buf.String()

	assert.Contains(t, out, "# Импульсная осциллометрия")
	assert.Contains(t, out, doc.PatientLine)
	assert.Contains(t, out, "05.03.2024")
	assert.Contains(t, out, "-10,00")
	assert.Contains(t, out, service.TextNoPeripheralObstruction)
	assert.Contains(t, out, "Врач: Петров П.П.")
}

func TestTableMarkdown(t *testing.T) {
	doc := testDocument(t)

	var buf bytes.Buffer
	require.NoError(t, TableMarkdown(&buf, doc.Rows))
	assert.Equal(t, len(doc.Rows)+1, strings.Count(strings.TrimSpace(buf.String()), "\n")+1)

	buf.Reset()
	require.NoError(t, TableMarkdown(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestExporter_DirectorySink(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	dir := filepath.Join(t.TempDir(), "exports")
	sink, err := NewDirectorySink(dir)
	require.NoError(t, err)

	result, err := NewExporter(logger, sink).Export(context.Background(), testDocument(t), FormatMarkdown)
	require.NoError(t, err)

	assert.Equal(t, "Иванов отчёт импульсная осциллометрия.md", result.FileName)
	require.Len(t, result.Locations, 1)
	data, err := os.ReadFile(result.Locations[0])
	require.NoError(t, err)
	assert.Equal(t, result.Data, data)
}

type failingSink struct{}

func (failingSink) Store(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("disk full")
}

func TestExporter_SinkFailure(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	_, err := NewExporter(logger, failingSink{}).Export(context.Background(), testDocument(t), FormatXLSX)
	assert.True(t, errors.Is(err, domain.ErrExportFailed))
}

func TestExporter_RenderOnly(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	result, err := NewExporter(logger).Export(context.Background(), testDocument(t), FormatXLSX)
	require.NoError(t, err)
	assert.Empty(t, result.Locations)
	assert.NotEmpty(t, result.Data)
	assert.Equal(t, XLSXRenderer{}.ContentType(), result.ContentType)
}

// fakeS3 records PutObject requests sent through the AWS client.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPut {
		return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(strings.NewReader("")), Header: http.Header{}}, nil
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[req.URL.Path] = body
	f.types[req.URL.Path] = req.Header.Get("Content-Type")
	f.mu.Unlock()
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     http.Header{"ETag": {"\"etag\""}},
	}, nil
}

func TestS3Sink_Store(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	sink := NewS3SinkFromClient(client, "reports", "ios/")
	location, err := sink.Store(context.Background(), "report.md", "text/markdown", []byte("# hi"))
	require.NoError(t, err)

	assert.Equal(t, "s3://reports/ios/report.md", location)
	assert.Contains(t, string(fake.objects["/reports/ios/report.md"]), "# hi")
	assert.Equal(t, "text/markdown", fake.types["/reports/ios/report.md"])
}

func TestNewS3Sink_RequiresBucket(t *testing.T) {
	_, err := NewS3Sink(context.Background(), domain.S3Config{})
	assert.Error(t, err)
}
