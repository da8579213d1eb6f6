package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
)

// Result describes one exported document.
type Result struct {
	FileName    string   `json:"file_name"`
	ContentType string   `json:"content_type"`
	Data        []byte   `json:"-"`
	Locations   []string `json:"locations"`
}

// Exporter renders documents and hands them to every configured sink.
type Exporter struct {
	sinks []Sink
	log   *logrus.Logger
}

// NewExporter creates an exporter writing to sinks. With no sinks Export only renders.
func NewExporter(logger *logrus.Logger, sinks ...Sink) *Exporter {
	return &Exporter{sinks: sinks, log: logger}
}

// NewExporterFromConfig wires the directory sink and, when enabled, the S3 sink.
func NewExporterFromConfig(ctx context.Context, cfg domain.ExportConfig, logger *logrus.Logger) (*Exporter, error) {
	var sinks []Sink
	if cfg.Directory != "" {
		dir, err := NewDirectorySink(cfg.Directory)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, dir)
	}
	if cfg.S3.Enabled {
		bucket, err := NewS3Sink(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, bucket)
	}
	return NewExporter(logger, sinks...), nil
}

// Render renders doc without storing it.
func (e *Exporter) Render(doc *domain.ExportDocument, format Format) (*Result, error) {
	renderer, err := RendererFor(format)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := renderer.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExportFailed, err)
	}
	return &Result{
		FileName:    FileName(doc, format),
		ContentType: renderer.ContentType(),
		Data:        buf.Bytes(),
	}, nil
}

// Export renders doc and stores it in every sink. The first sink failure aborts the export.
func (e *Exporter) Export(ctx context.Context, doc *domain.ExportDocument, format Format) (*Result, error) {
	result, err := e.Render(doc, format)
	if err != nil {
		return nil, err
	}

	for _, sink := range e.sinks {
		location, err := sink.Store(ctx, result.FileName, result.ContentType, result.Data)
		if err != nil {
			e.log.WithError(err).WithField("file", result.FileName).Error("Failed to store exported report")
			return nil, fmt.Errorf("%w: %v", domain.ErrExportFailed, err)
		}
		result.Locations = append(result.Locations, location)
	}

	e.log.WithFields(logrus.Fields{
		"file":      result.FileName,
		"format":    format,
		"bytes":     len(result.Data),
		"locations": result.Locations,
	}).Info("Report exported")
	return result, nil
}
