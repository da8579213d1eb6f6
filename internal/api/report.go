package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
	"github.com/oscillometry-report-server/internal/export"
	"github.com/oscillometry-report-server/internal/session"
)

// ComputeRequest is the body of POST /api/report/compute.
type ComputeRequest struct {
	Cells     map[domain.CellKey]string `json:"cells"`
	Precision *int                      `json:"precision,omitempty"`
}

func (s *Server) handleComputeReport(c *gin.Context) {
	var req ComputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "invalid compute request", err.Error())
		return
	}
	for key, value := range req.Cells {
		if !key.IsValid() {
			s.respondError(c, http.StatusBadRequest, domain.CodeValidation, domain.NewCellError(key, value, domain.ErrUnknownCell).Error(), string(key))
			return
		}
		if !domain.IsValidCellValue(value) {
			s.respondError(c, http.StatusBadRequest, domain.CodeValidation, domain.NewCellError(key, value, domain.ErrInvalidCell).Error(), string(key))
			return
		}
	}

	precision := s.configManager.GetConfig().Report.DefaultPrecision
	if req.Precision != nil {
		precision = *req.Precision
	}

	c.JSON(http.StatusOK, s.engine.Compute(req.Cells, session.ClampPrecision(precision)))
}

func (s *Server) handlePatientReport(c *gin.Context) {
	sess, ok := s.loadSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Report())
}

// handleExportPatient renders the stored report, hands it to the configured sinks and
// returns the document as an attachment.
func (s *Server) handleExportPatient(c *gin.Context) {
	if s.exporter == nil {
		s.respondError(c, http.StatusServiceUnavailable, domain.CodeExportError, errNoExporter.Error(), "")
		return
	}
	format, err := export.ParseFormat(c.DefaultQuery("format", string(export.FormatXLSX)))
	if err != nil {
		s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, err.Error(), "format")
		return
	}

	sess, ok := s.loadSession(c)
	if !ok {
		return
	}

	result, err := s.exporter.Export(c.Request.Context(), sess.ExportDocument(time.Now()), format)
	s.metrics.ObserveExport(format, err)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"patient_id": sess.ID(),
			"format":     format,
		}).Error("Export failed")
		_ = c.Error(err)
		s.respondError(c, http.StatusInternalServerError, domain.CodeExportError, "export failed", err.Error())
		return
	}

	if len(result.Locations) > 0 {
		c.Header("X-Export-Locations", strings.Join(result.Locations, ","))
	}
	c.Header("Content-Disposition", contentDisposition(result.FileName))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// loadSession rebuilds a read-only report session for the :id record. On failure the
// response has already been written.
func (s *Server) loadSession(c *gin.Context) (*session.ReportSession, bool) {
	precision := s.configManager.GetConfig().Report.DefaultPrecision
	if raw := c.Query("precision"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "precision must be an integer", raw)
			return nil, false
		}
		precision = p
	}

	id := c.Param("id")
	record, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		s.respondStoreError(c, err, "get", MsgPatientNotFound)
		return nil, false
	}

	sess := session.NewReportSession(id, id, s.log, s.engine, nil, nil, precision)
	sess.ApplyRecord(record)
	return sess, true
}

// contentDisposition builds an attachment header carrying a UTF-8 file name.
func contentDisposition(name string) string {
	ascii := strings.Map(func(r rune) rune {
		if r > 0x7e || r < 0x20 || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, ascii, url.PathEscape(name))
}

var errNoExporter = errors.New("export is not configured")
