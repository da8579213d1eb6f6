package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
)

// Error messages returned to the editor client.
const (
	MsgPatientNotFound         = "Пациент не найден"
	MsgPatientNotFoundToDelete = "Пациент не найден для удаления"
)

func (s *Server) handleListPatients(c *gin.Context) {
	patients, err := s.store.List(c.Request.Context())
	if err != nil {
		s.respondStoreError(c, err, "list", MsgPatientNotFound)
		return
	}
	c.JSON(http.StatusOK, patients)
}

func (s *Server) handleGetPatient(c *gin.Context) {
	record, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondStoreError(c, err, "get", MsgPatientNotFound)
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleSavePatient upserts a record: 201 when the id was new or absent, 200 on update.
func (s *Server) handleSavePatient(c *gin.Context) {
	var record domain.PatientRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "invalid patient record", err.Error())
		return
	}
	if err := record.Validate(); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			s.respondError(c, http.StatusBadRequest, domain.CodeValidation, verr.Error(), verr.Field)
			return
		}
		s.respondError(c, http.StatusBadRequest, domain.CodeValidation, err.Error(), "")
		return
	}
	record.Normalize()

	stored, created, err := s.store.Put(c.Request.Context(), &record)
	if err != nil {
		s.respondStoreError(c, err, "save", MsgPatientNotFound)
		return
	}

	s.log.WithFields(logrus.Fields{
		"patient_id": stored.ID,
		"created":    created,
	}).Info("Patient saved")
	s.metrics.ObservePatientChange(domain.ChangeSaved)
	s.events.Publish(domain.ChangeEvent{Type: domain.ChangeSaved, ID: stored.ID})

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, stored)
}

func (s *Server) handleDeletePatient(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.Delete(c.Request.Context(), id); err != nil {
		s.respondStoreError(c, err, "delete", MsgPatientNotFoundToDelete)
		return
	}

	s.log.WithField("patient_id", id).Info("Patient deleted")
	s.metrics.ObservePatientChange(domain.ChangeDeleted)
	s.events.Publish(domain.ChangeEvent{Type: domain.ChangeDeleted, ID: id})
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearPatients(c *gin.Context) {
	if err := s.store.Clear(c.Request.Context()); err != nil {
		s.respondStoreError(c, err, "clear", MsgPatientNotFound)
		return
	}

	s.log.Info("All patients cleared")
	s.metrics.ObservePatientChange(domain.ChangeCleared)
	s.events.Publish(domain.ChangeEvent{Type: domain.ChangeCleared})
	c.Status(http.StatusNoContent)
}
