package handlers

import (
	"context"
	"net/http"

	"marketplace/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReportHandler struct {
	*Deps
}

func NewReportHandler(d *Deps) *ReportHandler { return &ReportHandler{d} }

func (h *ReportHandler) List(c *gin.Context) {
	q, err := h.listQuery(c, "lastGenerated", "name", "category")
	if err != nil {
		h.fail(c, err, "Report")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	reports, err := h.Store.Reports.List(ctx, q)
	if err != nil {
		h.fail(c, err, "Report")
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (h *ReportHandler) Get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	r, err := h.Store.Reports.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Report")
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *ReportHandler) Create(c *gin.Context) {
	var r models.Report
	if err := bind(c, &r); err != nil {
		h.fail(c, err, "Report")
		return
	}
	r.ID = primitive.NilObjectID
	if r.Status == "" {
		r.Status = models.ReportCompleted
	}
	if err := r.Validate(); err != nil {
		h.fail(c, err, "Report")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.Store.Reports.Create(ctx, &r); err != nil {
		h.fail(c, err, "Report")
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *ReportHandler) Update(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	r, err := h.Store.Reports.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Report")
		return
	}
	set, err := patch(c, r, r.Validate, "name", "category", "status", "data")
	if err != nil {
		h.fail(c, err, "Report")
		return
	}
	updated, err := h.Store.Reports.Update(ctx, r.ID.Hex(), set)
	if err != nil {
		h.fail(c, err, "Report")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete removes the report and cancels any generation still waiting to run.
func (h *ReportHandler) Delete(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	r, err := h.Store.Reports.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Report")
		return
	}
	if err := h.Store.Reports.Delete(ctx, r.ID.Hex()); err != nil {
		h.fail(c, err, "Report")
		return
	}
	if _, err := h.Jobs.CancelPending(ctx, models.JobReportGenerate, r.ID); err != nil {
		h.Log.WithError(err).WithField("report", r.ID.Hex()).Warn("Failed to cancel pending generation")
	}
	c.JSON(http.StatusOK, gin.H{"message": "Report deleted successfully"})
}

// Generate marks the report Processing and schedules the computation.
func (h *ReportHandler) Generate(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	r, err := h.Store.Reports.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Report")
		return
	}
	if _, err := h.Jobs.CancelPending(ctx, models.JobReportGenerate, r.ID); err != nil {
		h.fail(c, err, "Report")
		return
	}
	updated, err := h.Store.Reports.Update(ctx, r.ID.Hex(), bson.M{"status": models.ReportProcessing})
	if err != nil {
		h.fail(c, err, "Report")
		return
	}
	job, err := h.Jobs.Schedule(ctx, models.JobReportGenerate, r.ID, h.ReportDelay, nil)
	if err != nil {
		h.fail(c, err, "Report")
		return
	}

	h.Log.WithFields(logrus.Fields{"report": r.Name, "job": job.ID.Hex()}).Info("Report generation scheduled")
	h.publish("report.processing", updated)
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Report generation started",
		"report":  updated,
		"jobId":   job.ID.Hex(),
	})
}
