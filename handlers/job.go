package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type JobHandler struct {
	*Deps
}

func NewJobHandler(d *Deps) *JobHandler { return &JobHandler{d} }

func (h *JobHandler) Get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	job, err := h.Jobs.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Job")
		return
	}
	c.JSON(http.StatusOK, job)
}

// Cancel stops a pending job. Jobs that already started answer 409.
func (h *JobHandler) Cancel(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	job, err := h.Jobs.Cancel(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Job")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job cancelled", "job": job})
}
