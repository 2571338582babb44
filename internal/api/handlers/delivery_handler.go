// internal/api/handlers/delivery_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"property-delivery-api-server/internal/api/middleware"
	"property-delivery-api-server/internal/delivery"
	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/models"
)

const maxPhotoSize = 10 << 20

// DeliveryHandler serves the web dashboard.
type DeliveryHandler struct {
	Workflow *delivery.Workflow
}

type AssignRequest struct {
	UnitID string `json:"unitId" binding:"required"`
}

type CollectRequest struct {
	Notes string `json:"notes"`
}

func (h *DeliveryHandler) Register(c *gin.Context) {
	var req delivery.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := h.Workflow.Register(c.Request.Context(), middleware.CurrentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// Get returns the delivery with the statuses it may move to next, so the
// dashboard only offers legal actions.
func (h *DeliveryHandler) Get(c *gin.Context) {
	d, err := h.Workflow.Get(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"delivery":     d,
		"nextStatuses": delivery.NextStatuses(d.Status),
	})
}

func searchInput(c *gin.Context) (delivery.SearchInput, error) {
	from, err := queryTime(c, "from")
	if err != nil {
		return delivery.SearchInput{}, err
	}
	to, err := queryTime(c, "to")
	if err != nil {
		return delivery.SearchInput{}, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return delivery.SearchInput{}, fault.ErrInvalidDateRange
	}
	return delivery.SearchInput{
		PropertyID:     c.Query("propertyId"),
		UnitID:         c.Query("unitId"),
		DeliveryType:   models.DeliveryType(c.Query("type")),
		Status:         models.DeliveryStatus(c.Query("status")),
		From:           from,
		To:             to,
		Text:           c.Query("q"),
		TrackingNumber: c.Query("trackingNumber"),
	}, nil
}

// Search pages through delivery history: GET /deliveries?propertyId=&cursor=&limit=
func (h *DeliveryHandler) Search(c *gin.Context) {
	in, err := searchInput(c)
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}

	page, err := h.Workflow.Search(c.Request.Context(), middleware.CurrentUser(c), in, c.Query("cursor"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *DeliveryHandler) Report(c *gin.Context) {
	in, err := searchInput(c)
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := h.Workflow.ExportReport(c.Request.Context(), middleware.CurrentUser(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *DeliveryHandler) Logs(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}

	page, err := h.Workflow.ListLogs(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), c.Query("cursor"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *DeliveryHandler) Issues(c *gin.Context) {
	issues, err := h.Workflow.ListIssues(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issues)
}

func (h *DeliveryHandler) Assign(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := h.Workflow.AssignToUnit(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), req.UnitID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *DeliveryHandler) Collect(c *gin.Context) {
	var req CollectRequest
	// the body is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	d, err := h.Workflow.MarkCollected(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *DeliveryHandler) UpdateStatus(c *gin.Context) {
	var req delivery.StatusInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := h.Workflow.UpdateStatus(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *DeliveryHandler) ReportIssue(c *gin.Context) {
	var req delivery.IssueInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := h.Workflow.ReportIssue(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// UploadPhoto takes a multipart "photo" field.
func (h *DeliveryHandler) UploadPhoto(c *gin.Context) {
	header, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	if header.Size == 0 {
		respondError(c, fault.ErrEmptyFile)
		return
	}
	if header.Size > maxPhotoSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo is larger than 10MB"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read photo"})
		return
	}
	defer file.Close()

	d, err := h.Workflow.AddPhoto(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), file, header.Header.Get("Content-Type"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *DeliveryHandler) LedgerStatus(c *gin.Context) {
	record, err := h.Workflow.LedgerStatus(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}
