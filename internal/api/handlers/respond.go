package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"property-delivery-api-server/internal/fault"
)

// respondError answers a web request with the status of err's class.
func respondError(c *gin.Context, err error) {
	status := fault.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondMobile answers a mobile request. Mobile clients read success instead
// of the status code, so failures are reported with 200.
func respondMobile(c *gin.Context, err error, payload gin.H) {
	if err != nil {
		log.Printf("Mobile %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error()})
		return
	}
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fault.ErrInvalidDateRange
	}
	return &t, nil
}

func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fault.ErrInvalidLimit
	}
	return limit, nil
}
