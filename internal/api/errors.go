package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"casare-orchestrator/internal/orcherr"
)

// respondErr maps an orcherr.Code to its HTTP status and writes a JSON
// error body, the single place every handler funnels facade errors through.
func respondErr(c *gin.Context, err error) {
	code := orcherr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case orcherr.NotFound:
		status = http.StatusNotFound
	case orcherr.PreconditionFailed:
		status = http.StatusPreconditionFailed
	case orcherr.Conflict:
		status = http.StatusConflict
	case orcherr.CapacityExceeded:
		status = http.StatusTooManyRequests
	case orcherr.Timeout:
		status = http.StatusGatewayTimeout
	case orcherr.Cancelled:
		status = http.StatusGone
	case orcherr.Permanent:
		status = http.StatusBadRequest
	case orcherr.Transient:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
