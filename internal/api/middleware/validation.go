package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ValidatorConfig holds request validation limits, per spec §6's job
// submission payload.
type ValidatorConfig struct {
	MaxBodySize        int64
	MaxWorkflowIDLen   int
	MaxWorkflowNameLen int
	MaxTags            int
	MaxPriority        int
	MinPriority        int
}

// DefaultValidatorConfig returns safe defaults.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxBodySize:        1 << 20,
		MaxWorkflowIDLen:   256,
		MaxWorkflowNameLen: 256,
		MaxTags:            32,
		MinPriority:        0,
		MaxPriority:        9,
	}
}

// Validator performs request-level validation ahead of the orchestrator
// facade, so malformed submissions fail fast with a 400 rather than
// reaching the store layer.
type Validator struct {
	config ValidatorConfig
}

func NewValidator(config ValidatorConfig) *Validator {
	return &Validator{config: config}
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (v *Validator) ValidateWorkflowID(workflowID string) error {
	if workflowID == "" {
		return &ValidationError{Field: "workflow_id", Message: "workflow_id is required"}
	}
	if len(workflowID) > v.config.MaxWorkflowIDLen {
		return &ValidationError{Field: "workflow_id", Message: "workflow_id exceeds maximum length"}
	}
	return nil
}

func (v *Validator) ValidateWorkflowName(name string) error {
	if len(name) > v.config.MaxWorkflowNameLen {
		return &ValidationError{Field: "workflow_name", Message: "workflow_name exceeds maximum length"}
	}
	return nil
}

func (v *Validator) ValidateTags(tags []string) error {
	if len(tags) > v.config.MaxTags {
		return &ValidationError{Field: "tags", Message: "too many tags"}
	}
	return nil
}

func (v *Validator) ValidatePriority(priority int) error {
	if priority < v.config.MinPriority || priority > v.config.MaxPriority {
		return &ValidationError{Field: "priority", Message: "priority out of range"}
	}
	return nil
}

// BodySizeLimitMiddleware rejects oversized request bodies before they
// reach a handler; large payloads belong in the artifact store instead
// (spec §4.1 oversized-payload overflow).
func BodySizeLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request body too large",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// SecurityHeadersMiddleware adds standard defensive response headers.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Next()
	}
}

// RequestIDMiddleware attaches a unique request ID to every request,
// generating one when the caller didn't supply X-Request-ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		c.Set(ContextRequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
