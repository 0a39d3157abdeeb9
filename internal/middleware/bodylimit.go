package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultBodyLimit bounds webhook and send payloads. The provider caps
// webhook bodies well below this; the margin covers attachment-heavy sends.
const DefaultBodyLimit = 10 * 1024 * 1024 // 10MB

// BodySizeLimit rejects oversized request bodies before handlers read them.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("request body exceeds %d bytes", maxBytes),
			})
			return
		}

		// Guard against chunked bodies that skip Content-Length.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

		c.Next()
	}
}
