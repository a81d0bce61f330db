package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"
	HeaderDeviceName    = "X-Device-Name"

	maxDeviceNameLen = 128
	maxUserAgentLen  = 512
)

// Client captures the caller metadata recorded on sessions and audit entries. The correlation id is
// taken from X-Correlation-ID or X-Request-ID, or generated, and echoed on the response.
func Client() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderCorrelationID)
		if id == "" {
			id = c.GetHeader(HeaderRequestID)
		}
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(HeaderCorrelationID, id)
		info := ClientInfo{
			IPAddress:     c.ClientIP(),
			UserAgent:     truncate(c.Request.UserAgent(), maxUserAgentLen),
			DeviceName:    truncate(c.GetHeader(HeaderDeviceName), maxDeviceNameLen),
			CorrelationID: id,
		}
		c.Request = c.Request.WithContext(WithClient(c.Request.Context(), info))
		c.Next()
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
