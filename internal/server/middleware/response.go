package middleware

import (
	"github.com/gin-gonic/gin"

	"taskflow/backend/internal/i18n"
)

// ErrorDetail is one localized violation inside an ErrorResponse.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the JSON body of every failed request. Code is stable; Error is localized.
type ErrorResponse struct {
	Error   string        `json:"error"`
	Code    string        `json:"code"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// AbortWithError writes an ErrorResponse in the caller's Accept-Language and stops the chain.
// details are message keys, typically password policy violations.
func AbortWithError(c *gin.Context, tr *i18n.Translator, status int, code string, details ...string) {
	lang := c.GetHeader("Accept-Language")
	localize := func(key string) string {
		if tr == nil {
			return key
		}
		return tr.Localize(lang, key)
	}
	body := ErrorResponse{Error: localize(code), Code: code}
	for _, d := range details {
		body.Details = append(body.Details, ErrorDetail{Code: d, Message: localize(d)})
	}
	c.AbortWithStatusJSON(status, body)
}
