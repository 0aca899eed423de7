package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIResponse is the envelope of every panel response. Code carries the
// business result; the HTTP status is 200 unless the request itself failed.
type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Respond writes a business result with HTTP 200.
func Respond(c *gin.Context, code int, data interface{}, message string) {
	c.JSON(http.StatusOK, APIResponse{Code: code, Message: message, Data: data})
}

// RespondSuccess writes code 200 with data.
func RespondSuccess(c *gin.Context, data interface{}) {
	Respond(c, http.StatusOK, data, "")
}

// RespondError writes a failed request with a matching HTTP status.
func RespondError(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, APIResponse{Code: httpStatus, Message: message})
}

// AbortUnauthorized stops the chain with the 401 the panel frontend expects.
func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, APIResponse{Code: http.StatusUnauthorized, Message: "UnauthorizedError"})
}
