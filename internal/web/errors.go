package web

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/taskmarket/internal/market"
)

// statuses maps market error codes to HTTP statuses. Codes not listed
// are 500.
var statuses = map[string]int{
	market.CodeTaskNotFound:       http.StatusNotFound,
	market.CodeUserNotFound:       http.StatusNotFound,
	market.CodeInvalidTransition:  http.StatusConflict,
	market.CodeConflict:           http.StatusConflict,
	market.CodeEmailTaken:         http.StatusConflict,
	market.CodeNotPublisher:       http.StatusForbidden,
	market.CodeNotOccupier:        http.StatusForbidden,
	market.CodeNotParticipant:     http.StatusForbidden,
	market.CodeSelfClaim:          http.StatusUnprocessableEntity,
	market.CodeNoOccupier:         http.StatusUnprocessableEntity,
	market.CodeOverpayment:        http.StatusUnprocessableEntity,
	market.CodeInsufficientFunds:  http.StatusUnprocessableEntity,
	market.CodeInvalidAmount:      http.StatusBadRequest,
	market.CodeInvalidInput:       http.StatusBadRequest,
	market.CodeInvalidCredentials: http.StatusUnauthorized,
	market.CodeNotLoggedIn:        http.StatusUnauthorized,
}

// StatusFor returns the HTTP status for a market error code.
func StatusFor(code string) int {
	if status, ok := statuses[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newErrorBody(code, message string) errorBody {
	var b errorBody
	b.Error.Code = code
	b.Error.Message = message
	return b
}

// fail writes err with the status its code maps to.
func fail(c *gin.Context, err error) {
	code := market.ErrorCode(err)
	status := StatusFor(code)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, newErrorBody(code, "internal error"))
		return
	}
	c.JSON(status, newErrorBody(code, err.Error()))
}

// abort writes an error and stops the handler chain.
func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, newErrorBody(code, message))
}

// badRequest reports a body that could not be decoded.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, newErrorBody(market.CodeInvalidInput, err.Error()))
}
