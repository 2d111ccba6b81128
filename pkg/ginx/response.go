package ginx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jimyag/nqg/pkg/apierror"
)

// renderResponse renders a success response as JSON. Bare strings render
// as plain text, nil renders 204 No Content.
func renderResponse(ctx *gin.Context, response any) {
	if response == nil {
		ctx.Status(http.StatusNoContent)
		return
	}

	if s, ok := response.(string); ok {
		ctx.String(http.StatusOK, s)
		return
	}

	ctx.JSON(http.StatusOK, response)
}

// renderError renders an error response. A *apierror.Error anywhere in
// the chain supplies both the HTTP status and the serialized body,
// anything else falls back to statusCode with a plain error message.
func renderError(ctx *gin.Context, statusCode int, err error) {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatus > 0 {
			statusCode = apiErr.HTTPStatus
		}
		ctx.JSON(statusCode, gin.H{"error": apiErr})
		return
	}

	ctx.JSON(statusCode, gin.H{"error": gin.H{"message": err.Error()}})
}
