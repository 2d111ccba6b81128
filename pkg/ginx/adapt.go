package ginx

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Adapt2 adapts a handler with no args that returns a value.
func Adapt2[T any](fn func(*gin.Context) T) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		renderResponse(ctx, fn(ctx))
	}
}

// Adapt3 adapts a handler with no args that returns a value and an error.
func Adapt3[T any](fn func(*gin.Context) (T, error)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		result, err := fn(ctx)
		if err != nil {
			renderError(ctx, http.StatusInternalServerError, err)
			return
		}
		renderResponse(ctx, result)
	}
}

// Adapt4 adapts a handler with bound args that returns only an error.
// Success renders 204 No Content.
func Adapt4[T any](fn func(*gin.Context, *T) error) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		args := new(T)
		if err := bindArgs(ctx, args); err != nil {
			renderError(ctx, http.StatusBadRequest, err)
			return
		}
		if err := validArgs(args); err != nil {
			renderError(ctx, http.StatusBadRequest, err)
			return
		}

		if err := fn(ctx, args); err != nil {
			renderError(ctx, http.StatusInternalServerError, err)
			return
		}
		ctx.Status(http.StatusNoContent)
	}
}

// Adapt5 adapts a handler with bound args that returns a value and an
// error.
func Adapt5[TArgs any, TResp any](fn func(*gin.Context, *TArgs) (TResp, error)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		args := new(TArgs)
		if err := bindArgs(ctx, args); err != nil {
			renderError(ctx, http.StatusBadRequest, err)
			return
		}
		if err := validArgs(args); err != nil {
			renderError(ctx, http.StatusBadRequest, err)
			return
		}

		result, err := fn(ctx, args)
		if err != nil {
			renderError(ctx, http.StatusInternalServerError, err)
			return
		}
		renderResponse(ctx, result)
	}
}

// validArgs runs the args' own IsValid check when it implements one.
func validArgs(args any) error {
	if validator, ok := args.(interface{ IsValid() error }); ok {
		return validator.IsValid()
	}
	return nil
}
