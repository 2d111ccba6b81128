package ginx

import (
	"github.com/gin-gonic/gin"
)

// bindArgs binds the request onto args. Priority: JSON body, then URI
// params, then query params, then form.
func bindArgs(ctx *gin.Context, args any) error {
	if err := ctx.ShouldBindJSON(args); err == nil {
		_ = ctx.ShouldBindUri(args)
		_ = ctx.ShouldBindQuery(args)
		return nil
	}

	if err := ctx.ShouldBindUri(args); err == nil {
		_ = ctx.ShouldBindQuery(args)
		return nil
	}

	if err := ctx.ShouldBindQuery(args); err == nil {
		return nil
	}

	return ctx.ShouldBind(args)
}
