package utils

import (
	"errors"
	"net/http"

	"signature-elite-server/apperror"

	"github.com/kataras/iris/v12"
)

func CreateInternalServerError(ctx iris.Context) {
	ctx.StopWithJSON(http.StatusInternalServerError, iris.Map{
		"error": "internal server error",
	})
}

func CreateError(ctx iris.Context, status int, message string) {
	ctx.StopWithJSON(status, iris.Map{
		"error": message,
	})
}

// WriteError renders err with the status of its apperror code. Errors without
// a code are logged and reported as a bare 500.
func WriteError(ctx iris.Context, err error) {
	code := apperror.CodeOf(err)
	if code == apperror.CodeInternal {
		ctx.Application().Logger().Errorf("%s %s: %v", ctx.Method(), ctx.Path(), err)
		CreateInternalServerError(ctx)
		return
	}
	message := err.Error()
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	CreateError(ctx, code.HTTPStatus(), message)
}
