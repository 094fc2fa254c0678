package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/funtusov/telequery/internal/pkg/errcode"
	appErr "github.com/funtusov/telequery/internal/pkg/errors"
	"github.com/funtusov/telequery/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
