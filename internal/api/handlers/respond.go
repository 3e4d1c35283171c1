package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceauth/internal/errs"
	"github.com/your-org/faceauth/pkg/dto"
)

const timeLayout = "2006-01-02T15:04:05Z"

// writeError maps a domain error onto an HTTP response.
func writeError(c *gin.Context, err error) {
	code := errs.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case errs.CodeValidation:
		status = http.StatusBadRequest
	case errs.CodeNotFound:
		status = http.StatusNotFound
	case errs.CodeDuplicateFace, errs.CodeCaptureBusy:
		status = http.StatusConflict
	case errs.CodeNoFaceDetected, errs.CodeMultipleFaces, errs.CodeLiveness:
		status = http.StatusUnprocessableEntity
	case errs.CodeAuthMalformed, errs.CodeAuthExpired, errs.CodeAuthUnknown:
		status = http.StatusUnauthorized
	}

	c.JSON(status, dto.ErrorResponse{Code: string(code), Error: err.Error()})
}
