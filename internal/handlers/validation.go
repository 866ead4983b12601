package handlers

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/jsmooother/ej-development-sub001/pkg/errors"
	"github.com/jsmooother/ej-development-sub001/pkg/response"
	appValidator "github.com/jsmooother/ej-development-sub001/pkg/validator"
)

// bindQuery binds query parameters into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindQuery[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindQuery(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid query parameters"))
		return false
	}
	return validate(c, dest)
}

// bindOptionalJSON is bindQuery for request bodies that may be empty.
func bindOptionalJSON[T any](c *gin.Context, dest *T) bool {
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
			return false
		}
	}
	return validate(c, dest)
}

func validate[T any](c *gin.Context, dest *T) bool {
	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}
	return true
}

func formatValidationError(err error) string {
	var ve appValidator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request"
	}

	messages := make([]string, 0, len(ve))
	for _, failure := range ve {
		switch failure.Tag {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", failure.Field))
		case "rootpath":
			messages = append(messages, fmt.Sprintf("%s must be a path on this site", failure.Field))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", failure.Field, failure.Tag))
		}
	}
	return strings.Join(messages, "; ")
}
