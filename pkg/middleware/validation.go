package middleware

import (
	stderrors "errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/wms-platform/opname-service/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var (
	actionCodeRegex = regexp.MustCompile(`^[a-z][a-z_]{1,63}$`)
	safeStringRegex = regexp.MustCompile(`^[^\x00-\x08\x0B\x0C\x0E-\x1F\x7F]*$`)
	// imeiRegex bounds what a scanner can send; the minimum length is a domain rule
	imeiRegex = regexp.MustCompile(`^[^\x00-\x1F\x7F]{0,64}$`)
)

func registerCustom(v *validator.Validate) {
	_ = v.RegisterValidation("action_code", func(fl validator.FieldLevel) bool {
		return actionCodeRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("safe_string", func(fl validator.FieldLevel) bool {
		return safeStringRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("imei", func(fl validator.FieldLevel) bool {
		return imeiRegex.MatchString(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// InitValidator registers the custom tags on a standalone validator and on
// gin's binding engine.
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		registerCustom(validate)

		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			registerCustom(v)
		}
	})
	return validate
}

// ValidationErrorFormatter maps field names to readable messages
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if stderrors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			fields[e.Field()] = formatValidationError(e)
		}
	}
	return fields
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "action_code":
		return "must be a lowercase action code"
	case "safe_string":
		return "contains invalid characters"
	case "imei":
		return "must be at most 64 printable characters"
	case "dive":
		return "contains an invalid entry"
	default:
		return "is invalid"
	}
}

// BindAndValidate binds the JSON body and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		var validationErrors validator.ValidationErrors
		if stderrors.As(err, &validationErrors) {
			return errors.ErrValidationWithFields("validation failed", ValidationErrorFormatter(validationErrors))
		}
		if appErr := PayloadTooLarge(err); appErr != nil {
			return appErr
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}

// ValidateStruct validates obj with the shared validator
func ValidateStruct(obj interface{}) *errors.AppError {
	if err := InitValidator().Struct(obj); err != nil {
		var validationErrors validator.ValidationErrors
		if stderrors.As(err, &validationErrors) {
			return errors.ErrValidationWithFields("validation failed", ValidationErrorFormatter(validationErrors))
		}
		return errors.ErrBadRequest("validation failed: " + err.Error())
	}
	return nil
}

// SanitizeString strips null bytes and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

// InputSanitizer sanitizes query parameters
func InputSanitizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Request.URL.Query()
		for key, values := range query {
			for i, v := range values {
				values[i] = SanitizeString(v)
			}
			query[key] = values
		}
		c.Request.URL.RawQuery = query.Encode()
		c.Next()
	}
}

// ContentType rejects request bodies that are not JSON or one of extra.
func ContentType(extra ...string) gin.HandlerFunc {
	allowed := append([]string{"application/json"}, extra...)

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}
		if c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		contentType := c.GetHeader("Content-Type")
		for _, prefix := range allowed {
			if strings.HasPrefix(contentType, prefix) {
				c.Next()
				return
			}
		}
		AbortWithAppError(c, errors.NewAppError("INVALID_CONTENT_TYPE",
			"Content-Type must be one of: "+strings.Join(allowed, ", "), http.StatusUnsupportedMediaType))
	}
}
