package util

import (
	stderrors "errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/kisanmitra/backend/internal/errors"
)

var registerOnce sync.Once

// UseJSONFieldNames makes validation errors report json tag names instead of Go field names
func UseJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
	})
}

// ValidationFields lists the failed rules in a validator error
func ValidationFields(err error) []errors.FieldError {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return nil
	}
	fields := make([]errors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		// Drop the struct name
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		fields = append(fields, errors.FieldError{Field: field, Rule: fe.Tag(), Param: fe.Param()})
	}
	return fields
}

// BindJSON binds and validates the request body. On failure it responds with
// 422 and the failed fields, or 400 for a malformed body, and returns false.
func BindJSON(c *gin.Context, dst interface{}) bool {
	return bindWith(c, c.ShouldBindJSON(dst))
}

// BindQuery is BindJSON for query parameters
func BindQuery(c *gin.Context, dst interface{}) bool {
	return bindWith(c, c.ShouldBindQuery(dst))
}

func bindWith(c *gin.Context, err error) bool {
	if err == nil {
		return true
	}
	if fields := ValidationFields(err); fields != nil {
		RespondWithAPIError(c, errors.ValidationFailed(fields))
		return false
	}
	RespondBadRequest(c, "malformed request: "+err.Error())
	return false
}

// NormalizeList trims, lowercases and dedupes values, dropping empties
func NormalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
