package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sungwon/newsletter-dispatch/internal/newsletter"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// normalizer is implemented by requests that clean their fields before
// validation.
type normalizer interface {
	normalize()
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether to continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	if err := validate.Struct(dst); err != nil {
		respondValidationErrors(w, formatValidationErrors(err))
		return false
	}
	return true
}

// formatValidationErrors turns validator errors into one message per field.
func formatValidationErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			details = append(details, fmt.Sprintf("%s is required", field))
		case "email":
			details = append(details, fmt.Sprintf("%s must be a valid email address", field))
		case "min":
			details = append(details, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		case "max":
			details = append(details, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "gt":
			details = append(details, fmt.Sprintf("%s must be greater than %s", field, fe.Param()))
		default:
			details = append(details, fmt.Sprintf("%s is invalid", field))
		}
	}
	return details
}

// validationDetail strips the sentinel prefix from a service validation error.
func validationDetail(err error) string {
	return strings.TrimPrefix(err.Error(), newsletter.ErrValidation.Error()+": ")
}

// parseID reads a positive int64 path parameter.
func parseID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", param)
	}
	return id, nil
}

// parseQueryID reads a positive int64 query parameter.
func parseQueryID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// textPtr converts a nullable text column into a JSON-friendly pointer.
func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

// timestampPtr converts a nullable timestamp column into a pointer.
func timestampPtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	return &ts.Time
}
