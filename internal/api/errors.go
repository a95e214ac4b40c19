package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/zombar/aletheia/internal/classifier"
	"github.com/zombar/aletheia/internal/database"
	"github.com/zombar/aletheia/internal/report"
	"github.com/zombar/aletheia/pkg/logging"
)

// fail maps err onto a status code and writes the error body
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.failAt(w, r, err, -1)
}

// failAt is fail for an error about the index-th item of a batch; a negative
// index is omitted
func (h *Handler) failAt(w http.ResponseWriter, r *http.Request, err error, index int) {
	body := map[string]any{"error": err.Error()}
	if index >= 0 {
		body["index"] = index
	}

	var lengthErr *classifier.LengthError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &lengthErr):
		status = http.StatusUnprocessableEntity
		body["bound"] = lengthErr.Bound
		body["limit"] = lengthErr.Limit
		body["actual"] = lengthErr.Actual
	case errors.Is(err, classifier.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, report.ErrUnknownFormat):
		status = http.StatusBadRequest
		body["formats"] = report.Formats()
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, database.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, errTimeout):
		status = http.StatusRequestTimeout
	default:
		// storage details stay in the log
		body["error"] = "internal error"
	}

	if status >= 500 || status == http.StatusRequestTimeout {
		logging.HTTPErrorLogger(h.logger, status, err, r)
	}
	respondJSON(w, body, status)
}

func rejectReason(err error) string {
	var lengthErr *classifier.LengthError
	if errors.As(err, &lengthErr) {
		return "length_" + lengthErr.Bound
	}
	return "invalid_input"
}

// validationMessage turns validator errors into "field: rule" pairs
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, ", ")
}
