package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/validator"
)

var kindStatus = map[workerday.Kind]int{
	workerday.KindPermissionDenied:   http.StatusForbidden,
	workerday.KindEmploymentInactive: http.StatusConflict,
	workerday.KindWorkTimeOverlap:    http.StatusConflict,
	workerday.KindInvariantViolation: http.StatusConflict,
	workerday.KindVacancyUnavailable: http.StatusConflict,
	workerday.KindNothingToApprove:   http.StatusUnprocessableEntity,
	workerday.KindNoActivePlan:       http.StatusUnprocessableEntity,
	workerday.KindExternalTransient:  http.StatusServiceUnavailable,
}

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make(map[string]any, len(validationErrs))
		for field, msg := range validationErrs.ToMap() {
			details[field] = msg
		}
		Error(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", details)
		return
	}

	if errors.Is(err, notification.ErrEventNotFound) {
		NotFound(w, "Event not found")
		return
	}

	kind := workerday.KindOf(err)
	if status, ok := kindStatus[kind]; ok {
		var details map[string]any
		var e *workerday.Error
		if errors.As(err, &e) {
			details = e.Details
		}
		Error(w, status, string(kind), err.Error(), details)
		return
	}

	slog.Error("Unhandled error", "error", err)
	InternalServerError(w, "An unexpected error occurred")
}
