package controlplane

import (
	"errors"
	"net/http"

	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/fentz26/dosekeeper/internal/registry"
)

// Sentinel errors for control plane operations.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest), errors.Is(err, models.ErrInvalidMedication):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
