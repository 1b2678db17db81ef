package response

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	customError "github.com/insoffice/installment-ledger/pkg/errors"
)

type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type ErrorResponse struct {
	Success   bool      `json:"success"`
	Code      string    `json:"code,omitempty"`
	Error     string    `json:"error,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	response := Response{
		Success:   statusCode >= 200 && statusCode < 300,
		Data:      data,
		Timestamp: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(response)
}

// Success sends a successful JSON response
func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

// Created sends a created JSON response
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// Error sends an error JSON response
func Error(w http.ResponseWriter, statusCode int, message string, err error) {
	response := ErrorResponse{
		Success:   false,
		Message:   message,
		Timestamp: time.Now(),
	}

	if err != nil {
		response.Error = err.Error()
		response.Code = customError.CodeOf(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(response)
}

// BadRequest sends a 400 bad request response
func BadRequest(w http.ResponseWriter, message string, err error) {
	Error(w, http.StatusBadRequest, message, err)
}

// NotFound sends a 404 not found response
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message, nil)
}

// InternalServerError sends a 500 internal server error response
func InternalServerError(w http.ResponseWriter, message string, err error) {
	Error(w, http.StatusInternalServerError, message, err)
}

// StatusFor maps a business error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case customError.IsValidation(err):
		return http.StatusBadRequest
	}
	switch customError.CodeOf(err) {
	case customError.ErrCodePlanNotFound, customError.ErrCodeRowNotFound:
		return http.StatusNotFound
	case customError.ErrCodeAlreadyPaid,
		customError.ErrCodeNotPaid,
		customError.ErrCodePartiallyPaid,
		customError.ErrCodePlanClosed,
		customError.ErrCodeConcurrentModification:
		return http.StatusConflict
	case customError.ErrCodeStorageUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// BusinessError translates a core error into an HTTP response and logs one
// structured line per failure. Unrecognized errors become a generic 500 in
// production; full detail is exposed only in development mode.
func BusinessError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error, dev bool) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError && !dev {
		message = "internal server error"
	}

	logger.Error().
		Int("status", status).
		Str("message", err.Error()).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Str("remote_addr", r.RemoteAddr).
		Msg("request failed")

	response := ErrorResponse{
		Success:   false,
		Code:      customError.CodeOf(err),
		Message:   message,
		Timestamp: time.Now(),
	}
	if dev {
		response.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// JSONMiddleware sets JSON content type for all responses
func JSONMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Capture the status code for the access log line.
			recorder := &responseRecorder{ResponseWriter: w, statusCode: 200}

			next.ServeHTTP(recorder, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", recorder.statusCode).
				Str("remote_addr", r.RemoteAddr).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *responseRecorder) WriteHeader(statusCode int) {
	rec.statusCode = statusCode
	rec.ResponseWriter.WriteHeader(statusCode)
}
