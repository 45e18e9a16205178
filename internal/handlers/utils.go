package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/tenantcart/apiserver/internal/services"
	"github.com/tenantcart/apiserver/types"
)

const (
	maxBodyBytes = 1 << 20

	msgInternalError  = "Internal server error"
	msgMissingFields  = "Missing required fields"
	msgUserNotFound   = "User not found"
	msgAccountExists  = "Account already exists"
	msgDuplicateOrder = "Purchase already recorded for this Idempotency-Key"
)

// Response is the envelope every API response shares.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Message: message})
}

// writeServiceError maps service errors to status codes. Unexpected errors are
// logged and answered with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, services.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, msgUserNotFound)
	case errors.Is(err, services.ErrAccountExists):
		writeError(w, http.StatusConflict, msgAccountExists)
	case errors.Is(err, services.ErrDuplicatePurchase):
		writeError(w, http.StatusConflict, msgDuplicateOrder)
	default:
		log.Printf("%s %s: %s: %v", r.Method, r.URL.Path, op, err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
	}
}

// decodeJSON reads a single JSON object from the request body. The returned
// error message is safe to show to clients.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &typeErr) && typeErr.Type == reflect.TypeOf(types.ProductID{}):
			return fmt.Errorf("%s must be a number or a string", fieldName(typeErr.Field, "id"))
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return fmt.Errorf("%s must be %s", typeErr.Field, describeKind(typeErr.Type.Kind().String()))
		case errors.As(err, &maxErr):
			return errors.New("request body is too large")
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		default:
			return errors.New("invalid JSON body")
		}
	}
	return nil
}

func fieldName(field, fallback string) string {
	if field == "" {
		return fallback
	}
	return field
}

func describeKind(kind string) string {
	switch {
	case kind == "string":
		return "a string"
	case strings.HasPrefix(kind, "int"), strings.HasPrefix(kind, "uint"):
		return "an integer"
	case strings.HasPrefix(kind, "float"):
		return "a number"
	case kind == "map", kind == "struct", kind == "ptr":
		return "an object"
	case kind == "slice":
		return "an array"
	case kind == "bool":
		return "a boolean"
	default:
		return "a valid value"
	}
}
