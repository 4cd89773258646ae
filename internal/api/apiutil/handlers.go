package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

type errorResponse struct {
	Error string `json:"error"`
}

// WriteHandlerError maps an error returned by a handler's inner logic onto
// an HTTP response. HandlerError chooses its own status; FieldError is a
// 400; anything else is a 500 and the detail stays in the log.
func WriteHandlerError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.Ctx(r.Context())

	var handlerErr HandlerError
	if errors.As(err, &handlerErr) {
		if handlerErr.Err != nil {
			logger.Warn().Err(handlerErr.Err).Int("status", handlerErr.Status).Msg(handlerErr.Message)
		}
		_ = WriteJSON(w, handlerErr.Status, errorResponse{Error: handlerErr.Message})
		return
	}

	var fieldErr FieldError
	if errors.As(err, &fieldErr) {
		_ = WriteJSON(w, http.StatusBadRequest, errorResponse{Error: fieldErr.Error()})
		return
	}

	logger.Error().Err(err).Msg("Handler failed")
	_ = WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
}
