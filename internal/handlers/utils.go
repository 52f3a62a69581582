package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/jason-s-yu/aiquiz/internal/apperr"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds request bodies; every payload here is a few hundred bytes.
const maxBodyBytes = 64 << 10

type errorBody struct {
	Errors []apperr.FieldError `json:"errors"`
}

// extractBearerToken returns the token from an "Authorization: Bearer <t>" header, or "".
func extractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidArgument:
		return http.StatusBadRequest
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.NotReady:
		return http.StatusConflict
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"errors":[...]}. Details of server-side failures are logged,
// not returned.
func writeError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	body := errorBody{Errors: apperr.FieldsOf(err)}
	if len(body.Errors) == 0 {
		msg := http.StatusText(status)
		var e *apperr.Error
		if status < http.StatusInternalServerError && errors.As(err, &e) {
			msg = e.Message
		}
		body.Errors = []apperr.FieldError{{Message: msg}}
	}
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithField("kind", kind).Error("request failed")
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Invalid(apperr.FieldError{Field: "body", Message: "malformed JSON body"})
	}
	return nil
}

// intParam parses a non-negative integer path or query parameter. An empty value gives def.
func intParam(name, value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, apperr.Invalid(apperr.FieldError{Field: name, Message: "must be an integer"})
	}
	return n, nil
}
