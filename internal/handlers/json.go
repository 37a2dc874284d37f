// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers contains the JSON API handlers of the catalog admin.
// Handlers are grouped by concern (categories, products, imports) and
// receive their dependencies through the handler struct.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"catalogadmin/internal/hierarchy"
	"catalogadmin/internal/store"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("write json response failed", "error", err)
	}
}

// readJSON decodes the request body into data and validates it.
func readJSON(w http.ResponseWriter, r *http.Request, data any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(data); err != nil {
		return err
	}
	return validate.Struct(data)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	type envelope struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Status  int    `json:"status"`
	}
	writeJSON(w, status, &envelope{Success: false, Message: message, Status: status})
}

// writeBadRequest reports a body that could not be decoded or validated.
func writeBadRequest(w http.ResponseWriter, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fieldMessage(fe))
		}
		writeJSONError(w, http.StatusBadRequest, strings.Join(msgs, "; "))
		return
	}
	writeJSONError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min", "gt":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return fe.Field() + " is invalid"
}

// storeErrors maps store sentinels to HTTP statuses.
var storeErrors = []struct {
	err    error
	status int
}{
	{store.ErrCategoryNotFound, http.StatusNotFound},
	{store.ErrDuplicateCategory, http.StatusConflict},
	{store.ErrProtectedCategory, http.StatusConflict},
	{store.ErrTypeMismatch, http.StatusUnprocessableEntity},
	{store.ErrParentType, http.StatusUnprocessableEntity},
	{store.ErrSameCategory, http.StatusUnprocessableEntity},
	{store.ErrCycle, http.StatusUnprocessableEntity},
	{store.ErrTooDeep, http.StatusUnprocessableEntity},
	{hierarchy.ErrEmptyPath, http.StatusUnprocessableEntity},
}

// writeStoreError answers with the status and message of a known store
// error and with a generic 500 otherwise.
func writeStoreError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, store.ErrInvalidCategory) {
		writeJSONError(w, http.StatusBadRequest, sentence(err.Error()))
		return
	}
	for _, se := range storeErrors {
		if errors.Is(err, se.err) {
			writeJSONError(w, se.status, sentence(se.err.Error()))
			return
		}
	}
	slog.Error(action+" failed", "error", err)
	writeJSONError(w, http.StatusInternalServerError, "Failed to "+action+".")
}

// sentence upper-cases the first letter of msg.
func sentence(msg string) string {
	r, size := utf8.DecodeRuneInString(msg)
	if size == 0 {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:]
}

// idParam parses the {id} URL parameter.
func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
