/**
 * @description
 * This file contains the HTTP handlers for the bond service. Handlers decode
 * requests, call the BondService and map its results and errors onto HTTP
 * responses.
 */
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/transfa/bond-service/internal/app"
	"github.com/transfa/bond-service/internal/domain"
)

const (
	maxBodyBytes       = 1 << 20
	maxMultipartMemory = 1 << 20
	healthCheckTimeout = 2 * time.Second

	legalNameQueryParam = "legal_name"
)

// BondService is the application logic the handlers depend on.
type BondService interface {
	ListBonds(ctx context.Context, userID, legalNameFilter string) ([]domain.Bond, error)
	CreateBond(ctx context.Context, userID string, fields map[string]any) (*domain.Bond, error)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	service BondService
	health  HealthChecker
	logger  *slog.Logger
}

func NewHandler(service BondService, health HealthChecker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		health:  health,
		logger:  logger.With("component", "api"),
	}
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, "Hello World!")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			h.logger.Error("health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("healthy"))
}

// handleListBonds returns the caller's bonds, filtered by the legal_name query
// parameter when present.
func (h *Handler) handleListBonds(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithDetail(w, http.StatusForbidden, detailNotAuthenticated)
		return
	}

	bonds, err := h.service.ListBonds(r.Context(), userID, r.URL.Query().Get(legalNameQueryParam))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	if bonds == nil {
		bonds = []domain.Bond{}
	}
	respondWithJSON(w, http.StatusOK, bonds)
}

// handleCreateBond creates a bond owned by the caller from a JSON object or a
// form-encoded body.
func (h *Handler) handleCreateBond(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithDetail(w, http.StatusForbidden, detailNotAuthenticated)
		return
	}

	fields, errBody, err := decodeFields(w, r)
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errBody)
		return
	}

	bond, err := h.service.CreateBond(r.Context(), userID, fields)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	h.logger.Info("bond created", "bond_id", bond.ID, "user_id", userID, "isin", bond.ISIN)
	respondWithJSON(w, http.StatusCreated, bond)
}

func (h *Handler) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *app.ValidationError
	var rateErr *app.RateLimitError
	switch {
	case errors.As(err, &validationErr):
		respondWithJSON(w, http.StatusBadRequest, validationErr.Fields)
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		respondWithDetail(w, http.StatusTooManyRequests,
			fmt.Sprintf("Request was throttled. Expected available in %d seconds.", rateErr.RetryAfterSeconds))
	case errors.Is(err, app.ErrMissingUser):
		respondWithDetail(w, http.StatusForbidden, detailNotAuthenticated)
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondWithDetail(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeFields reads the create payload into a field map. On failure it
// returns the body of the 400 response to send.
func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]any, any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		return decodeForm(r, mediaType)
	default:
		return decodeJSON(r.Body)
	}
}

func decodeJSON(body io.Reader) (map[string]any, any, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, detailBody(fmt.Sprintf("JSON parse error - %v", err)), err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, detailBody(fmt.Sprintf("JSON parse error - %v", err)), err
	}
	if decoder.More() {
		err := errors.New("unexpected data after top-level value")
		return nil, detailBody(fmt.Sprintf("JSON parse error - %v", err)), err
	}

	fields, ok := payload.(map[string]any)
	if !ok {
		return nil, map[string][]string{
			"non_field_errors": {"Invalid data. Expected a dictionary."},
		}, errors.New("payload is not an object")
	}
	return fields, nil, nil
}

// decodeForm parses a form body; mediaType is the lowercased Content-Type.
func decodeForm(r *http.Request, mediaType string) (map[string]any, any, error) {
	var err error
	if mediaType == "multipart/form-data" {
		err = r.ParseMultipartForm(maxMultipartMemory)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return nil, detailBody(fmt.Sprintf("Form parse error - %v", err)), err
	}

	fields := make(map[string]any, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	return fields, nil, nil
}

func detailBody(detail string) map[string]string {
	return map[string]string{"detail": detail}
}

func respondWithDetail(w http.ResponseWriter, code int, detail string) {
	respondWithJSON(w, code, detailBody(detail))
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
