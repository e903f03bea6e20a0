package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"residia/internal/apperr"
	"residia/internal/export"
	"residia/internal/metrics"
	"residia/internal/model"
	"residia/internal/reservation"
)

const maxBodyBytes = 1 << 16

// CreateReservationRequest is the body of POST /reservations.
type CreateReservationRequest struct {
	AmenityID int64       `json:"amenity_id"`
	Date      model.Date  `json:"date"`       // YYYY-MM-DD
	StartTime model.Clock `json:"start_time"` // HH:MM
	EndTime   model.Clock `json:"end_time"`   // HH:MM
	Notes     string      `json:"notes,omitempty"`
	// OnBehalfOf books for another member. Administrators only.
	OnBehalfOf *int64 `json:"on_behalf_of,omitempty"`
}

// UpdateStatusRequest is the body of PATCH /reservations/{id}/status.
type UpdateStatusRequest struct {
	Status     string `json:"status"`
	AdminNotes string `json:"admin_notes,omitempty"`
}

// POST /api/v1/communities/{communityID}/reservations
func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_reservation")

	var body CreateReservationRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	req := reservation.CreateRequest{
		AmenityID: body.AmenityID,
		Date:      body.Date,
		Start:     body.StartTime,
		End:       body.EndTime,
		Notes:     strings.TrimSpace(body.Notes),
		Booking:   reservation.SelfBooking{},
	}
	if body.OnBehalfOf != nil {
		req.Booking = reservation.DelegatedBooking{SubjectID: *body.OnBehalfOf}
	}

	res, err := s.reservations.Create(r.Context(), scopeFrom(r.Context()), req)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// PATCH /api/v1/communities/{communityID}/reservations/{reservationID}/status
func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("update_status")

	id, err := strconv.ParseInt(mux.Vars(r)["reservationID"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation id", "")
		return
	}

	var body UpdateStatusRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	res, err := s.reservations.UpdateStatus(r.Context(), scopeFrom(r.Context()), id, body.Status, body.AdminNotes)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/v1/communities/{communityID}/reservations
func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_reservations")

	filter, err := parseListFilter(r.URL.Query())
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	list, err := s.reservations.List(r.Context(), scopeFrom(r.Context()), filter)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": list})
}

// GET /api/v1/communities/{communityID}/reservations/export
func (s *HTTPServer) handleExportReservations(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export_reservations")

	filter, err := parseListFilter(r.URL.Query())
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	list, err := s.reservations.List(r.Context(), scopeFrom(r.Context()), filter)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteReservations(&buf, list); err != nil {
		s.writeAppError(w, apperr.Internal("render export", err))
		return
	}

	name := fmt.Sprintf("reservations_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// GET /api/v1/communities/{communityID}/blocks/jurisdiction?block_id=1&block_id=2
func (s *HTTPServer) handleJurisdiction(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("block_jurisdiction")

	var base []int64
	for _, raw := range r.URL.Query()["block_id"] {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid block_id %q", part), apperr.ReasonInvalidFilter)
				return
			}
			base = append(base, id)
		}
	}

	ids, err := s.reservations.ExpandJurisdiction(r.Context(), scopeFrom(r.Context()), base)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"block_ids": ids})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func parseListFilter(q url.Values) (reservation.ListFilter, error) {
	var f reservation.ListFilter

	t, err := reservation.ParseListType(q.Get("type"))
	if err != nil {
		return f, err
	}
	f.Type = t
	f.Status = q.Get("status")
	f.Search = strings.TrimSpace(q.Get("search"))

	if v := q.Get("amenity_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return f, apperr.Validation(apperr.ReasonInvalidFilter, "amenity_id must be a positive integer")
		}
		f.AmenityID = id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, apperr.Validation(apperr.ReasonInvalidFilter, "limit must be a non-negative integer")
		}
		f.Limit = n
	}
	if f.DateFrom, err = parseDateParam(q, "date_from"); err != nil {
		return f, err
	}
	if f.DateTo, err = parseDateParam(q, "date_to"); err != nil {
		return f, err
	}
	return f, nil
}

func parseDateParam(q url.Values, name string) (*model.Date, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	d, err := model.ParseDate(v)
	if err != nil {
		return nil, apperr.Validation(apperr.ReasonInvalidFilter, fmt.Sprintf("invalid %s format; expected YYYY-MM-DD", name))
	}
	return &d, nil
}
