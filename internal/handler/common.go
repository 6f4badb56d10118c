package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/errors"
)

const dateLayout = "2006-01-02"

type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Data: data}
	json.NewEncoder(w).Encode(response)
}

func writeError(w http.ResponseWriter, err error) {
	appErr := errors.AsAppError(err)
	w.Header().Set("Content-Type", "application/json")

	statusCode := appErr.HTTPStatus()
	errResponse := Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{Error: &errResponse})
}

// parseFilter reads the shared query parameters of the listing, stats and export endpoints.
func parseFilter(r *http.Request) (domain.TransactionFilter, error) {
	q := r.URL.Query()
	var filter domain.TransactionFilter

	if raw := q.Get("status"); raw != "" {
		status, ok := domain.ParseStatus(raw)
		if !ok {
			return filter, errors.ErrInvalidStatus.WithDetails(raw)
		}
		filter.Status = status
	}

	if raw := q.Get("dateFrom"); raw != "" {
		from, err := parseDate(raw, false)
		if err != nil {
			return filter, errors.NewAppError(errors.InvalidInput, "invalid dateFrom").WithDetails(err.Error())
		}
		filter.DateFrom = &from
	}
	if raw := q.Get("dateTo"); raw != "" {
		to, err := parseDate(raw, true)
		if err != nil {
			return filter, errors.NewAppError(errors.InvalidInput, "invalid dateTo").WithDetails(err.Error())
		}
		filter.DateTo = &to
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return filter, errors.NewAppError(errors.InvalidInput, "dateTo is before dateFrom")
	}

	if q.Has("ids") {
		ids, err := parseIDList(q.Get("ids"))
		if err != nil {
			return filter, errors.NewAppError(errors.InvalidInput, "invalid ids").WithDetails(err.Error())
		}
		if len(ids) == 0 {
			return filter, errors.NewAppError(errors.InvalidInput, "ids must name at least one transaction")
		}
		filter.IDs = ids
	}

	filter.SearchTerm = strings.TrimSpace(q.Get("searchTerm"))
	filter.Reference = strings.TrimSpace(q.Get("reference"))
	filter.FileName = strings.TrimSpace(q.Get("fileName"))
	return filter, nil
}

// parseDate accepts RFC 3339 or a plain date. A plain dateTo covers the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parseIDList(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// queryInt returns def when the parameter is absent or not a number.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
