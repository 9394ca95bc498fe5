package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/moodtrack/internal/storage"
)

// EntryRequest is the body of POST /entries and PUT /entries/{id}.
type EntryRequest struct {
	Date       string   `json:"date"`
	Mood       int      `json:"mood"`
	SleepHours float64  `json:"sleep_hours"`
	Steps      int      `json:"steps"`
	Workouts   int      `json:"workouts"`
	Caffeine   int      `json:"caffeine"`
	Meals      int      `json:"meals"`
	WorkHours  float64  `json:"work_hours"`
	ScreenTime int      `json:"screen_time"`
	Journal    string   `json:"journal"`
	Tags       []string `json:"tags"`
}

// EntryResponse is the wire form of a stored entry.
type EntryResponse struct {
	ID int64 `json:"id"`
	EntryRequest
}

// Entry validates r and converts it to a storage entry.
func (r EntryRequest) Entry() (storage.Entry, error) {
	if r.Date == "" {
		return storage.Entry{}, fmt.Errorf("date is required")
	}
	d, err := storage.ParseDate(r.Date)
	if err != nil {
		return storage.Entry{}, fmt.Errorf("date must be YYYY-MM-DD")
	}
	if r.Mood < 1 || r.Mood > 10 {
		return storage.Entry{}, fmt.Errorf("mood must be between 1 and 10")
	}
	for _, m := range []struct {
		name string
		v    float64
	}{
		{"sleep_hours", r.SleepHours},
		{"steps", float64(r.Steps)},
		{"workouts", float64(r.Workouts)},
		{"caffeine", float64(r.Caffeine)},
		{"meals", float64(r.Meals)},
		{"work_hours", r.WorkHours},
		{"screen_time", float64(r.ScreenTime)},
	} {
		if m.v < 0 {
			return storage.Entry{}, fmt.Errorf("%s must not be negative", m.name)
		}
	}
	return storage.Entry{
		Date:       d,
		Mood:       r.Mood,
		SleepHours: r.SleepHours,
		Steps:      r.Steps,
		Workouts:   r.Workouts,
		Caffeine:   r.Caffeine,
		Meals:      r.Meals,
		WorkHours:  r.WorkHours,
		ScreenTime: r.ScreenTime,
		Journal:    r.Journal,
		Tags:       r.Tags,
	}, nil
}

// NewEntryResponse converts a stored entry to its wire form.
func NewEntryResponse(e storage.Entry) EntryResponse {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return EntryResponse{
		ID: e.ID,
		EntryRequest: EntryRequest{
			Date:       e.DateString(),
			Mood:       e.Mood,
			SleepHours: e.SleepHours,
			Steps:      e.Steps,
			Workouts:   e.Workouts,
			Caffeine:   e.Caffeine,
			Meals:      e.Meals,
			WorkHours:  e.WorkHours,
			ScreenTime: e.ScreenTime,
			Journal:    e.Journal,
			Tags:       tags,
		},
	}
}

func decodeEntry(w http.ResponseWriter, r *http.Request) (storage.Entry, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return storage.Entry{}, false
	}
	e, err := req.Entry()
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return storage.Entry{}, false
	}
	return e, true
}

func entryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid entry id %q", chi.URLParam(r, "id"))
		return 0, false
	}
	return id, true
}

// parseWindow reads the optional from/to query parameters.
func parseWindow(w http.ResponseWriter, r *http.Request) (storage.EntryFilter, bool) {
	var f storage.EntryFilter
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		s := r.URL.Query().Get(p.key)
		if s == "" {
			continue
		}
		d, err := storage.ParseDate(s)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%s must be YYYY-MM-DD", p.key)
			return storage.EntryFilter{}, false
		}
		*p.dst = &d
	}
	return f, true
}

func handleCreateEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := decodeEntry(w, r)
		if !ok {
			return
		}
		created, err := deps.Store.CreateEntry(r.Context(), e)
		if err != nil {
			storeError(w, "entry", err)
			return
		}
		writeJSON(w, http.StatusOK, NewEntryResponse(created))
	}
}

func handleListEntries(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := parseWindow(w, r)
		if !ok {
			return
		}
		entries, err := deps.Store.ListEntries(r.Context(), f)
		if err != nil {
			storeError(w, "entries", err)
			return
		}
		out := make([]EntryResponse, len(entries))
		for i, e := range entries {
			out[i] = NewEntryResponse(e)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := entryID(w, r)
		if !ok {
			return
		}
		e, err := deps.Store.GetEntry(r.Context(), id)
		if err != nil {
			storeError(w, "entry", err)
			return
		}
		writeJSON(w, http.StatusOK, NewEntryResponse(e))
	}
}

func handleUpdateEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := entryID(w, r)
		if !ok {
			return
		}
		e, ok := decodeEntry(w, r)
		if !ok {
			return
		}
		updated, err := deps.Store.UpdateEntry(r.Context(), id, e)
		if err != nil {
			storeError(w, "entry", err)
			return
		}
		writeJSON(w, http.StatusOK, NewEntryResponse(updated))
	}
}

func handleDeleteEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := entryID(w, r)
		if !ok {
			return
		}
		if err := deps.Store.DeleteEntry(r.Context(), id); err != nil {
			storeError(w, "entry", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}
