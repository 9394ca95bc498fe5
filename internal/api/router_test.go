package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func doRequest(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (msg, typ string) {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Message, body.Error.Type
}

const entryBody = `{"date":"2025-03-10","mood":7,"sleep_hours":7.5,"steps":8000,"workouts":30,"caffeine":120,"meals":3,"work_hours":8,"screen_time":200,"journal":"walk helped","tags":["walk"]}`

func TestHealth(t *testing.T) {
	h := NewRouter(newTestDeps(t))
	rec := doRequest(t, h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"ok"}` {
		t.Errorf("body = %s", got)
	}
}

func TestEntriesCRUD(t *testing.T) {
	h := NewRouter(newTestDeps(t))

	rec := doRequest(t, h, http.MethodPost, "/entries", entryBody, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created EntryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if created.ID == 0 || created.Date != "2025-03-10" || created.Mood != 7 {
		t.Fatalf("created = %+v", created)
	}

	rec = doRequest(t, h, http.MethodPost, "/entries", entryBody, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", rec.Code)
	}
	if _, typ := decodeError(t, rec); typ != "conflict_error" {
		t.Errorf("error type = %q", typ)
	}

	rec = doRequest(t, h, http.MethodGet, "/entries/1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	upd := strings.Replace(entryBody, `"mood":7`, `"mood":3`, 1)
	rec = doRequest(t, h, http.MethodPut, "/entries/1", upd, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/entries?from=2025-03-01&to=2025-03-31", "", nil)
	var list []EntryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 1 || list[0].Mood != 3 {
		t.Fatalf("list = %+v", list)
	}

	rec = doRequest(t, h, http.MethodDelete, "/entries/1", "", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("delete = %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodDelete, "/entries/1", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPut, "/entries/1", upd, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("update missing status = %d, want 404", rec.Code)
	}
}

func TestEntriesEmptyListIsArray(t *testing.T) {
	h := NewRouter(newTestDeps(t))
	rec := doRequest(t, h, http.MethodGet, "/entries", "", nil)
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %s, want []", got)
	}
}

func TestCreateEntry_Validation(t *testing.T) {
	h := NewRouter(newTestDeps(t))

	cases := map[string]string{
		"not json":       `{`,
		"missing date":   `{"mood":5}`,
		"bad date":       `{"date":"2025-13-40","mood":5}`,
		"mood zero":      `{"date":"2025-03-10","mood":0}`,
		"mood eleven":    `{"date":"2025-03-10","mood":11}`,
		"negative sleep": `{"date":"2025-03-10","mood":5,"sleep_hours":-1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/entries", body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if _, typ := decodeError(t, rec); typ != "invalid_request_error" {
				t.Errorf("type = %q", typ)
			}
		})
	}

	rec := doRequest(t, h, http.MethodGet, "/entries/abc", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/entries?from=yesterday", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad window status = %d, want 400", rec.Code)
	}
}

func TestAuth_MutatingRoutesRequireToken(t *testing.T) {
	deps := newTestDeps(t)
	deps.Token = "secret"
	h := NewRouter(deps)

	rec := doRequest(t, h, http.MethodPost, "/entries", entryBody, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/ml/retrain", "", map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/entries", entryBody, map[string]string{"Authorization": "Bearer secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token status = %d: %s", rec.Code, rec.Body.String())
	}

	// Reads stay open.
	rec = doRequest(t, h, http.MethodGet, "/analytics/summary", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("read status = %d", rec.Code)
	}
}

func TestSummary(t *testing.T) {
	deps := newTestDeps(t)
	h := NewRouter(deps)

	rec := doRequest(t, h, http.MethodGet, "/analytics/summary", "", nil)
	if got := strings.TrimSpace(rec.Body.String()); got != `{"avg_mood":0,"delta_vs_prev":0,"corr":{},"weekly_averages":[]}` {
		t.Errorf("empty summary = %s", got)
	}

	seedEntries(t, deps.Store, 10)
	rec = doRequest(t, h, http.MethodGet, "/analytics/summary?from=2025-03-05", "", nil)
	var s struct {
		AvgMood        float64            `json:"avg_mood"`
		Corr           map[string]float64 `json:"corr"`
		WeeklyAverages []struct {
			Label   string  `json:"label"`
			AvgMood float64 `json:"avg_mood"`
		} `json:"weekly_averages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(s.Corr) != 7 {
		t.Errorf("corr has %d features, want 7", len(s.Corr))
	}
	if _, ok := s.Corr["weekday"]; ok {
		t.Error("weekday must not be correlated")
	}
	if len(s.WeeklyAverages) != 1 || s.WeeklyAverages[0].Label != "last_period" || s.WeeklyAverages[0].AvgMood != s.AvgMood {
		t.Errorf("weekly_averages = %+v (avg %v)", s.WeeklyAverages, s.AvgMood)
	}
}

func TestMLRoutes(t *testing.T) {
	deps := newTestDeps(t)
	h := NewRouter(deps)

	rec := doRequest(t, h, http.MethodPost, "/ml/retrain", "", nil)
	if got := strings.TrimSpace(rec.Body.String()); got != `{"message":"no data"}` {
		t.Fatalf("retrain with no data = %s", got)
	}

	rec = doRequest(t, h, http.MethodGet, "/ml/predict", "", nil)
	var p struct {
		PredictedMood float64  `json:"predicted_mood"`
		FeaturesUsed  []string `json:"features_used"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if p.PredictedMood != 5.0 || len(p.FeaturesUsed) != 8 {
		t.Fatalf("prediction = %+v", p)
	}

	rec = doRequest(t, h, http.MethodGet, "/ml/clusters", "", nil)
	if got := strings.TrimSpace(rec.Body.String()); got != `{"k":0,"clusters":[],"assignments":[]}` {
		t.Fatalf("clusters with no data = %s", got)
	}

	seedEntries(t, deps.Store, 16)
	rec = doRequest(t, h, http.MethodPost, "/ml/retrain", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("retrain status = %d: %s", rec.Code, rec.Body.String())
	}
	var meta struct {
		K        int      `json:"k"`
		Features []string `json:"features"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if meta.K < 3 || meta.K > 6 || len(meta.Features) != 8 {
		t.Fatalf("meta = %+v", meta)
	}

	rec = doRequest(t, h, http.MethodGet, "/ml/predict?date=2025-04-01", "", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if p.PredictedMood < 1 || p.PredictedMood > 10 {
		t.Fatalf("prediction out of range: %v", p.PredictedMood)
	}

	rec = doRequest(t, h, http.MethodGet, "/ml/predict?date=tomorrow", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/analytics/insights", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("insights status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	deps := newTestDeps(t)
	h := NewRouter(deps)
	doRequest(t, h, http.MethodGet, "/ml/predict", "", nil)

	rec := doRequest(t, h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "moodtrack_predicted_mood") {
		t.Error("metrics output missing moodtrack_predicted_mood")
	}
}

func TestCORS_LocalOrigin(t *testing.T) {
	h := NewRouter(newTestDeps(t))

	rec := doRequest(t, h, http.MethodGet, "/health", "", map[string]string{"Origin": "http://localhost:5173"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("local origin allow = %q", got)
	}
	rec = doRequest(t, h, http.MethodGet, "/health", "", map[string]string{"Origin": "https://evil.example"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allow = %q, want empty", got)
	}
}
