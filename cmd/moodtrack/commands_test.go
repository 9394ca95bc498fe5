package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"github.com/kalambet/moodtrack/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// install points the CLI commands at ts for the rest of the test.
func (ts *testServer) install(t *testing.T) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

func (ts *testServer) only(t *testing.T) recordedRequest {
	t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	return ts.requests[0]
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

var ctx = context.Background()

func TestEntriesAddCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /entries": `{"id":3,"date":"2025-03-10","mood":7,"sleep_hours":7.5,"steps":0,"workouts":0,"caffeine":0,"meals":0,"work_hours":0,"screen_time":0,"journal":"","tags":["walk","focus"]}`,
	})
	ts.install(t)

	err := execute(t, "entries", "add", "--date", "2025-03-10", "--mood", "7", "--sleep", "7.5", "--tags", "walk, focus,")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := ts.only(t)
	if r.Method != "POST" || r.Path != "/entries" {
		t.Errorf("request = %s %s, want POST /entries", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["date"] != "2025-03-10" {
		t.Errorf("body.date = %v", body["date"])
	}
	if body["mood"] != float64(7) {
		t.Errorf("body.mood = %v, want 7", body["mood"])
	}
	if body["sleep_hours"] != 7.5 {
		t.Errorf("body.sleep_hours = %v, want 7.5", body["sleep_hours"])
	}
	tags, _ := body["tags"].([]any)
	if len(tags) != 2 || tags[0] != "walk" || tags[1] != "focus" {
		t.Errorf("body.tags = %v, want [walk focus]", body["tags"])
	}
}

func TestEntryFromFlags_Validation(t *testing.T) {
	cases := map[string][]string{
		"mood out of range": {"--mood", "11"},
		"bad date":          {"--mood", "5", "--date", "10/03/2025"},
		"negative steps":    {"--mood", "5", "--steps", "-10"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "add"}
			addEntryFlags(cmd)
			if err := cmd.ParseFlags(args); err != nil {
				t.Fatalf("ParseFlags: %v", err)
			}
			if _, err := entryFromFlags(cmd); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEntryFromFlags_DefaultsToToday(t *testing.T) {
	cmd := &cobra.Command{Use: "add"}
	addEntryFlags(cmd)
	if err := cmd.ParseFlags([]string{"--mood", "6"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	req, err := entryFromFlags(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Date) != len("2006-01-02") {
		t.Errorf("date = %q, want a YYYY-MM-DD default", req.Date)
	}
	if req.Tags != nil {
		t.Errorf("tags = %v, want none", req.Tags)
	}
}

func TestWindowQuery(t *testing.T) {
	cmd := &cobra.Command{Use: "summary"}
	addWindowFlags(cmd)
	if got := windowQuery(cmd); got != "" {
		t.Errorf("empty window = %q, want empty", got)
	}
	if err := cmd.ParseFlags([]string{"--from", "2025-03-01", "--to", "2025-03-31"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if got := windowQuery(cmd); got != "?from=2025-03-01&to=2025-03-31" {
		t.Errorf("window = %q", got)
	}
}

func TestPredictCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /ml/predict": `{"predicted_mood":6.33,"features_used":["sleep_hours"],"basis":"baseline"}`,
	})
	ts.install(t)

	if err := execute(t, "predict", "--date", "2025-04-01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r := ts.only(t); r.Path != "/ml/predict?date=2025-04-01" {
		t.Errorf("path = %q", r.Path)
	}
}

func TestPredictCommand_BadDate(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.install(t)

	err := execute(t, "predict", "--date", "tomorrow")
	if err == nil || !strings.Contains(err.Error(), "YYYY-MM-DD") {
		t.Fatalf("error = %v, want date format error", err)
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no request, got %d", len(ts.requests))
	}
}

func TestRetrainCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /ml/retrain": `{"updated_at":"2025-04-01T10:00:00Z","set_id":"4b0f","k":4,"features":["sleep_hours","steps"],"corr":{"sleep_hours":0.4}}`,
	})
	ts.install(t)

	if err := execute(t, "retrain"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := ts.only(t)
	if r.Method != "POST" || r.Path != "/ml/retrain" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
}

func TestEntriesUpdateCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /entries/12": `{"id":12,"date":"2025-03-10","mood":6,"sleep_hours":8,"steps":0,"workouts":0,"caffeine":0,"meals":0,"work_hours":0,"screen_time":0,"journal":"","tags":[]}`,
	})
	ts.install(t)

	if err := execute(t, "entries", "update", "12", "--date", "2025-03-10", "--mood", "6", "--sleep", "8"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := ts.only(t)
	if r.Method != "PUT" || r.Path != "/entries/12" {
		t.Errorf("request = %s %s, want PUT /entries/12", r.Method, r.Path)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["mood"] != float64(6) || body["sleep_hours"] != float64(8) {
		t.Errorf("body = %v", body)
	}
}

func TestEntriesUpdateCommand_Invalid(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.install(t)

	err := execute(t, "entries", "update", "12", "--mood", "0")
	if err == nil || !strings.Contains(err.Error(), "mood") {
		t.Fatalf("error = %v, want mood validation error", err)
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no request, got %d", len(ts.requests))
	}
}

func TestEntriesDelete_NotFound(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.install(t)

	err := execute(t, "entries", "delete", "42")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("error = %v, want 404", err)
	}
	if r := ts.only(t); r.Method != "DELETE" || r.Path != "/entries/42" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestAPIClient_NoTokenNoHeader(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = ""
	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if auth := ts.only(t).Auth; auth != "" {
		t.Errorf("auth = %q, want no header", auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	resp, err := ts.client().get(ctx, "/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var v any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want it to contain 404", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestMoodBar(t *testing.T) {
	tests := []struct {
		mood float64
		want string
	}{
		{0, ".........."},
		{6.33, "######...."},
		{7.5, "########.."},
		{12, "##########"},
	}
	for _, tt := range tests {
		if got := moodBar(tt.mood); got != tt.want {
			t.Errorf("moodBar(%v) = %q, want %q", tt.mood, got, tt.want)
		}
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "nested"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid <= 0 {
		t.Errorf("pid = %d", pid)
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4100
	cfg.Server.APIToken = "hunter2"

	for _, k := range config.ShowAll(cfg) {
		if strings.Contains(k.Value, "hunter2") {
			t.Errorf("ShowAll leaked the API token under %s", k.Key)
		}
	}
}
