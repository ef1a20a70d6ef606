package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "unknown part")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "unknown part" {
		t.Errorf("error = %s, want 'unknown part'", resp["error"])
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"completed": 42})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["completed"] != 42 {
		t.Errorf("completed = %d, want 42", resp["completed"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	MethodNotAllowed(rec, http.MethodGet, http.MethodPut)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if got := rec.Header().Values("Allow"); len(got) != 2 {
		t.Errorf("Allow = %v, want GET and PUT", got)
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		write func(http.ResponseWriter)
		want  int
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad") }, http.StatusBadRequest},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "gone") }, http.StatusNotFound},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		tc.write(rec)
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestReadBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPut, "/api/plan", strings.NewReader("final_product = \"x\""))
	body, err := ReadBody(req)
	if err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	if string(body) != "final_product = \"x\"" {
		t.Errorf("body = %q", body)
	}

	big := httptest.NewRequest(http.MethodPut, "/api/plan", bytes.NewReader(make([]byte, MaxBodyBytes+1)))
	if _, err := ReadBody(big); err == nil {
		t.Error("expected error for oversized body")
	}
}
