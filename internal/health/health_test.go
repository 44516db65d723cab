package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func doGet(t *testing.T, h http.HandlerFunc) (*httptest.ResponseRecorder, result) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var res result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec, res
}

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "failing", Check: func(context.Context) error {
		return errors.New("down")
	}})

	rec, res := doGet(t, h.Healthz)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if res.Status != "ok" {
		t.Errorf("body status = %q", res.Status)
	}
}

func TestReadyz_AllPass(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "a", Check: func(context.Context) error { return nil }},
		Checker{Name: "b", Check: func(context.Context) error { return nil }},
	)

	rec, res := doGet(t, h.Readyz)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if res.Checks["a"] != "ok" || res.Checks["b"] != "ok" {
		t.Errorf("checks = %v", res.Checks)
	}
}

func TestReadyz_FailureReported(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "good", Check: func(context.Context) error { return nil }},
		Checker{Name: "bad", Check: func(context.Context) error {
			return errors.New("connection refused")
		}},
	)

	rec, res := doGet(t, h.Readyz)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if res.Status != "fail" {
		t.Errorf("body status = %q", res.Status)
	}
	// Every checker runs even when one fails.
	if res.Checks["good"] != "ok" {
		t.Errorf("good check = %q", res.Checks["good"])
	}
	if res.Checks["bad"] != "fail: connection refused" {
		t.Errorf("bad check = %q", res.Checks["bad"])
	}
}

func TestRegister_Routes(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
