package httpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type echo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var in echo
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		in.Count++
		json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	var out echo
	err := PostJSON(context.Background(), NewClient(time.Second), srv.URL, echo{Name: "back", Count: 1}, &out)
	if err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	if out.Name != "back" || out.Count != 2 {
		t.Errorf("out = %+v", out)
	}
}

func TestGetJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "robot busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var out echo
	err := GetJSON(context.Background(), nil, srv.URL, &out)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable || se.Body != "robot busy" {
		t.Errorf("StatusError = %+v", se)
	}
	if !se.IsServerError() {
		t.Error("IsServerError() = false")
	}
}

func TestPostJSON_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := PostJSON(ctx, Client, srv.URL, echo{}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}
