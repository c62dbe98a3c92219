package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"1M", 1 << 20},
		{"10M", 10 << 20},
		{"512K", 512 << 10},
		{"512kb", 512 << 10},
		{"1G", 1 << 30},
		{"1024", 1024},
		{"", 1 << 20},
		{"invalid", 1 << 20},
		{"-5K", 1 << 20},
	}

	for _, tt := range tests {
		if got := parseLimit(tt.input); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(`{"slot_date":"2025-03-03"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	h := BodyLimit("1M")(func(c echo.Context) error {
		b, err := io.ReadAll(c.Request().Body)
		if err != nil {
			t.Fatalf("failed to read body: %v", err)
		}
		if len(b) == 0 {
			t.Error("expected non-empty body")
		}
		called = true
		return c.NoContent(http.StatusCreated)
	})

	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestBodyLimit_RejectsOversizedContentLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", bytes.NewReader(bytes.Repeat([]byte("x"), 2048)))
	c := e.NewContext(req, httptest.NewRecorder())

	err := BodyLimit("1K")(func(c echo.Context) error {
		t.Error("handler should not be called when body exceeds limit")
		return nil
	})(c)

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %v", err)
	}
}

func TestBodyLimit_SkipsNilBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	h := BodyLimit("1")(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called for GET with no body")
	}
}

func TestBodyLimit_EnforcesLimitDuringRead(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", bytes.NewReader(bytes.Repeat([]byte("a"), 1024)))
	req.ContentLength = -1
	c := e.NewContext(req, httptest.NewRecorder())

	err := BodyLimit("512")(func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		return err
	})(c)

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413 while reading, got %v", err)
	}
}
