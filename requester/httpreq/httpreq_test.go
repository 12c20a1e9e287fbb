package httpreq

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teranos/goload/requester"
)

func TestDoReportsSuccessForStatusUnder400(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := New(srv.URL, 2*time.Second)
	require.NoError(t, err)
	defer req.Close()

	result, err := req.Do(context.Background(), requester.Request{Endpoint: "/ping", Path: "/ping"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, http.StatusOK, result.Status)
}

func TestDoReportsFailureForStatusOver400(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	req, err := New(srv.URL, 2*time.Second)
	require.NoError(t, err)
	defer req.Close()

	result, err := req.Do(context.Background(), requester.Request{Endpoint: "/fail", Path: "/fail"})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, http.StatusInternalServerError, result.Status)
}

func TestDoReusesCookiesAcrossRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err != nil {
			if r.URL.Path == "/dashboard" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
		} else {
			w.Header().Set("X-Had-Cookie", "true")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := New(srv.URL, 2*time.Second)
	require.NoError(t, err)
	defer req.Close()

	_, err = req.Do(context.Background(), requester.Request{Endpoint: "/login", Path: "/login"})
	require.NoError(t, err)

	result, err := req.Do(context.Background(), requester.Request{Endpoint: "/dashboard", Path: "/dashboard"})
	require.NoError(t, err)
	require.True(t, result.Success)
}
