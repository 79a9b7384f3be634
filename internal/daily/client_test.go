// SPDX-License-Identifier: MIT

package daily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRoom(t *testing.T) {
	var gotAuth string
	var gotReq createRoomRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/rooms", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(Room{Name: "pizza-1", URL: "https://x.daily.co/pizza-1"})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	room, err := c.CreateRoom(context.Background(), "pizza-1", 5*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "pizza-1", gotReq.Name)
	assert.True(t, gotReq.Properties.EnableChat)
	assert.False(t, gotReq.Properties.EnableRecording)
	assert.Equal(t, 10, gotReq.Properties.MaxParticipants)
	assert.InDelta(t, time.Now().Add(5*time.Minute).Unix(), gotReq.Properties.Exp, 5)
	assert.Equal(t, "https://x.daily.co/pizza-1", room.URL)
}

func TestCreateRoomRejectsEmptyURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k").CreateRoom(context.Background(), "r", time.Minute)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestDeleteRoomStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"ok", http.StatusOK, nil},
		{"absent room", http.StatusNotFound, ErrNotFound},
		{"bad key", http.StatusUnauthorized, ErrUnauthorized},
		{"upstream broken", http.StatusInternalServerError, ErrUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodDelete, r.Method)
				require.Equal(t, "/rooms/pizza-1", r.URL.Path)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := New(srv.URL, "k").DeleteRoom(context.Background(), "pizza-1")
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestTransportFailure(t *testing.T) {
	// Point at a closed server.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	err := New(srv.URL, "k").DeleteRoom(context.Background(), "r")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Sentinel: ErrUpstreamError, Operation: "DELETE /rooms/r", Status: 502, Body: "bad gateway"}
	assert.Contains(t, err.Error(), "DELETE /rooms/r")
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "bad gateway")
}
