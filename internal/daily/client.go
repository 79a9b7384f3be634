// SPDX-License-Identifier: MIT

// Package daily is a thin client for the Daily REST API. It covers only the
// room operations parlord needs: create, delete, fetch. Failures are
// reported as typed errors, never hidden.
package daily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Room is the subset of the Daily room object the daemon uses.
type Room struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RoomProperties mirrors the Daily room configuration we send on create.
type RoomProperties struct {
	Exp               int64 `json:"exp,omitempty"`
	EnableChat        bool  `json:"enable_chat"`
	EnableKnocking    bool  `json:"enable_knocking"`
	EnableScreenshare bool  `json:"enable_screenshare"`
	EnableRecording   bool  `json:"enable_recording"`
	MaxParticipants   int   `json:"max_participants,omitempty"`
}

type createRoomRequest struct {
	Name       string         `json:"name,omitempty"`
	Properties RoomProperties `json:"properties"`
}

type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

func New(base, apiKey string) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateRoom creates an ephemeral room that expires after ttl.
func (c *Client) CreateRoom(ctx context.Context, name string, ttl time.Duration) (Room, error) {
	body := createRoomRequest{
		Name: name,
		Properties: RoomProperties{
			Exp:               time.Now().Add(ttl).Unix(),
			EnableChat:        true,
			EnableKnocking:    false,
			EnableScreenshare: false,
			EnableRecording:   false,
			MaxParticipants:   10,
		},
	}

	var room Room
	if err := c.do(ctx, http.MethodPost, "/rooms", body, &room); err != nil {
		return Room{}, err
	}
	if room.URL == "" || room.Name == "" {
		return Room{}, &APIError{Sentinel: ErrBadResponse, Operation: "create-room"}
	}
	return room, nil
}

// DeleteRoom removes a room by name. Deleting an already-absent room
// returns ErrNotFound; callers treat that as success.
func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/rooms/"+url.PathEscape(name), nil, nil)
}

// GetRoom fetches room info by name.
func (c *Client) GetRoom(ctx context.Context, name string) (Room, error) {
	var room Room
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(name), nil, &room); err != nil {
		return Room{}, err
	}
	return room, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	op := fmt.Sprintf("%s %s", method, path)

	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &APIError{Sentinel: ErrBadResponse, Operation: op, Err: err}
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return &APIError{Sentinel: ErrUpstreamUnavailable, Operation: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &APIError{Sentinel: ErrUpstreamUnavailable, Operation: op, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return &APIError{Sentinel: ErrNotFound, Operation: op, Status: res.StatusCode}
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return &APIError{Sentinel: ErrUnauthorized, Operation: op, Status: res.StatusCode}
	case res.StatusCode >= 500:
		return &APIError{Sentinel: ErrUpstreamError, Operation: op, Status: res.StatusCode, Body: snippet(res.Body)}
	case res.StatusCode >= 400:
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Status: res.StatusCode, Body: snippet(res.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return &APIError{Sentinel: ErrBadResponse, Operation: op, Err: err}
		}
	}
	return nil
}

// snippet reads a short excerpt of an error body for logging.
func snippet(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(raw))
}
