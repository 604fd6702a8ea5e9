package dto

import (
	"time"

	"github.com/google/uuid"
)

// BaseResponse contains common response fields.
type BaseResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	BaseResponse
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// PaginatedResponse represents a paginated list response.
type PaginatedResponse struct {
	BaseResponse
	Data       interface{} `json:"data"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination contains pagination metadata.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// UserResponse represents the subset of a user's data safe to expose.
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResponse is returned on successful login; the session cookie
// itself is set via Set-Cookie, not carried in the body.
type LoginResponse struct {
	BaseResponse
	User UserResponse `json:"user"`
}

// NoteResponse represents a note's metadata, without its content — notes
// content is exchanged exclusively over the realtime sync protocol once a
// hub exists.
type NoteResponse struct {
	ID        string    `json:"id"`
	Alias     string    `json:"alias,omitempty"`
	Title     string    `json:"title"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	BaseResponse
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Uptime   string            `json:"uptime"`
	Services map[string]string `json:"services"`
}

// HubStatsResponse summarizes the live state of the hub registry for the
// operational stats endpoint.
type HubStatsResponse struct {
	BaseResponse
	OpenHubs         int `json:"open_hubs"`
	TotalConnections int `json:"total_connections"`
}

// NoteStatsResponse reports the live connection/sync state of a single
// note's hub, for the admin-only per-note stats endpoint. Open is false
// (and the remaining counters zero) when the note currently has no hub.
type NoteStatsResponse struct {
	BaseResponse
	NoteID          string `json:"note_id"`
	Open            bool   `json:"open"`
	ConnectionCount int    `json:"connection_count"`
	SyncedCount     int    `json:"synced_count"`
	ContentLength   int    `json:"content_length"`
}
