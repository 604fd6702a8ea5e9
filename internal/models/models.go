// Package models defines the domain entities shared across the realtime
// editing subsystem and its supporting services.
package models

import (
	"time"

	"github.com/google/uuid"
)

// NoteId is the opaque primary key of a note, and of the hub bound to it.
type NoteId string

// User is an authenticated participant resolved from a session.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Username  string    `json:"username" db:"username" validate:"required,min=3,max=50"`
	Email     string    `json:"email" db:"email" validate:"required,email"`
	Password  string    `json:"-" db:"password"`
	IsAdmin   bool      `json:"is_admin" db:"is_admin"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Note is a named markdown document. Alias is an optional human-friendly
// identifier that resolves to the same note as ID.
type Note struct {
	ID        NoteId    `json:"id" db:"id"`
	Alias     string    `json:"alias" db:"alias"`
	OwnerID   uuid.UUID `json:"owner_id" db:"owner_id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Revision is one saved snapshot of a note's content. The hub loads the
// latest revision's content lazily, on first connection, through the
// registry's initial-content loader.
type Revision struct {
	ID        uuid.UUID `json:"id" db:"id"`
	NoteID    NoteId    `json:"note_id" db:"note_id"`
	Content   string    `json:"content" db:"content"`
	Length    int       `json:"length" db:"length"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
