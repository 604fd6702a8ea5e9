// Package notesvc resolves notes by id or alias, fetches their latest
// revision content, and checks read permission, adapted from this
// codebase's repository package's Postgres query style.
package notesvc

import (
	"database/sql"
	"fmt"

	"github.com/notehub/collab/internal/models"
)

// Service resolves a note by its id or alias and its latest saved
// content — the two collaborators the registry's initial-content loader
// and the connection admitter depend on.
type Service interface {
	ByIDOrAlias(idOrAlias string) (*models.Note, error)
	GetLatestRevision(note *models.Note) (*models.Revision, error)
}

// PostgresService looks notes and revisions up in Postgres.
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService wraps an existing *sql.DB.
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// ByIDOrAlias resolves a note whose id or alias equals idOrAlias, in one
// query with no precedence between the two columns; the id is compared as
// text so a non-UUID alias can still match. If one note's id equals
// another note's alias, which of the two is returned is not defined.
func (s *PostgresService) ByIDOrAlias(idOrAlias string) (*models.Note, error) {
	n := &models.Note{}
	query := `
		SELECT id, alias, owner_id, title, created_at, updated_at
		FROM notes WHERE id::text = $1 OR alias = $1`

	err := s.db.QueryRow(query, idOrAlias).Scan(
		&n.ID, &n.Alias, &n.OwnerID, &n.Title, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("notesvc: note %q not found", idOrAlias)
		}
		return nil, err
	}
	return n, nil
}

// GetLatestRevision fetches the most recently created revision for note.
func (s *PostgresService) GetLatestRevision(note *models.Note) (*models.Revision, error) {
	r := &models.Revision{}
	query := `
		SELECT id, note_id, content, length, created_at
		FROM revisions WHERE note_id = $1
		ORDER BY created_at DESC LIMIT 1`

	err := s.db.QueryRow(query, note.ID).Scan(
		&r.ID, &r.NoteID, &r.Content, &r.Length, &r.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			// A brand-new note with no saved revision starts empty.
			return &models.Revision{NoteID: note.ID, Content: ""}, nil
		}
		return nil, err
	}
	return r, nil
}

// PermissionsService checks whether a user may read a note.
type PermissionsService interface {
	MayRead(user *models.User, note *models.Note) bool
}

// OwnerOrPublicPermissions grants read access to a note's owner only.
// Broader sharing policy is left to a future permissions model.
type OwnerOrPublicPermissions struct{}

// NewOwnerOrPublicPermissions constructs the default permission policy.
func NewOwnerOrPublicPermissions() *OwnerOrPublicPermissions {
	return &OwnerOrPublicPermissions{}
}

func (OwnerOrPublicPermissions) MayRead(user *models.User, note *models.Note) bool {
	if user == nil || note == nil {
		return false
	}
	return user.ID == note.OwnerID
}
