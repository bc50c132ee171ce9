package models

import (
	"time"

	"github.com/google/uuid"
)

// Tournament carries the fields the clock subsystem needs; tournament CRUD
// lives outside this service.
type Tournament struct {
	ID        uuid.UUID `json:"id"`
	ClubID    uuid.UUID `json:"club_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager identifies a user allowed to operate a club's tournament clocks.
type Manager struct {
	UserID uuid.UUID `json:"user_id"`
	ClubID uuid.UUID `json:"club_id"`
}
