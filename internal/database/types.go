package database

import (
	"time"
)

// StoredSample represents one person-crop embedding stored in the database.
type StoredSample struct {
	UID       string
	PersonID  int
	CamID     int
	Seq       int // per-(person, camera) sequence number
	Embedding []float32
	Model     string
	Dim       int
	CreatedAt time.Time
}

// PersonStats summarizes stored samples for one identity.
type PersonStats struct {
	PersonID int `json:"person_id"`
	Samples  int `json:"samples"`
	Cameras  int `json:"cameras"`
}

// StoreStats summarizes the whole sample store.
type StoreStats struct {
	Samples int           `json:"samples"`
	Persons int           `json:"persons"`
	Cameras int           `json:"cameras"`
	PerID   []PersonStats `json:"per_person,omitempty"`
}
