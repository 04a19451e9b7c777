package speech

import "time"

// Artifact is the assembled, verified audio for one turn.
type Artifact struct {
	Handle      string    `json:"handle"`
	Format      string    `json:"format"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Segments    int       `json:"segments"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
