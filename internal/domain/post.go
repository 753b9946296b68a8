package domain

import "time"

// Post is the registry entry for a blog post owned by the CMS. Ratings only
// reference it by ID.
type Post struct {
	ID        int64
	Title     string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
