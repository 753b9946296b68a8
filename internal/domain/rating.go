package domain

import "time"

// Rating represents a single anonymous submitter's score for a post.
type Rating struct {
	ID        string
	PostID    int64
	Score     int
	UserHash  string
	CreatedAt time.Time
}

// RatingAggregate provides average, score sum and count for a post's ratings.
type RatingAggregate struct {
	Average float64
	Sum     int64
	Count   int64
}
