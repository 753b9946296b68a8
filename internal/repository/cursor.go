package repository

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// RatingCursor allows stable pagination by created_at/id.
type RatingCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

func encodeCursor(c RatingCursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token into a RatingCursor. An empty token
// yields a nil cursor.
func DecodeCursor(token string) (*RatingCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor RatingCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	if cursor.ID == "" || cursor.CreatedAt.IsZero() {
		return nil, fmt.Errorf("invalid cursor payload: missing fields")
	}
	if _, err := uuid.Parse(cursor.ID); err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	return &cursor, nil
}
