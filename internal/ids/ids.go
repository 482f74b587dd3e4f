package ids

import (
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// New returns a sortable id for long-lived entities (sessions, devices).
func New() string {
	return ksuid.New().String()
}

// Request returns a per-request correlation id.
func Request() string {
	return uuid.NewString()
}
