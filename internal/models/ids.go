package models

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns prefix + "_" + 12 random hex characters, e.g. "ev_3f9a0c1b2d4e".
func NewID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + hex[:12]
}
