package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Publication is a notice returned by the publication-search provider.
// It is read-only once fetched.
type Publication struct {
	ExternalID    string          `json:"external_id,omitempty" yaml:"external_id"`
	ProcessNumber string          `json:"process_number" yaml:"process_number"`
	PublishedAt   *time.Time      `json:"published_at,omitempty" yaml:"published_at"`
	Content       string          `json:"content" yaml:"content"`
	Court         string          `json:"court" yaml:"court"`
	Diary         string          `json:"diary" yaml:"diary"`
	Page          string          `json:"page" yaml:"page"`
	OABNumber     string          `json:"oab_number" yaml:"oab_number"`
	Raw           json.RawMessage `json:"raw,omitempty" yaml:"-"`
}

// Key returns the natural key used to upsert the publication. The provider's
// identifier wins; otherwise a content fingerprint is used.
func (p Publication) Key() string {
	if id := strings.TrimSpace(p.ExternalID); id != "" {
		return id
	}
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(p.ProcessNumber)))
	h.Write([]byte{0})
	if p.PublishedAt != nil {
		h.Write([]byte(p.PublishedAt.UTC().Format(time.RFC3339)))
	}
	h.Write([]byte{0})
	h.Write([]byte(p.Diary))
	h.Write([]byte{0})
	h.Write([]byte(p.Page))
	h.Write([]byte{0})
	h.Write([]byte(p.Content))
	return "fp:" + hex.EncodeToString(h.Sum(nil))
}
