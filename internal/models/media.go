// Package models contains data structures shared across the playback pipeline
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Episode represents a single episode discovered on a series page.
// Episodes are rebuilt on every page load and never persisted.
type Episode struct {
	ID      string `json:"id"`      // opaque numeric-like id, unique within a series
	URL     string `json:"url"`     // absolute watch URL carrying the ep parameter
	Title   string `json:"title"`   // anchor text or "Episode <id>"
	Ordinal int    `json:"ordinal"` // position in the sorted catalog
}

// NumericID returns the episode id as an integer, or -1 when it is not numeric
func (e Episode) NumericID() int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(e.ID), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// DisplayName returns a human readable label for pickers and presence
func (e Episode) DisplayName() string {
	if e.Title != "" {
		return fmt.Sprintf("%d. %s", e.Ordinal+1, e.Title)
	}
	return fmt.Sprintf("%d. Episode %s", e.Ordinal+1, e.ID)
}

// Series represents a series link found on a genre listing
type Series struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Genre string `json:"genre"`
}
