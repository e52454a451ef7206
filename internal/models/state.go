package models

import "slices"

// DefaultGenre is applied whenever auto-jump needs a genre and none is selected
const DefaultGenre = "Action"

// PlaybackState is the durable part of the controller. Every field survives a
// page navigation through the session store; nothing else does.
type PlaybackState struct {
	Autoplay                bool     `json:"autoplay"`
	LoopAtEnd               bool     `json:"loopAtEnd"`
	AutoJumpEnabled         bool     `json:"autoJumpEnabled"`
	SelectedGenres          []string `json:"selectedGenres"`
	PendingEpisodeQueue     []int    `json:"pendingEpisodeQueue"`
	EpisodesWatchedInSeries int      `json:"episodesWatchedInSeries"`
	TargetEpisodesInSeries  int      `json:"targetEpisodesInSeries"`
}

// DefaultPlaybackState returns the state used on first launch
func DefaultPlaybackState() PlaybackState {
	return PlaybackState{
		Autoplay:            true,
		LoopAtEnd:           true,
		SelectedGenres:      []string{},
		PendingEpisodeQueue: []int{},
	}
}

// Clone returns a deep copy so callers can't alias the slices
func (s PlaybackState) Clone() PlaybackState {
	c := s
	c.SelectedGenres = slices.Clone(s.SelectedGenres)
	c.PendingEpisodeQueue = slices.Clone(s.PendingEpisodeQueue)
	if c.SelectedGenres == nil {
		c.SelectedGenres = []string{}
	}
	if c.PendingEpisodeQueue == nil {
		c.PendingEpisodeQueue = []int{}
	}
	return c
}

// HasResumableQueue reports whether an auto-jump plan was already drawn for the series
func (s PlaybackState) HasResumableQueue() bool {
	return len(s.PendingEpisodeQueue) > 0 && s.TargetEpisodesInSeries > 0
}

// ResetSeries clears the per-series auto-jump progress
func (s *PlaybackState) ResetSeries() {
	s.PendingEpisodeQueue = []int{}
	s.EpisodesWatchedInSeries = 0
	s.TargetEpisodesInSeries = 0
}

// Normalize repairs values that can't hold regardless of the catalog:
// negative counters, watched above target and duplicate genres.
func (s *PlaybackState) Normalize() {
	if s.EpisodesWatchedInSeries < 0 {
		s.EpisodesWatchedInSeries = 0
	}
	if s.TargetEpisodesInSeries < 0 {
		s.TargetEpisodesInSeries = 0
	}
	if s.EpisodesWatchedInSeries > s.TargetEpisodesInSeries {
		s.EpisodesWatchedInSeries = s.TargetEpisodesInSeries
	}
	s.SelectedGenres = UniqueGenres(s.SelectedGenres)
	if s.PendingEpisodeQueue == nil {
		s.PendingEpisodeQueue = []int{}
	}
}

// UniqueGenres drops empty and repeated entries while keeping the first occurrence order
func UniqueGenres(genres []string) []string {
	out := make([]string, 0, len(genres))
	seen := make(map[string]struct{}, len(genres))
	for _, g := range genres {
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}
