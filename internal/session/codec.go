package session

import (
	"encoding/json"

	"github.com/alvarorichard/animebinge/internal/models"
	"github.com/alvarorichard/animebinge/internal/util"
)

// Namespace is the key the playback state is stored under
const Namespace = "playerState"

// fieldAliases maps every accepted key to the canonical field. Older
// installs wrote the names on the right-hand side of each pair.
var fieldAliases = map[string][]string{
	"autoplay":                {"autoplay"},
	"loopAtEnd":               {"loopAtEnd", "loop"},
	"autoJumpEnabled":         {"autoJumpEnabled", "autoJump"},
	"selectedGenres":          {"selectedGenres"},
	"pendingEpisodeQueue":     {"pendingEpisodeQueue", "randomEpisodeQueue"},
	"episodesWatchedInSeries": {"episodesWatchedInSeries", "episodesWatchedInCurrentAnime"},
	"targetEpisodesInSeries":  {"targetEpisodesInSeries", "targetEpisodesForCurrentAnime"},
}

// Encode serializes the state with canonical field names
func Encode(state models.PlaybackState) ([]byte, error) {
	return json.Marshal(state.Clone())
}

// Decode merges raw over the defaults field by field. A missing or malformed
// field keeps its default; unknown fields are ignored. A document that is not a
// JSON object yields the defaults and ok=false.
func Decode(raw []byte) (state models.PlaybackState, ok bool) {
	state = models.DefaultPlaybackState()
	if len(raw) == 0 {
		return state, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return state, false
	}

	decodeField(fields, "autoplay", &state.Autoplay)
	decodeField(fields, "loopAtEnd", &state.LoopAtEnd)
	decodeField(fields, "autoJumpEnabled", &state.AutoJumpEnabled)
	decodeField(fields, "selectedGenres", &state.SelectedGenres)
	decodeField(fields, "pendingEpisodeQueue", &state.PendingEpisodeQueue)
	decodeField(fields, "episodesWatchedInSeries", &state.EpisodesWatchedInSeries)
	decodeField(fields, "targetEpisodesInSeries", &state.TargetEpisodesInSeries)

	state.Normalize()
	return state, true
}

// decodeField fills dst from the first alias present that decodes cleanly
func decodeField[T any](fields map[string]json.RawMessage, name string, dst *T) {
	for _, key := range fieldAliases[name] {
		raw, exists := fields[key]
		if !exists {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			util.Debug("Ignoring malformed state field", "field", key, "error", err)
			continue
		}
		// null decodes to the zero value; keep the default instead
		if string(raw) == "null" {
			continue
		}
		*dst = v
		return
	}
}
