// Package clips defines the shared descriptors produced by the extractor
// and persisted by the cutter and index (spec §3.2): ClipSegment (a
// time-bounded descriptor into a source video) and ClipRecord (the
// persisted outcome of cutting one).
package clips

import (
	"strings"
	"time"
)

type Mode string

const (
	ModeEvent Mode = "event"
	ModeShift Mode = "shift"
)

// ClipSegment is a time-bounded descriptor into a source video. The
// extractor builds its clip identifier deterministically from game id,
// period, whole-second timecode (shift start in shift mode) and player id,
// so it is stable across repeated extraction runs; the source path and the
// end bound do not enter the identifier.
type ClipSegment struct {
	ClipID         string
	SourcePath     string
	StartSeconds   float64
	EndSeconds     float64
	TimecodeSeconds float64
	DurationSeconds float64
	GameID         string
	Period         int
	Mode           Mode
	PlayerID       string
	Teammates      []string
	Opponents      []string
	TeamCode       string
	OpponentCode   string
	EventType      string
	Outcome        string
	Zone           string
	Strength       string
	Season         string
	GameDate       string
}

// ClipRecord is the persisted outcome of cutting a ClipSegment.
type ClipRecord struct {
	ClipSegment

	Fingerprint       string
	FilePath          string
	ThumbnailPath     string
	HLSPlaylistPath   string
	ByteSize          int64
	ProcessingMs       int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NormalizeID strips quotes, a trailing ".0" float suffix, and surrounding
// whitespace, so "123", "\"123\"" and "123.0" all compare equal (spec
// §3.2 identifier normalisation, §4.I player-id matching).
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.Trim(id, `"'`)
	id = strings.TrimSuffix(id, ".0")
	return id
}
