// Package extractor implements the Clip Extractor (spec §4.I): it derives
// time-bounded ClipSegments from a per-game timeline table (event mode) or
// a per-game shift table (shift mode), filtering by player, event taxonomy,
// zone, period, and on-ice teammates/opponents.
package extractor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"oms.heartbeat.dev/clips"
	"oms.heartbeat.dev/ontology/resolver"
)

// ClipSearchParams mirrors spec §4.I's input shape.
type ClipSearchParams struct {
	Players        []string
	Teammates      []string
	OpponentsOnIce []string
	EventTypes     []string
	Zones          []string
	Timeframe      string
	GameIDs        []string
	Periods        []int
	Team           string
	Mode           clips.Mode
	Limit          int
	PreSeconds     float64
	PostSeconds    float64
	Season         string
}

// DefaultClipSearchParams applies spec §4.I's defaults: event mode, 3s
// pre-roll, 5s post-roll, limit 10.
func DefaultClipSearchParams() ClipSearchParams {
	return ClipSearchParams{
		Mode:        clips.ModeEvent,
		Limit:       10,
		PreSeconds:  3.0,
		PostSeconds: 5.0,
	}
}

// RosterMatch is one name-search hit.
type RosterMatch struct {
	ID   string
	Name string
}

// RosterLookup resolves player ids to display names and names to ids. A
// best-effort in-memory fallback implementation is provided below;
// production deployments are expected to supply a collaborator backed by
// the roster service.
type RosterLookup interface {
	GetPlayerName(ctx context.Context, id, teamCode, season string) string
	SearchByName(ctx context.Context, name, teamCode, season string) ([]RosterMatch, error)
}

// fallbackRoster returns the stringified id as the name and never matches a
// name search; it exists so the extractor is usable with no roster service
// configured at all (spec §4.I: "missing names fall back to the
// stringified id").
type fallbackRoster struct{}

func (fallbackRoster) GetPlayerName(ctx context.Context, id, teamCode, season string) string {
	return id
}

func (fallbackRoster) SearchByName(ctx context.Context, name, teamCode, season string) ([]RosterMatch, error) {
	return nil, nil
}

// VideoPathResolver locates the period-relative broadcast file backing a
// segment, mirroring clip_query_enhanced.py's _resolve_period_video_path.
// A nil resolver (the default) leaves ClipSegment.SourcePath empty; callers
// driving the cutter from extracted segments must then supply SourcePath
// themselves.
type VideoPathResolver interface {
	ResolvePeriodVideoPath(gameID string, period int, teamCode, season string) string
}

// ScheduleLookup resolves a timeframe token ("last_game", "last_3_games",
// "last_5_games", "last_10_games", "this_season") to the game ids it covers
// for a team/season, mirroring schedule_service.py's resolve_timeframe. A
// nil lookup (the default) leaves timeframe tokens unresolved; callers that
// need timeframe support must configure one.
type ScheduleLookup interface {
	ResolveTimeframe(ctx context.Context, timeframe, teamCode, season string) ([]string, error)
}

// Source is the subset of *ontology/resolver.Resolver the extractor reads
// from. Kept narrow so the extractor package doesn't need to know which
// backend (SQL, columnar) backs the timeline/shift tables.
type Source interface {
	GetByFilter(ctx context.Context, objectType string, filters map[string]interface{}, projection []string, limit, offset int) ([]resolver.Record, error)
}

// eventTaxonomy maps a spec-level event term to the concrete backend action
// strings it expands to, recovered from clip_query_enhanced.py's
// event_taxonomy table.
var eventTaxonomy = map[string][]string{
	"zone_entry":  {"CONTROLLED ENTRY INTO OZ", "OZ ENTRY PASS+", "O-ZONE ENTRY PASS RECEPTION"},
	"dump_in":     {"DUMP IN+", "CHIP DUMP+"},
	"dzone_exit":  {"CONTROLLED EXIT FROM DZ"},
	"zone_exit":   {"CONTROLLED EXIT FROM DZ"},
	"breakout":    {"CONTROLLED EXIT FROM DZ", "DZ OUTLET PASS+"},
	"shot":        {"SLOT SHOT FOR ONNET", "OUTSIDE SHOT FOR ONNET", "SLOT SHOT FOR MISSED", "OUTSIDE SHOT FOR MISSED", "SLOT SHOT FOR BLOCKED"},
	"goal":        {"GOAL"},
	"pass":        {"OZPASS", "NZPASS", "DZONE D2D+", "DZ OUTLET PASS+"},
	"block":       {"BLOCK OPPOSITION SHOT+", "BLOCK OPPOSITION PASS+"},
	"stick_check": {"OZ STICK CHK+", "DZ STICK CHK+"},
	"pressure":    {"SHOT PRESSURE"},
	"lpr":         {"LPR+", "DUMP IN LPR+", "OFF LPR"},
	"recovery":    {"LPR+", "DUMP IN LPR+"},
	"turnover":    {"PUCK GIVEAWAY"},
	"takeaway":    {"TAKEAWAY"},
	"faceoff":     {"FACEOFF WIN+", "FACEOFF LOSS"},
}

// normalizeEventType expands a taxonomy term; unknown terms pass through
// uppercased, matching the source's "else event_term.upper()" behaviour.
func normalizeEventType(term string) []string {
	if expanded, ok := eventTaxonomy[strings.ToLower(term)]; ok {
		return expanded
	}
	return []string{strings.ToUpper(term)}
}

// normalizeZone folds zone synonyms to the OZ/NZ/DZ closed set, passing
// anything outside it through uppercased (conservative seed set per the
// preserved Open Question; extend only by adding entries).
func normalizeZone(z string) string {
	up := strings.ToUpper(strings.TrimSpace(z))
	switch up {
	case "OFFENSIVE", "O-ZONE", "OZONE", "OFFENSIVE ZONE":
		return "OZ"
	case "NEUTRAL", "NEUTRAL ZONE", "N-ZONE", "NZONE":
		return "NZ"
	case "DEFENSIVE", "D-ZONE", "DZONE", "DEFENSIVE ZONE":
		return "DZ"
	default:
		return up
	}
}

// Extractor wires a record source and roster lookup together with the
// per-game period-offset cache described in spec §5 ("monotonic,
// write-once").
type Extractor struct {
	source    Source
	roster    RosterLookup
	videoPath VideoPathResolver
	schedule  ScheduleLookup

	offsetMu sync.Mutex
	offsets  map[string]map[int]float64
}

// New builds an Extractor. roster may be nil, in which case the
// stringified-id fallback is used.
func New(source Source, roster RosterLookup) *Extractor {
	if roster == nil {
		roster = fallbackRoster{}
	}
	return &Extractor{
		source:  source,
		roster:  roster,
		offsets: make(map[string]map[int]float64),
	}
}

// WithVideoPathResolver attaches the collaborator that resolves a segment's
// source media path; without one, ClipSegment.SourcePath is left empty.
func (e *Extractor) WithVideoPathResolver(r VideoPathResolver) *Extractor {
	e.videoPath = r
	return e
}

// WithScheduleLookup attaches the collaborator that resolves timeframe
// tokens to game ids; without one, timeframe queries with no explicit
// GameIDs return no segments.
func (e *Extractor) WithScheduleLookup(s ScheduleLookup) *Extractor {
	e.schedule = s
	return e
}

func (e *Extractor) resolveSourcePath(gameID string, period int, teamCode, season string) string {
	if e.videoPath == nil {
		return ""
	}
	return e.videoPath.ResolvePeriodVideoPath(gameID, period, teamCode, season)
}

// Query dispatches to the event or shift mode implementation and orders
// the combined result by game, then period, then time, capped at limit.
func (e *Extractor) Query(ctx context.Context, params ClipSearchParams) ([]clips.ClipSegment, error) {
	if params.Limit <= 0 {
		params.Limit = 10
	}

	var (
		segments []clips.ClipSegment
		err      error
	)
	if params.Mode == clips.ModeShift {
		segments, err = e.queryShifts(ctx, params)
	} else {
		segments, err = e.queryEvents(ctx, params)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(segments, func(i, j int) bool {
		if segments[i].GameID != segments[j].GameID {
			return segments[i].GameID < segments[j].GameID
		}
		if segments[i].Period != segments[j].Period {
			return segments[i].Period < segments[j].Period
		}
		return segments[i].TimecodeSeconds < segments[j].TimecodeSeconds
	})

	if len(segments) > params.Limit {
		segments = segments[:params.Limit]
	}
	return segments, nil
}

// resolvePlayerIDs accepts both numeric ids and names (resolved via the
// roster lookup), per spec §4.I.
func (e *Extractor) resolvePlayerIDs(ctx context.Context, players []string, teamCode, season string) []string {
	var out []string
	for _, p := range players {
		if _, err := strconv.Atoi(clips.NormalizeID(p)); err == nil {
			out = append(out, clips.NormalizeID(p))
			continue
		}
		matches, _ := e.roster.SearchByName(ctx, p, teamCode, season)
		for _, m := range matches {
			out = append(out, m.ID)
		}
	}
	return out
}

func toStringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, x := range t {
			out = append(out, fmt.Sprintf("%v", x))
		}
		return out
	default:
		return nil
	}
}

func recordString(rec resolver.Record, key string) string {
	if v, ok := rec[key]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func recordFloat(rec resolver.Record, key string) (float64, bool) {
	v, ok := rec[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func recordInt(rec resolver.Record, key string) (int, bool) {
	f, ok := recordFloat(rec, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// parseTimecode converts "HH:MM:SS:FF" (30fps frames) or "HH:MM:SS" to
// seconds, matching clip_query_enhanced.py's _parse_timecode_to_seconds.
func parseTimecode(tc string) float64 {
	parts := strings.Split(tc, ":")
	switch len(parts) {
	case 4:
		h, _ := strconv.Atoi(parts[0])
		m, _ := strconv.Atoi(parts[1])
		s, _ := strconv.Atoi(parts[2])
		ff, _ := strconv.Atoi(parts[3])
		return float64(h*3600+m*60+s) + float64(ff)/30.0
	case 3:
		h, _ := strconv.Atoi(parts[0])
		m, _ := strconv.Atoi(parts[1])
		s, _ := strconv.ParseFloat(parts[2], 64)
		return float64(h*3600+m*60) + s
	default:
		return 0
	}
}

// clampSegment applies spec §4.I's common clamp: start >= 0, end within
// [start+0.1, min(computed_end, periodDuration)] when periodDuration is
// known (0 means unknown).
func clampSegment(start, end, periodDuration float64) (float64, float64) {
	if start < 0 {
		start = 0
	}
	if periodDuration > 0 && start > periodDuration {
		start = periodDuration
	}
	maxEnd := end
	if periodDuration > 0 && periodDuration < maxEnd {
		maxEnd = periodDuration
	}
	if maxEnd < start+0.1 {
		maxEnd = start + 0.1
	}
	return start, maxEnd
}
