package extractor

import (
	"context"
	"fmt"
	"strings"

	"oms.heartbeat.dev/clips"
	"oms.heartbeat.dev/ontology/resolver"
)

const timelineObjectType = "timeline"

// queryEvents implements spec §4.I's event mode: reads the per-game
// timeline table, filters by normalised player id (accepting both "123"
// and "123.0" shapes), by action taxonomy expansion, by zone, by period.
func (e *Extractor) queryEvents(ctx context.Context, params ClipSearchParams) ([]clips.ClipSegment, error) {
	playerIDs := e.resolvePlayerIDs(ctx, params.Players, params.Team, params.Season)

	var expandedEvents []string
	for _, term := range params.EventTypes {
		expandedEvents = append(expandedEvents, normalizeEventType(term)...)
	}

	var zoneSet map[string]bool
	if len(params.Zones) > 0 {
		zoneSet = make(map[string]bool, len(params.Zones))
		for _, z := range params.Zones {
			zoneSet[normalizeZone(z)] = true
		}
	}

	gameIDs := e.resolveGameIDs(ctx, params)

	var segments []clips.ClipSegment
	for _, gameID := range gameIDs {
		filters := map[string]interface{}{"game_id": gameID}
		if len(params.Periods) > 0 {
			periods := make([]interface{}, len(params.Periods))
			for i, p := range params.Periods {
				periods[i] = p
			}
			filters["period"] = periods
		}

		rows, err := e.source.GetByFilter(ctx, timelineObjectType, filters, nil, 0, 0)
		if err != nil {
			return nil, err
		}

		for _, row := range rows {
			rowPlayerID := clips.NormalizeID(recordString(row, "player_id"))
			if len(playerIDs) > 0 && !containsNormalized(playerIDs, rowPlayerID) {
				continue
			}

			if len(expandedEvents) > 0 {
				action := recordString(row, "action")
				if !actionMatchesAny(action, expandedEvents) {
					continue
				}
			}

			if zoneSet != nil {
				zone := normalizeZone(recordString(row, "zone"))
				if !zoneSet[zone] {
					continue
				}
			}

			seg, ok := e.buildEventSegment(ctx, row, gameID, rowPlayerID, params)
			if ok {
				segments = append(segments, seg)
				if len(segments) >= params.Limit {
					return segments, nil
				}
			}
		}
	}
	return segments, nil
}

func containsNormalized(ids []string, id string) bool {
	for _, v := range ids {
		if clips.NormalizeID(v) == id {
			return true
		}
	}
	return false
}

func actionMatchesAny(action string, wanted []string) bool {
	up := strings.ToUpper(action)
	for _, w := range wanted {
		if strings.Contains(up, strings.ToUpper(w)) {
			return true
		}
	}
	return false
}

func (e *Extractor) buildEventSegment(ctx context.Context, row resolver.Record, gameID, playerID string, params ClipSearchParams) (clips.ClipSegment, bool) {
	timecodeStr := recordString(row, "timecode")
	timecodeS := parseTimecode(timecodeStr)

	period, _ := recordInt(row, "period")

	pre := params.PreSeconds
	post := params.PostSeconds
	if pre == 0 && post == 0 {
		pre, post = 3.0, 5.0
	}

	startS := timecodeS - pre
	if startS < 0 {
		startS = 0
	}
	endS := timecodeS + post

	teamCode := recordString(row, "team_code")
	if teamCode == "" {
		teamCode = recordString(row, "team")
	}

	return clips.ClipSegment{
		ClipID:          fmt.Sprintf("clip_%s_p%d_%ds_%s", gameID, period, int(timecodeS), playerID),
		SourcePath:      e.resolveSourcePath(gameID, period, teamCode, params.Season),
		StartSeconds:    startS,
		EndSeconds:      endS,
		TimecodeSeconds: timecodeS,
		DurationSeconds: endS - startS,
		GameID:          gameID,
		Period:          period,
		Mode:            clips.ModeEvent,
		PlayerID:        playerID,
		TeamCode:        teamCode,
		OpponentCode:    recordString(row, "opponent"),
		EventType:       recordString(row, "action"),
		Outcome:         recordString(row, "outcome"),
		Zone:            recordString(row, "zone"),
		Season:          params.Season,
	}, true
}

