package extractor

import (
	"context"
	"fmt"

	"oms.heartbeat.dev/clips"
	"oms.heartbeat.dev/ontology/resolver"
)

const shiftObjectType = "shifts"

// queryShifts implements spec §4.I's shift mode: reads the per-game shift
// table, filters by period and by opponents-on-ice (id overlap), converting
// each shift's absolute start and end to period-relative seconds via the
// period-offset cache. Teammates in params do not filter the result.
func (e *Extractor) queryShifts(ctx context.Context, params ClipSearchParams) ([]clips.ClipSegment, error) {
	playerIDs := e.resolvePlayerIDs(ctx, params.Players, params.Team, params.Season)
	// Teammate filtering is accepted but not applied: the shift table only
	// carries opponents_seen_ids, with no same-team on-ice column to test
	// teammate membership against, matching the source tool's own no-op.
	_ = e.resolvePlayerIDs(ctx, params.Teammates, params.Team, params.Season)
	opponentIDs := e.resolvePlayerIDs(ctx, params.OpponentsOnIce, "", params.Season)

	gameIDs := e.resolveGameIDs(ctx, params)

	var segments []clips.ClipSegment
	for _, gameID := range gameIDs {
		rows, err := e.source.GetByFilter(ctx, shiftObjectType, map[string]interface{}{"game_id": gameID}, nil, 0, 0)
		if err != nil {
			return nil, err
		}

		offsets := e.periodOffsets(ctx, gameID)

		for _, pid := range playerIDs {
			for _, row := range rows {
				if clips.NormalizeID(recordString(row, "player_id")) != clips.NormalizeID(pid) {
					continue
				}

				period, _ := recordInt(row, "start_period")
				if period == 0 {
					period = 1
				}
				if len(params.Periods) > 0 && !containsInt(params.Periods, period) {
					continue
				}

				opponentsSeen := toStringSlice(row["opponents_seen_ids"])
				if len(opponentIDs) > 0 && !anyIDOverlap(opponentIDs, opponentsSeen) {
					continue
				}

				seg, ok := e.buildShiftSegment(ctx, row, gameID, pid, period, offsets, params)
				if ok {
					segments = append(segments, seg)
					if len(segments) >= params.Limit {
						return segments, nil
					}
				}
			}
		}
	}
	return segments, nil
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func anyIDOverlap(want, have []string) bool {
	haveSet := make(map[string]bool, len(have))
	for _, h := range have {
		haveSet[clips.NormalizeID(h)] = true
	}
	for _, w := range want {
		if haveSet[clips.NormalizeID(w)] {
			return true
		}
	}
	return false
}

func (e *Extractor) buildShiftSegment(ctx context.Context, row resolver.Record, gameID, playerID string, period int, offsets map[int]float64, params ClipSearchParams) (clips.ClipSegment, bool) {
	offset := offsets[period]

	var startS, endS float64
	if abs, ok := recordFloat(row, "start_timecode_abs"); ok {
		startS = abs - offset
	}
	if abs, ok := recordFloat(row, "end_timecode_abs"); ok {
		endS = abs - offset
	} else {
		approx := 12.0
		if l, ok := recordFloat(row, "shift_real_length"); ok {
			approx = l
		} else if l, ok := recordFloat(row, "shift_game_length"); ok {
			approx = l
		}
		endS = startS + approx
	}

	startS, endS = clampSegment(startS, endS, 0)

	teamCode := recordString(row, "team_code")
	opponents := toStringSlice(row["opponents_seen_ids"])

	return clips.ClipSegment{
		ClipID:          fmt.Sprintf("shift_%s_p%d_%ds_%s", gameID, period, int(startS), playerID),
		SourcePath:      e.resolveSourcePath(gameID, period, teamCode, params.Season),
		StartSeconds:    startS,
		EndSeconds:      endS,
		TimecodeSeconds: startS,
		DurationSeconds: endS - startS,
		GameID:          gameID,
		Period:          period,
		Mode:            clips.ModeShift,
		PlayerID:        playerID,
		Opponents:       opponents,
		TeamCode:        teamCode,
		Strength:        recordString(row, "strength_start"),
		Season:          params.Season,
	}, true
}

// periodOffsets returns the per-period offset map for gameID, computing it
// once from the timeline's max timecode per period and caching it
// thereafter (spec §5: "monotonic, write-once").
func (e *Extractor) periodOffsets(ctx context.Context, gameID string) map[int]float64 {
	e.offsetMu.Lock()
	if cached, ok := e.offsets[gameID]; ok {
		e.offsetMu.Unlock()
		return cached
	}
	e.offsetMu.Unlock()

	offsets := e.computePeriodOffsets(ctx, gameID)

	e.offsetMu.Lock()
	if _, ok := e.offsets[gameID]; !ok {
		e.offsets[gameID] = offsets
	}
	result := e.offsets[gameID]
	e.offsetMu.Unlock()
	return result
}

// computePeriodOffsets implements clip_query_enhanced.py's
// _get_period_offsets: offset(p) = sum of max timecode of periods < p.
func (e *Extractor) computePeriodOffsets(ctx context.Context, gameID string) map[int]float64 {
	offsets := make(map[int]float64)

	rows, err := e.source.GetByFilter(ctx, timelineObjectType, map[string]interface{}{"game_id": gameID}, []string{"period", "timecode"}, 0, 0)
	if err != nil {
		return offsets
	}

	maxByPeriod := make(map[int]float64)
	for _, row := range rows {
		period, ok := recordInt(row, "period")
		if !ok {
			continue
		}
		s := parseTimecode(recordString(row, "timecode"))
		if s > maxByPeriod[period] {
			maxByPeriod[period] = s
		}
	}

	periods := make([]int, 0, len(maxByPeriod))
	for p := range maxByPeriod {
		periods = append(periods, p)
	}
	sortInts(periods)

	acc := 0.0
	for _, p := range periods {
		offsets[p] = acc
		acc += maxByPeriod[p]
	}
	return offsets
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// resolveGameIDs returns the explicit game id list when given, otherwise
// resolves params.Timeframe via the configured ScheduleLookup for
// params.Team/params.Season, matching clip_query_enhanced.py's
// _resolve_game_ids. With no schedule lookup configured, or no team given,
// timeframe tokens resolve to no games.
func (e *Extractor) resolveGameIDs(ctx context.Context, params ClipSearchParams) []string {
	if len(params.GameIDs) > 0 {
		return params.GameIDs
	}
	if e.schedule == nil || params.Team == "" {
		return nil
	}
	ids, err := e.schedule.ResolveTimeframe(ctx, params.Timeframe, params.Team, params.Season)
	if err != nil {
		return nil
	}
	return ids
}
