package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSchedule struct {
	gameIDs []string
	err     error
}

func (f *fakeSchedule) ResolveTimeframe(ctx context.Context, timeframe, teamCode, season string) ([]string, error) {
	return f.gameIDs, f.err
}

func TestParseTimecode(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want float64
	}{
		{"frames_30fps", "00:01:00:15", 60.5},
		{"hms", "01:02:03", 3723},
		{"hms_fractional_seconds", "00:00:01.5", 1.5},
		{"zero_frames", "00:00:05:00", 5},
		{"malformed", "garbage", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, parseTimecode(tc.in), 0.001)
		})
	}
}

func TestClampSegment(t *testing.T) {
	t.Run("negative_start_clamps_to_zero", func(t *testing.T) {
		start, end := clampSegment(-5, 10, 0)
		assert.Equal(t, 0.0, start)
		assert.Equal(t, 10.0, end)
	})

	t.Run("unknown_period_duration_leaves_end_alone", func(t *testing.T) {
		start, end := clampSegment(2, 20, 0)
		assert.Equal(t, 2.0, start)
		assert.Equal(t, 20.0, end)
	})

	t.Run("end_clamped_to_period_duration", func(t *testing.T) {
		start, end := clampSegment(2, 50, 30)
		assert.Equal(t, 2.0, start)
		assert.Equal(t, 30.0, end)
	})

	t.Run("start_beyond_period_duration_clamps_to_it", func(t *testing.T) {
		start, end := clampSegment(40, 50, 30)
		assert.Equal(t, 30.0, start)
		assert.Equal(t, 30.1, end)
	})

	t.Run("minimum_span_enforced", func(t *testing.T) {
		start, end := clampSegment(5, 5.02, 0)
		assert.Equal(t, 5.0, start)
		assert.InDelta(t, 5.1, end, 0.001)
	})
}

func TestNormalizeZone(t *testing.T) {
	cases := []struct{ in, want string }{
		{"offensive", "OZ"},
		{"O-Zone", "OZ"},
		{"oZone", "OZ"},
		{"offensive zone", "OZ"},
		{"neutral", "NZ"},
		{"Neutral Zone", "NZ"},
		{"n-zone", "NZ"},
		{"defensive", "DZ"},
		{"d-zone", "DZ"},
		{"defensive zone", "DZ"},
		{"  oz  ", "OZ"},
		{"unknown", "UNKNOWN"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeZone(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeEventType(t *testing.T) {
	t.Run("known_term_expands", func(t *testing.T) {
		got := normalizeEventType("goal")
		assert.Equal(t, []string{"GOAL"}, got)
	})

	t.Run("known_term_case_insensitive", func(t *testing.T) {
		got := normalizeEventType("ZONE_ENTRY")
		assert.Contains(t, got, "CONTROLLED ENTRY INTO OZ")
	})

	t.Run("multi_action_term", func(t *testing.T) {
		got := normalizeEventType("shot")
		assert.Len(t, got, 5)
	})

	t.Run("unknown_term_passes_through_uppercased", func(t *testing.T) {
		got := normalizeEventType("something_custom")
		assert.Equal(t, []string{"SOMETHING_CUSTOM"}, got)
	})
}

func TestResolveGameIDs(t *testing.T) {
	t.Run("explicit_game_ids_take_priority", func(t *testing.T) {
		e := New(nil, nil).WithScheduleLookup(&fakeSchedule{gameIDs: []string{"99999"}})
		got := e.resolveGameIDs(context.Background(), ClipSearchParams{GameIDs: []string{"20038"}, Team: "WSH"})
		assert.Equal(t, []string{"20038"}, got)
	})

	t.Run("no_schedule_lookup_configured_returns_nil", func(t *testing.T) {
		e := New(nil, nil)
		got := e.resolveGameIDs(context.Background(), ClipSearchParams{Timeframe: "last_game", Team: "WSH"})
		assert.Nil(t, got)
	})

	t.Run("no_team_given_returns_nil", func(t *testing.T) {
		e := New(nil, nil).WithScheduleLookup(&fakeSchedule{gameIDs: []string{"20038"}})
		got := e.resolveGameIDs(context.Background(), ClipSearchParams{Timeframe: "last_game"})
		assert.Nil(t, got)
	})

	t.Run("timeframe_resolved_via_schedule_lookup", func(t *testing.T) {
		e := New(nil, nil).WithScheduleLookup(&fakeSchedule{gameIDs: []string{"20038", "20037", "20036"}})
		got := e.resolveGameIDs(context.Background(), ClipSearchParams{Timeframe: "last_3_games", Team: "WSH", Season: "20252026"})
		assert.Equal(t, []string{"20038", "20037", "20036"}, got)
	})

	t.Run("schedule_lookup_error_returns_nil", func(t *testing.T) {
		e := New(nil, nil).WithScheduleLookup(&fakeSchedule{err: assert.AnError})
		got := e.resolveGameIDs(context.Background(), ClipSearchParams{Timeframe: "last_game", Team: "WSH"})
		assert.Nil(t, got)
	})
}
