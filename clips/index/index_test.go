package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGameDateKey(t *testing.T) {
	t.Run("long_game_id_truncates_to_first_8_digits", func(t *testing.T) {
		assert.Equal(t, "20250115", gameDateKey("20250115_NHL-WSHvsPIT"))
	})

	t.Run("short_game_id_recovers_default_date", func(t *testing.T) {
		assert.Equal(t, defaultGameDate, gameDateKey("20038"))
	})

	t.Run("empty_game_id_recovers_default_date", func(t *testing.T) {
		assert.Equal(t, defaultGameDate, gameDateKey(""))
	})
}
