package cli

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"oms.heartbeat.dev/clips"
	"oms.heartbeat.dev/clips/extractor"
	"oms.heartbeat.dev/clips/index"
	"oms.heartbeat.dev/ontology/mediator"
)

var clipCmd = &cobra.Command{
	Use:   "clip",
	Short: "Query the clip index and cut new clips from the resolver layer",
}

var (
	clipActorID, clipActorRole, clipPolicy string
	clipPlayers, clipEventTypes, clipGameIDs, clipZones []string
	clipLimit int
	clipPre, clipPost float64
	clipShiftMode bool
	clipOutputDir string
)

func init() {
	clipCmd.AddCommand(clipQueryCmd)
	clipCmd.AddCommand(clipCutCmd)

	clipCmd.PersistentFlags().StringVar(&clipActorID, "actor", "cli", "actor id authorizing this request")
	clipCmd.PersistentFlags().StringVar(&clipActorRole, "role", "admin", "actor role authorizing this request")
	clipCmd.PersistentFlags().StringVar(&clipPolicy, "policy", "default_clip_policy", "named security policy authorizing this operation")
	clipCmd.PersistentFlags().StringSliceVar(&clipPlayers, "player", nil, "player id or name to filter by (repeatable)")
	clipCmd.PersistentFlags().StringSliceVar(&clipEventTypes, "event", nil, "event type to filter by (repeatable)")
	clipCmd.PersistentFlags().StringSliceVar(&clipGameIDs, "game", nil, "game id to filter by (repeatable)")
	clipCmd.PersistentFlags().IntVar(&clipLimit, "limit", 10, "maximum clips to return")

	clipCutCmd.Flags().StringSliceVar(&clipZones, "zone", nil, "zone to filter event-mode clips by (repeatable)")
	clipCutCmd.Flags().Float64Var(&clipPre, "pre-seconds", 3, "seconds of lead-in before each event")
	clipCutCmd.Flags().Float64Var(&clipPost, "post-seconds", 5, "seconds of lead-out after each event")
	clipCutCmd.Flags().BoolVar(&clipShiftMode, "shift-mode", false, "derive segments from shifts instead of events")
	clipCutCmd.Flags().StringVar(&clipOutputDir, "output", "./clips", "directory to write cut clip files into")
}

var clipQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query already-cut clips from the clip index",
	Run: func(cmd *cobra.Command, args []string) {
		c, teardown, err := initCore(cmd.Context())
		if err != nil {
			fatal("clip query", err)
		}
		defer teardown()

		actor := mediator.Actor{ID: clipActorID, Role: clipActorRole}
		filter := index.QueryFilter{
			PlayerIDs:  clipPlayers,
			GameIDs:    clipGameIDs,
			EventTypes: clipEventTypes,
			Limit:      clipLimit,
		}

		records, err := c.Mediator.QueryClips(cmd.Context(), actor, clipPolicy, filter)
		if err != nil {
			fatal("clip query", err)
		}
		for _, r := range records {
			fmt.Printf("%s\tgame=%s\tperiod=%d\t%s-%s\t%s\t%s\n", r.ClipID, r.GameID, r.Period, fmtSeconds(r.StartSeconds), fmtSeconds(r.EndSeconds), r.FilePath, humanize.Bytes(uint64(r.ByteSize)))
		}
		if len(records) == 0 {
			fmt.Println("no clips matched")
		}
	},
}

var clipCutCmd = &cobra.Command{
	Use:   "cut",
	Short: "Derive clip segments from the resolver layer and cut them",
	Run: func(cmd *cobra.Command, args []string) {
		c, teardown, err := initCore(cmd.Context())
		if err != nil {
			fatal("clip cut", err)
		}
		defer teardown()

		if err := os.MkdirAll(clipOutputDir, 0o755); err != nil {
			fatal("clip cut", err)
		}

		params := extractor.DefaultClipSearchParams()
		params.Players = clipPlayers
		params.EventTypes = clipEventTypes
		params.GameIDs = clipGameIDs
		params.Zones = clipZones
		params.Limit = clipLimit
		params.PreSeconds = clipPre
		params.PostSeconds = clipPost
		if clipShiftMode {
			params.Mode = clips.ModeShift
		}

		actor := mediator.Actor{ID: clipActorID, Role: clipActorRole}
		results, err := c.Mediator.CutClips(cmd.Context(), actor, clipPolicy, params, clipOutputDir)
		if err != nil {
			fatal("clip cut", err)
		}

		var failures int
		for _, res := range results {
			switch {
			case res.Error != nil:
				failures++
				fmt.Printf("FAIL\t%v\n", res.Error)
			case res.CacheHit:
				fmt.Printf("CACHED\t%s\t%s\t%s\n", res.Record.ClipID, res.Record.FilePath, humanize.Bytes(uint64(res.Record.ByteSize)))
			default:
				fmt.Printf("CUT\t%s\t%s\t%s (%dms)\n", res.Record.ClipID, res.Record.FilePath, humanize.Bytes(uint64(res.Record.ByteSize)), res.ProcessingMs)
			}
		}
		fmt.Printf("%d cut, %d failed\n", len(results)-failures, failures)
	},
}

func fmtSeconds(s float64) string {
	return fmt.Sprintf("%.1fs", s)
}
