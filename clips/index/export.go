package index

import (
	"context"
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"oms.heartbeat.dev/clips"
)

// clipRow is the flattened, parquet-tagged projection of a ClipRecord used
// for columnar export/re-ingestion (spec §4.K ExportToColumnar).
type clipRow struct {
	ClipID          string  `parquet:"clip_id"`
	SourcePath      string  `parquet:"source_path"`
	StartSeconds    float64 `parquet:"start_seconds"`
	EndSeconds      float64 `parquet:"end_seconds"`
	DurationSeconds float64 `parquet:"duration_seconds"`
	GameID          string  `parquet:"game_id"`
	Period          int     `parquet:"period"`
	Mode            string  `parquet:"mode"`
	PlayerID        string  `parquet:"player_id"`
	TeamCode        string  `parquet:"team_code"`
	OpponentCode    string  `parquet:"opponent_code"`
	EventType       string  `parquet:"event_type"`
	Season          string  `parquet:"season"`
	GameDate        string  `parquet:"game_date"`
	Fingerprint     string  `parquet:"fingerprint"`
	FilePath        string  `parquet:"file_path"`
	ThumbnailPath   string  `parquet:"thumbnail_path"`
	HLSPlaylistPath string  `parquet:"hls_playlist_path"`
	ByteSize        int64   `parquet:"byte_size"`
	ProcessingMs    int64   `parquet:"processing_ms"`
	CreatedAtUnix   int64   `parquet:"created_at_unix"`
	UpdatedAtUnix   int64   `parquet:"updated_at_unix"`
}

func toRow(r *clips.ClipRecord) clipRow {
	return clipRow{
		ClipID:          r.ClipID,
		SourcePath:      r.SourcePath,
		StartSeconds:    r.StartSeconds,
		EndSeconds:      r.EndSeconds,
		DurationSeconds: r.DurationSeconds,
		GameID:          r.GameID,
		Period:          r.Period,
		Mode:            string(r.Mode),
		PlayerID:        r.PlayerID,
		TeamCode:        r.TeamCode,
		OpponentCode:    r.OpponentCode,
		EventType:       r.EventType,
		Season:          r.Season,
		GameDate:        r.GameDate,
		Fingerprint:     r.Fingerprint,
		FilePath:        r.FilePath,
		ThumbnailPath:   r.ThumbnailPath,
		HLSPlaylistPath: r.HLSPlaylistPath,
		ByteSize:        r.ByteSize,
		ProcessingMs:    r.ProcessingMs,
		CreatedAtUnix:   r.CreatedAt.Unix(),
		UpdatedAtUnix:   r.UpdatedAt.Unix(),
	}
}

// ExportToColumnar serialises the full clip table to a parquet file at
// path, for downstream data-lake consumption.
func (idx *Index) ExportToColumnar(ctx context.Context, path string) error {
	records, err := idx.allRecordsUnbounded()
	if err != nil {
		return fmt.Errorf("load clip records: %w", err)
	}

	rows := make([]clipRow, len(records))
	for i, r := range records {
		rows[i] = toRow(r)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create columnar export file: %w", err)
	}
	defer f.Close()

	writer := parquet.NewGenericWriter[clipRow](f)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	return writer.Close()
}
