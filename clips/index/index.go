// Package index implements the Clip Index (spec §4.K): an embedded bbolt
// store keyed by clip identifier, with a secondary index on fingerprint and
// additional membership indexes on player, game, event, team, date, and
// (game, period). The fingerprint index maps each fingerprint to the list
// of clip ids written with it; uniqueness is not enforced, and
// FindByFingerprint returns the first id listed. Writes are serialised through one mutex;
// reads run concurrently against bbolt's own MVCC snapshots.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"oms.heartbeat.dev/clips"
	boltdb "oms.heartbeat.dev/db/bolt"
	"oms.heartbeat.dev/errs"
)

const (
	bucketClips       = "clips"
	bucketFingerprint = "idx_fingerprint"
	bucketPlayer      = "idx_player"
	bucketGame        = "idx_game"
	bucketEvent       = "idx_event"
	bucketTeam        = "idx_team"
	bucketDate        = "idx_date"
	bucketGamePeriod  = "idx_game_period"

	maxWriteAttempts = 3
)

// Index is the embedded clip store. It serialises writes through writeMu
// while allowing bbolt's own concurrent read transactions to proceed
// unblocked (spec §5).
type Index struct {
	db      *boltdb.DB
	writeMu sync.Mutex

	statsMu        sync.Mutex
	cacheHits      int64
	cacheLookups   int64
}

// Open opens (creating if absent) the bbolt file at path and ensures every
// bucket this package uses exists.
func Open(path string) (*Index, error) {
	db, err := boltdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open clip index: %w", err)
	}
	idx := &Index{db: db}
	for _, b := range []string{bucketClips, bucketFingerprint, bucketPlayer, bucketGame, bucketEvent, bucketTeam, bucketDate, bucketGamePeriod} {
		if err := db.CreateBucket(b); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (idx *Index) Close() error {
	return idx.db.Close()
}

// InsertClip upserts record by clip identifier (bumping updated_at on
// conflict), making up to 3 attempts in total on any write error and
// sleeping 50ms*attempt plus up to 10ms of jitter after each failed attempt
// (spec §4.J/§4.K/§5).
func (idx *Index) InsertClip(ctx context.Context, record *clips.ClipRecord) error {
	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		if err := idx.insertOne(record); err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt)*50*time.Millisecond + time.Duration(rand.Intn(10))*time.Millisecond)
			continue
		}
		return nil
	}
	return errs.Conflict(fmt.Sprintf("clip index write failed after %d attempts: %v", maxWriteAttempts, lastErr))
}

// BatchInsertClips inserts every record under a single lock acquisition.
func (idx *Index) BatchInsertClips(ctx context.Context, records []*clips.ClipRecord) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	return idx.db.Update(func(tx *bolt.Tx) error {
		for _, r := range records {
			if err := idx.putRecordTx(tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (idx *Index) insertOne(record *clips.ClipRecord) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	return idx.db.Update(func(tx *bolt.Tx) error {
		return idx.putRecordTx(tx, record)
	})
}

func (idx *Index) putRecordTx(tx *bolt.Tx, record *clips.ClipRecord) error {
	b := tx.Bucket([]byte(bucketClips))
	if b == nil {
		return fmt.Errorf("bucket not found: %s", bucketClips)
	}

	now := time.Now().UTC()
	if existing := b.Get([]byte(record.ClipID)); existing != nil {
		var prev clips.ClipRecord
		if err := json.Unmarshal(existing, &prev); err == nil {
			record.CreatedAt = prev.CreatedAt
		}
	} else {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal clip record: %w", err)
	}
	if err := b.Put([]byte(record.ClipID), data); err != nil {
		return err
	}

	if err := boltdb.IndexEntry(tx, bucketFingerprint, record.Fingerprint, record.ClipID); err != nil {
		return err
	}
	if record.PlayerID != "" {
		if err := boltdb.IndexEntry(tx, bucketPlayer, clips.NormalizeID(record.PlayerID), record.ClipID); err != nil {
			return err
		}
	}
	if record.GameID != "" {
		if err := boltdb.IndexEntry(tx, bucketGame, record.GameID, record.ClipID); err != nil {
			return err
		}
		if err := boltdb.IndexEntry(tx, bucketGamePeriod, fmt.Sprintf("%s:%d", record.GameID, record.Period), record.ClipID); err != nil {
			return err
		}
	}
	if record.EventType != "" {
		if err := boltdb.IndexEntry(tx, bucketEvent, record.EventType, record.ClipID); err != nil {
			return err
		}
	}
	if record.TeamCode != "" {
		if err := boltdb.IndexEntry(tx, bucketTeam, record.TeamCode, record.ClipID); err != nil {
			return err
		}
	}
	if err := boltdb.IndexEntry(tx, bucketDate, gameDateKey(record.GameID), record.ClipID); err != nil {
		return err
	}
	return nil
}

// defaultGameDate is the recovered date for a game id too short to carry
// one, matching clip_index_db.py's game_date fallback.
const defaultGameDate = "20250101"

// gameDateKey derives game_date = game_id[0:8] per the legacy-migration
// default (spec §4.K), reused here so the date index stays populated for
// freshly-cut clips too. Game ids too short to carry a date recover to
// defaultGameDate rather than dropping out of the date index.
func gameDateKey(gameID string) string {
	if len(gameID) >= 8 {
		return gameID[:8]
	}
	return defaultGameDate
}

// FindByClipId returns the record for id, or nil if absent.
func (idx *Index) FindByClipId(ctx context.Context, id string) (*clips.ClipRecord, error) {
	var record *clips.ClipRecord
	err := idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketClips))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return nil
		}
		record = &clips.ClipRecord{}
		return json.Unmarshal(raw, record)
	})
	return record, err
}

// FindByFingerprint returns the first record whose fingerprint matches
// hash, or nil if none.
func (idx *Index) FindByFingerprint(ctx context.Context, hash string) (*clips.ClipRecord, error) {
	var record *clips.ClipRecord
	err := idx.db.View(func(tx *bolt.Tx) error {
		ids, err := boltdb.IndexLookup(tx, bucketFingerprint, hash)
		if err != nil || len(ids) == 0 {
			return err
		}
		b := tx.Bucket([]byte(bucketClips))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(ids[0]))
		if raw == nil {
			return nil
		}
		record = &clips.ClipRecord{}
		return json.Unmarshal(raw, record)
	})
	return record, err
}

// QueryFilter restricts QueryClips to the conjunction of the supplied,
// non-empty fields (spec §4.K contract: {playerIds?, gameIds?, eventTypes?,
// teamCodes?}).
type QueryFilter struct {
	PlayerIDs  []string
	GameIDs    []string
	EventTypes []string
	TeamCodes  []string
	Limit      int
}

// QueryClips returns records satisfying every supplied filter
// conjunctively, ordered by created_at descending. Records with equal
// created_at are not ordered by insertion: without filters they keep
// clip-id key order, and with filters their relative order is not defined.
func (idx *Index) QueryClips(ctx context.Context, filter QueryFilter) ([]*clips.ClipRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var candidateSets [][]string
	err := idx.db.View(func(tx *bolt.Tx) error {
		if len(filter.PlayerIDs) > 0 {
			ids, err := unionLookup(tx, bucketPlayer, filter.PlayerIDs)
			if err != nil {
				return err
			}
			candidateSets = append(candidateSets, ids)
		}
		if len(filter.GameIDs) > 0 {
			ids, err := unionLookup(tx, bucketGame, filter.GameIDs)
			if err != nil {
				return err
			}
			candidateSets = append(candidateSets, ids)
		}
		if len(filter.EventTypes) > 0 {
			ids, err := unionLookup(tx, bucketEvent, filter.EventTypes)
			if err != nil {
				return err
			}
			candidateSets = append(candidateSets, ids)
		}
		if len(filter.TeamCodes) > 0 {
			ids, err := unionLookup(tx, bucketTeam, filter.TeamCodes)
			if err != nil {
				return err
			}
			candidateSets = append(candidateSets, ids)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var ids []string
	if len(candidateSets) == 0 {
		all, err := idx.allClipIDs()
		if err != nil {
			return nil, err
		}
		ids = all
	} else {
		ids = intersect(candidateSets)
	}

	records, err := idx.loadRecords(ids)
	if err != nil {
		return nil, err
	}
	sortByCreatedAtDesc(records)
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// GetAllClips returns up to limit records (default 1000).
func (idx *Index) GetAllClips(ctx context.Context, limit int) ([]*clips.ClipRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	ids, err := idx.allClipIDs()
	if err != nil {
		return nil, err
	}
	records, err := idx.loadRecords(ids)
	if err != nil {
		return nil, err
	}
	sortByCreatedAtDesc(records)
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Stats summarizes the index contents (spec §4.K GetStats).
type Stats struct {
	TotalClips           int
	TotalSizeBytes        int64
	TotalDurationSeconds  float64
	UniquePlayers         int
	UniqueGames           int
	CacheHits             int64
	CacheHitRate          float64
}

func (idx *Index) GetStats(ctx context.Context) (Stats, error) {
	records, err := idx.allRecordsUnbounded()
	if err != nil {
		return Stats{}, err
	}

	players := make(map[string]bool)
	games := make(map[string]bool)
	stats := Stats{}
	for _, r := range records {
		stats.TotalClips++
		stats.TotalSizeBytes += r.ByteSize
		stats.TotalDurationSeconds += r.DurationSeconds
		if r.PlayerID != "" {
			players[clips.NormalizeID(r.PlayerID)] = true
		}
		if r.GameID != "" {
			games[r.GameID] = true
		}
	}
	stats.UniquePlayers = len(players)
	stats.UniqueGames = len(games)

	idx.statsMu.Lock()
	stats.CacheHits = idx.cacheHits
	if idx.cacheLookups > 0 {
		stats.CacheHitRate = float64(idx.cacheHits) / float64(idx.cacheLookups)
	}
	idx.statsMu.Unlock()

	return stats, nil
}

// RecordCacheLookup tracks a cutter-side fingerprint lookup outcome so
// GetStats can report cacheHits/cacheHitRate.
func (idx *Index) RecordCacheLookup(hit bool) {
	idx.statsMu.Lock()
	defer idx.statsMu.Unlock()
	idx.cacheLookups++
	if hit {
		idx.cacheHits++
	}
}

func (idx *Index) allClipIDs() ([]string, error) {
	var ids []string
	err := idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketClips))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (idx *Index) allRecordsUnbounded() ([]*clips.ClipRecord, error) {
	ids, err := idx.allClipIDs()
	if err != nil {
		return nil, err
	}
	return idx.loadRecords(ids)
}

func (idx *Index) loadRecords(ids []string) ([]*clips.ClipRecord, error) {
	var records []*clips.ClipRecord
	err := idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketClips))
		if b == nil {
			return nil
		}
		for _, id := range ids {
			raw := b.Get([]byte(id))
			if raw == nil {
				continue
			}
			var r clips.ClipRecord
			if err := json.Unmarshal(raw, &r); err != nil {
				return err
			}
			records = append(records, &r)
		}
		return nil
	})
	return records, err
}

func unionLookup(tx *bolt.Tx, bucket string, keys []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, k := range keys {
		ids, err := boltdb.IndexLookup(tx, bucket, clips.NormalizeID(k))
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func intersect(sets [][]string) []string {
	if len(sets) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, set := range sets {
		unique := make(map[string]bool)
		for _, id := range set {
			unique[id] = true
		}
		for id := range unique {
			counts[id]++
		}
	}
	var out []string
	for id, c := range counts {
		if c == len(sets) {
			out = append(out, id)
		}
	}
	return out
}

func sortByCreatedAtDesc(records []*clips.ClipRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

// legacyJSONRecord mirrors the fields a legacy JSON clip index stores,
// keyed by fingerprint.
type legacyJSONRecord struct {
	ClipID        string  `json:"clip_id"`
	SourcePath    string  `json:"source_path"`
	Start         float64 `json:"start"`
	End           float64 `json:"end"`
	GameID        string  `json:"game_id"`
	GameDate      string  `json:"game_date"`
	Season        string  `json:"season"`
	Period        int     `json:"period"`
	PlayerID      string  `json:"player_id"`
	TeamCode      string  `json:"team_code"`
	EventType     string  `json:"event_type"`
	FilePath      string  `json:"file_path"`
	ThumbnailPath string  `json:"thumbnail_path"`
	ByteSize      int64   `json:"byte_size"`
}

const defaultMigrationSeason = "2025-2026"

// MigrateFromJSON is a one-shot migration of a legacy fingerprint-keyed
// JSON index (spec §4.K): deserialise, back-fill missing game_date/season
// defaults, insert via the batch path, then rename the source file with a
// .backup suffix.
func (idx *Index) MigrateFromJSON(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errs.InvalidRequest(fmt.Sprintf("read legacy index: %v", err))
	}

	var legacy map[string]legacyJSONRecord
	if err := json.Unmarshal(data, &legacy); err != nil {
		return 0, errs.InvalidRequest(fmt.Sprintf("parse legacy index: %v", err))
	}

	records := make([]*clips.ClipRecord, 0, len(legacy))
	for fingerprint, lr := range legacy {
		gameDate := lr.GameDate
		if gameDate == "" {
			gameDate = gameDateKey(lr.GameID)
		}
		season := lr.Season
		if season == "" {
			season = defaultMigrationSeason
		}
		now := time.Now().UTC()
		records = append(records, &clips.ClipRecord{
			ClipSegment: clips.ClipSegment{
				ClipID:          lr.ClipID,
				SourcePath:      lr.SourcePath,
				StartSeconds:    lr.Start,
				EndSeconds:      lr.End,
				DurationSeconds: lr.End - lr.Start,
				GameID:          lr.GameID,
				Period:          lr.Period,
				PlayerID:        lr.PlayerID,
				TeamCode:        lr.TeamCode,
				EventType:       lr.EventType,
				Season:          season,
				GameDate:        gameDate,
			},
			Fingerprint:   fingerprint,
			FilePath:      lr.FilePath,
			ThumbnailPath: lr.ThumbnailPath,
			ByteSize:      lr.ByteSize,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if err := idx.BatchInsertClips(ctx, records); err != nil {
		return 0, err
	}

	if err := os.Rename(path, path+".backup"); err != nil {
		return len(records), fmt.Errorf("migrated %d records but failed to rename source: %w", len(records), err)
	}
	return len(records), nil
}
