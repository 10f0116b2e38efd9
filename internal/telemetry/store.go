package telemetry

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxZeroResultQueries bounds the zero_result_queries table.
const maxZeroResultQueries = 100

// QueryTypeStat is the daily count of one query type.
type QueryTypeStat struct {
	Date        string `gorm:"primaryKey;size:10"`
	QueryType   string `gorm:"primaryKey;size:16"`
	Count       int64  `gorm:"not null"`
	ZeroResults int64  `gorm:"not null"`
}

// QueryTerm is the all-time count of one query term.
type QueryTerm struct {
	Term     string `gorm:"primaryKey;size:256"`
	Count    int64  `gorm:"not null;index"`
	LastSeen time.Time
}

// ZeroResultQuery is a recent query that found nothing.
type ZeroResultQuery struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Query     string `gorm:"size:1024;not null"`
	Timestamp time.Time
}

// LatencyStat is the daily count of one latency bucket.
type LatencyStat struct {
	Date   string `gorm:"primaryKey;size:10"`
	Bucket string `gorm:"primaryKey;size:8"`
	Count  int64  `gorm:"not null"`
}

func (QueryTypeStat) TableName() string   { return "query_type_stats" }
func (QueryTerm) TableName() string       { return "query_terms" }
func (ZeroResultQuery) TableName() string { return "zero_result_queries" }
func (LatencyStat) TableName() string     { return "query_latency_stats" }

// GormStore keeps query statistics in the store database. The database
// connection is shared and not closed here.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates the telemetry tables when missing.
func NewGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.WithContext(ctx).AutoMigrate(&QueryTypeStat{}, &QueryTerm{}, &ZeroResultQuery{}, &LatencyStat{}); err != nil {
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Save adds the counts of batch to the stored totals.
func (s *GormStore) Save(ctx context.Context, batch *Batch) error {
	if batch == nil || batch.Empty() {
		return nil
	}
	date := batch.Date
	if date == "" {
		date = time.Now().UTC().Format(time.DateOnly)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		types := make([]QueryTypeStat, 0, len(batch.Types))
		for t, n := range batch.Types {
			types = append(types, QueryTypeStat{Date: date, QueryType: string(t), Count: n, ZeroResults: batch.ZeroResults[t]})
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "date"}, {Name: "query_type"}},
			DoUpdates: clause.Assignments(map[string]any{
				"count":        gorm.Expr("query_type_stats.count + excluded.count"),
				"zero_results": gorm.Expr("query_type_stats.zero_results + excluded.zero_results"),
			}),
		}).Create(&types).Error
		if err != nil {
			return fmt.Errorf("save query type counts: %w", err)
		}

		if len(batch.Latency) > 0 {
			latency := make([]LatencyStat, 0, len(batch.Latency))
			for b, n := range batch.Latency {
				latency = append(latency, LatencyStat{Date: date, Bucket: string(b), Count: n})
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "date"}, {Name: "bucket"}},
				DoUpdates: clause.Assignments(map[string]any{"count": gorm.Expr("query_latency_stats.count + excluded.count")}),
			}).Create(&latency).Error
			if err != nil {
				return fmt.Errorf("save latency counts: %w", err)
			}
		}

		if len(batch.Terms) > 0 {
			now := time.Now()
			terms := make([]QueryTerm, 0, len(batch.Terms))
			for term, n := range batch.Terms {
				terms = append(terms, QueryTerm{Term: term, Count: n, LastSeen: now})
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "term"}},
				DoUpdates: clause.Assignments(map[string]any{
					"count":     gorm.Expr("query_terms.count + excluded.count"),
					"last_seen": gorm.Expr("excluded.last_seen"),
				}),
			}).CreateInBatches(&terms, 200).Error
			if err != nil {
				return fmt.Errorf("save query terms: %w", err)
			}
		}

		if len(batch.ZeroQueries) > 0 {
			zero := append([]ZeroResultQuery(nil), batch.ZeroQueries...)
			if err := tx.Create(&zero).Error; err != nil {
				return fmt.Errorf("save zero-result queries: %w", err)
			}
			err := tx.Exec(`DELETE FROM zero_result_queries WHERE id NOT IN (
				SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?)`, maxZeroResultQueries).Error
			if err != nil {
				return fmt.Errorf("trim zero-result queries: %w", err)
			}
		}
		return nil
	})
}

// Report sums the daily counts saved on or after since. Top terms and
// zero-result queries are not dated: the most frequent and the most recent
// are returned, at most limit of each.
func (s *GormStore) Report(ctx context.Context, since time.Time, limit int) (*Snapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	db := s.db.WithContext(ctx)
	from := since.UTC().Format(time.DateOnly)

	snap := &Snapshot{
		TypeCounts: make(map[QueryType]int64),
		Latency:    make(map[LatencyBucket]int64),
		Since:      since,
	}

	var types []struct {
		QueryType   string
		Count       int64
		ZeroResults int64
	}
	err := db.Model(&QueryTypeStat{}).
		Select("query_type, SUM(count) AS count, SUM(zero_results) AS zero_results").
		Where("date >= ?", from).
		Group("query_type").
		Scan(&types).Error
	if err != nil {
		return nil, fmt.Errorf("read query type counts: %w", err)
	}
	for _, t := range types {
		snap.TypeCounts[QueryType(t.QueryType)] = t.Count
		snap.TotalQueries += t.Count
		snap.ZeroResultCount += t.ZeroResults
	}

	var latency []struct {
		Bucket string
		Count  int64
	}
	err = db.Model(&LatencyStat{}).
		Select("bucket, SUM(count) AS count").
		Where("date >= ?", from).
		Group("bucket").
		Scan(&latency).Error
	if err != nil {
		return nil, fmt.Errorf("read latency counts: %w", err)
	}
	for _, l := range latency {
		snap.Latency[LatencyBucket(l.Bucket)] = l.Count
	}

	var terms []QueryTerm
	if err := db.Order("count DESC, term").Limit(limit).Find(&terms).Error; err != nil {
		return nil, fmt.Errorf("read query terms: %w", err)
	}
	for _, t := range terms {
		snap.TopTerms = append(snap.TopTerms, TermCount{Term: t.Term, Count: t.Count})
	}

	var zero []ZeroResultQuery
	if err := db.Order("id DESC").Limit(limit).Find(&zero).Error; err != nil {
		return nil, fmt.Errorf("read zero-result queries: %w", err)
	}
	for _, z := range zero {
		snap.ZeroResultQueries = append(snap.ZeroResultQueries, z.Query)
	}
	return snap, nil
}
