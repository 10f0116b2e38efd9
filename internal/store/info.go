package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Stats counts the rows of each table.
type Stats struct {
	Resources     int64            `json:"resources"`
	Relationships int64            `json:"relationships"`
	Indexables    int64            `json:"indexables"`
	Contexts      int64            `json:"contexts"`
	ByType        map[string]int64 `json:"by_type"`
}

// Stats returns table counts.
func (s *GormStore) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	st := &Stats{ByType: make(map[string]int64)}

	counts := []struct {
		model any
		dest  *int64
	}{
		{&Resource{}, &st.Resources},
		{&Relationship{}, &st.Relationships},
		{&Indexable{}, &st.Indexables},
		{&Context{}, &st.Contexts},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dest).Error; err != nil {
			return nil, storeErr("failed to count rows", err)
		}
	}

	var rows []struct {
		IIIFType string `gorm:"column:iiif_type"`
		N        int64  `gorm:"column:n"`
	}
	if err := db.Model(&Resource{}).Select("iiif_type, COUNT(*) AS n").Group("iiif_type").Scan(&rows).Error; err != nil {
		return nil, storeErr("failed to count resource types", err)
	}
	for _, r := range rows {
		st.ByType[r.IIIFType] = r.N
	}
	return st, nil
}

// Info describes the on-disk footprint of a data directory.
type Info struct {
	DataDir       string    `json:"data_dir"`
	DatabaseBytes int64     `json:"database_bytes"`
	IndexBytes    int64     `json:"index_bytes"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DiskInfo measures the database file and the text index under dataDir.
func DiskInfo(dataDir, indexPath string) Info {
	info := Info{DataDir: dataDir}
	dbPath := filepath.Join(dataDir, DatabaseFile)
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if fi, err := os.Stat(p); err == nil {
			info.DatabaseBytes += fi.Size()
			if fi.ModTime().After(info.UpdatedAt) {
				info.UpdatedAt = fi.ModTime()
			}
		}
	}
	if indexPath != "" {
		info.IndexBytes = getDirSize(indexPath)
	}
	return info
}

// FormatBytes formats a byte count in binary units.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatTime formats t for display, "never" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05")
}

// getDirSize returns the total size of files under path, or of path itself
// when it is a file. Missing paths count as 0.
func getDirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
