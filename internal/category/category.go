// Package category resolves the 4-level product category hierarchy used to
// enrich the consolidated product report.
//
// The hierarchy lives in a remote analytical warehouse and is expensive to
// query, so the resolved set is persisted locally as a single parquet
// artifact and refreshed at most once per calendar day: a same-day artifact
// is always reused, an older (or absent) one triggers a fresh remote query
// that overwrites it.
package category

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"ruptura/internal/table"
)

// Credentials are the four fields the remote analytical service requires.
// They are supplied by the host's credential store; this package never
// persists them.
type Credentials struct {
	S3StagingDir    string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// Complete reports whether all four credential fields are present.
func (c Credentials) Complete() bool {
	return c.S3StagingDir != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.Region != ""
}

// RemoteQueryError reports that the remote category query failed. A product
// report cannot be produced without categories, so this error is fatal to
// the whole run.
type RemoteQueryError struct {
	Err error
}

func (e *RemoteQueryError) Error() string {
	return fmt.Sprintf("remote category query: %v", e.Err)
}

func (e *RemoteQueryError) Unwrap() error { return e.Err }

// Fetcher obtains a fresh category set from the remote service.
type Fetcher interface {
	Fetch(ctx context.Context) (*table.Table, error)
}

// Record is one row of the persisted category artifact.
type Record struct {
	ProductCode int64  `parquet:"prme_cd_produto"`
	Description string `parquet:"descprod"`
	Level1      string `parquet:"nivel1"`
	Level2      string `parquet:"nivel2"`
	Level3      string `parquet:"nivel3"`
	Level4      string `parquet:"nivel4"`
}

// Cache wraps a Fetcher with the daily-staleness policy and the local
// parquet artifact.
type Cache struct {
	Path    string
	Fetcher Fetcher

	// Now is the clock used for the staleness check; tests override it.
	Now func() time.Time
}

// NewCache returns a Cache persisting to path and refreshing via f.
func NewCache(path string, f Fetcher) *Cache {
	return &Cache{Path: path, Fetcher: f, Now: time.Now}
}

// Stale reports whether the artifact must be refreshed: it is absent, or its
// creation date is strictly before today. The artifact is only ever written
// whole on refresh, so its modification time is its creation time.
func (c *Cache) Stale() bool {
	info, err := os.Stat(c.Path)
	if err != nil {
		return true
	}
	now := c.Now()
	y, m, d := info.ModTime().Date()
	created := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	ny, nm, nd := now.Date()
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.Local)
	return created.Before(today)
}

// Categories returns the category set, refreshing the artifact first when it
// is stale. A refreshed artifact is retained even if a later pipeline step
// fails. Remote failures come back as *RemoteQueryError.
func (c *Cache) Categories(ctx context.Context) (*table.Table, error) {
	if !c.Stale() {
		return c.load()
	}

	fetched, err := c.Fetcher.Fetch(ctx)
	if err != nil {
		return nil, &RemoteQueryError{Err: err}
	}
	t := fetched.CastInt64("prme_cd_produto")

	if err := c.persist(t); err != nil {
		return nil, fmt.Errorf("persist category cache: %w", err)
	}
	return t, nil
}

// persist overwrites the artifact with the given category table.
func (c *Cache) persist(t *table.Table) error {
	records := make([]Record, 0, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		r := t.Row(i)
		records = append(records, Record{
			ProductCode: r.Int("prme_cd_produto"),
			Description: r.Str("descprod"),
			Level1:      r.Str("nivel1"),
			Level2:      r.Str("nivel2"),
			Level3:      r.Str("nivel3"),
			Level4:      r.Str("nivel4"),
		})
	}
	return parquet.WriteFile(c.Path, records)
}

// load reads the artifact back into a table.
func (c *Cache) load() (*table.Table, error) {
	records, err := parquet.ReadFile[Record](c.Path)
	if err != nil {
		return nil, fmt.Errorf("load category cache: %w", err)
	}
	return FromRecords(records), nil
}

// FromRecords builds the category table from persisted records.
func FromRecords(records []Record) *table.Table {
	n := len(records)
	codes := make([]any, n)
	descs := make([]any, n)
	levels := [4][]any{}
	for i := range levels {
		levels[i] = make([]any, n)
	}
	for i, r := range records {
		codes[i] = r.ProductCode
		descs[i] = r.Description
		levels[0][i] = r.Level1
		levels[1][i] = r.Level2
		levels[2][i] = r.Level3
		levels[3][i] = r.Level4
	}
	return table.New(
		table.Column{Name: "prme_cd_produto", Kind: table.Int, Bits: 64, Vals: codes},
		table.Column{Name: "descprod", Kind: table.Text, Vals: descs},
		table.Column{Name: "nivel1", Kind: table.Text, Vals: levels[0]},
		table.Column{Name: "nivel2", Kind: table.Text, Vals: levels[1]},
		table.Column{Name: "nivel3", Kind: table.Text, Vals: levels[2]},
		table.Column{Name: "nivel4", Kind: table.Text, Vals: levels[3]},
	)
}
