// Package pager opens a SQLite file, validates its 100-byte header, and
// serves individual pages by number.
package pager

import (
	"context"
	"encoding/binary"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ndyer/sqlitekit/internal/dberr"
)

const (
	headerSize    = 100
	magicPrefix   = "SQLite format 3\x00"
	pageSizeField = 16 // byte offset of the big-endian uint16 page size field
)

// Config is built up by Options and controls pager behavior that has no
// effect on decode correctness.
type Config struct {
	PageCacheSize int
}

// Option configures a Pager at Open time.
type Option func(*Config)

// WithPageCacheSize sets how many raw pages the pager keeps resident
// in its read-only LRU cache. A size of 0 disables caching entirely,
// since a database open for a single one-shot query gains nothing from
// it and repeated table/index scans are the case it is meant to help.
func WithPageCacheSize(n int) Option {
	return func(c *Config) { c.PageCacheSize = n }
}

func defaultConfig() *Config {
	return &Config{PageCacheSize: 100}
}

// Pager owns the open file handle and the page geometry read from its
// header. It is read-only, so cached pages never need invalidation.
type Pager struct {
	file     *os.File
	pageSize int
	cache    *lru.Cache[uint32, []byte]
}

// Open validates the header and returns a ready Pager. It fails with
// NotADatabase if the magic string doesn't match, and with Corrupt if the
// declared page size isn't a power of two in [512, 65536].
func Open(path string, opts ...Option) (*Pager, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, dberr.IO("pager.Open", err)
	}

	header := make([]byte, headerSize)
	if _, err := file.ReadAt(header, 0); err != nil {
		file.Close()
		return nil, dberr.IO("pager.Open", err)
	}

	if string(header[:16]) != magicPrefix {
		file.Close()
		return nil, dberr.NotADatabase("pager.Open", "file does not start with the SQLite header string")
	}

	rawPageSize := binary.BigEndian.Uint16(header[pageSizeField : pageSizeField+2])
	pageSize := int(rawPageSize)
	if rawPageSize == 1 {
		pageSize = 65536
	}
	if pageSize < 512 || pageSize > 65536 || pageSize&(pageSize-1) != 0 {
		file.Close()
		return nil, dberr.Corrupt("pager.Open", "page size %d is not a power of two in [512, 65536]", pageSize)
	}

	var cache *lru.Cache[uint32, []byte]
	if cfg.PageCacheSize > 0 {
		cache, err = lru.New[uint32, []byte](cfg.PageCacheSize)
		if err != nil {
			file.Close()
			return nil, dberr.IO("pager.Open", err)
		}
	}

	return &Pager{file: file, pageSize: pageSize, cache: cache}, nil
}

// PageSize returns the database's fixed page size in bytes.
func (p *Pager) PageSize() int { return p.pageSize }

// ReadPage returns the raw bytes of 1-indexed page n, serving from the
// LRU cache when present. Callers must treat the returned slice as
// read-only, since a cache hit returns the same backing array to every
// caller.
func (p *Pager) ReadPage(ctx context.Context, n uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, dberr.IO("pager.ReadPage", err)
	}
	if n == 0 {
		return nil, dberr.Corrupt("pager.ReadPage", "page numbers are 1-indexed, got 0")
	}

	if p.cache != nil {
		if buf, ok := p.cache.Get(n); ok {
			return buf, nil
		}
	}

	offset := int64(n-1) * int64(p.pageSize)
	buf := make([]byte, p.pageSize)
	read, err := p.file.ReadAt(buf, offset)
	if err != nil {
		return nil, dberr.IO("pager.ReadPage", err)
	}
	if read != p.pageSize {
		return nil, dberr.Corrupt("pager.ReadPage", "page %d: read %d of %d bytes", n, read, p.pageSize)
	}

	if p.cache != nil {
		p.cache.Add(n, buf)
	}
	return buf, nil
}

// ReadFirstPageBody returns page 1's bytes with its 100-byte database
// header still attached, since the B-tree page header for page 1 begins
// at offset 100 rather than offset 0.
func (p *Pager) ReadFirstPageBody(ctx context.Context) ([]byte, error) {
	return p.ReadPage(ctx, 1)
}

// Close closes the underlying file.
func (p *Pager) Close() error {
	if err := p.file.Close(); err != nil {
		return dberr.IO("pager.Close", err)
	}
	return nil
}
