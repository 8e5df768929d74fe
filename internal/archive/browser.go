// Package archive resolves radar composite files from a time-indexed
// directory archive. Paths follow a configurable template whose
// directory and filename components may contain strftime-style tokens
// (%Y, %m, %d, %H, %M, ...) substituted from the target timestamp.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/meteoworks/radarbias/internal/domain"
)

// Template describes the naming convention of a radar archive.
type Template struct {
	// RootPath is the archive root directory.
	RootPath string
	// PathFmt is a '/'-separated subdirectory format. Segments starting
	// with '%' are strftime-formatted from the target timestamp; other
	// segments pass through as literals. Empty means files sit directly
	// under RootPath.
	PathFmt string
	// FnPattern is the filename pattern without extension. It may contain
	// strftime tokens and '?' wildcards.
	FnPattern string
	// FnExt is the filename extension without the leading dot.
	FnExt string
	// StepMinutes is the time step between consecutive archive files.
	StepMinutes int
}

// Listing is the result of an archive query. Paths and Timestamps have
// equal length and are ordered ascending by time; an empty path marks a
// timestamp for which no file was found.
type Listing struct {
	Paths      []string
	Timestamps []time.Time
}

// Browser lists archived radar composites matching given timestamps.
type Browser struct {
	tmpl     Template
	pathSegs []pathSegment
	fnFmt    *strftime.Strftime
}

type pathSegment struct {
	literal string
	format  *strftime.Strftime
}

// NewBrowser compiles the template's strftime patterns. Returns an
// error wrapping domain.ErrConfiguration for an unusable template.
func NewBrowser(tmpl Template) (*Browser, error) {
	if tmpl.StepMinutes <= 0 {
		return nil, fmt.Errorf("%w: archive step must be positive, got %d", domain.ErrConfiguration, tmpl.StepMinutes)
	}
	if tmpl.RootPath == "" {
		return nil, fmt.Errorf("%w: archive root path is empty", domain.ErrConfiguration)
	}

	var segs []pathSegment
	if tmpl.PathFmt != "" {
		for _, seg := range strings.Split(tmpl.PathFmt, "/") {
			if strings.HasPrefix(seg, "%") {
				f, err := strftime.New(seg)
				if err != nil {
					return nil, fmt.Errorf("%w: bad path format segment %q: %v", domain.ErrConfiguration, seg, err)
				}
				segs = append(segs, pathSegment{format: f})
			} else {
				segs = append(segs, pathSegment{literal: seg})
			}
		}
	}

	fnFmt, err := strftime.New(tmpl.FnPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: bad filename pattern %q: %v", domain.ErrConfiguration, tmpl.FnPattern, err)
	}

	return &Browser{tmpl: tmpl, pathSegs: segs, fnFmt: fnFmt}, nil
}

// ListFiles resolves the archive file for the given timestamp and, when
// numPrev > 0, for the numPrev preceding step timestamps. The listing
// is ordered ascending by time regardless of the backward search.
// Returns domain.ErrArchiveUnavailable only when no file was found for
// any requested timestamp.
func (b *Browser) ListFiles(date time.Time, numPrev int) (Listing, error) {
	step := time.Duration(b.tmpl.StepMinutes) * time.Minute

	n := numPrev + 1
	paths := make([]string, n)
	timestamps := make([]time.Time, n)

	found := false
	for i := 0; i < n; i++ {
		cur := date.UTC().Add(-time.Duration(i) * step)
		// fill back-to-front so the result is ascending
		timestamps[n-1-i] = cur
		if p := b.findMatching(cur); p != "" {
			paths[n-1-i] = p
			found = true
		}
	}

	if !found {
		return Listing{}, fmt.Errorf("%w: %s", domain.ErrArchiveUnavailable, b.tmpl.RootPath)
	}
	return Listing{Paths: paths, Timestamps: timestamps}, nil
}

// PathFor formats the archive path of a timestamp without touching the
// filesystem, for writers populating an archive. The filename pattern
// must not contain wildcards.
func (b *Browser) PathFor(date time.Time) (string, error) {
	fn := b.fnFmt.FormatString(date.UTC()) + "." + b.tmpl.FnExt
	if strings.Contains(fn, "?") {
		return "", fmt.Errorf("%w: wildcard pattern %q cannot name a file to write", domain.ErrConfiguration, b.tmpl.FnPattern)
	}
	return filepath.Join(b.dirFor(date.UTC()), fn), nil
}

// findMatching returns the path of the archive file for the timestamp,
// or "" when the directory or file does not exist.
func (b *Browser) findMatching(date time.Time) string {
	dir := b.dirFor(date)
	if _, err := os.Stat(dir); err != nil {
		return ""
	}

	fn := b.fnFmt.FormatString(date) + "." + b.tmpl.FnExt

	if strings.Contains(fn, "?") {
		// Wildcard pattern: pick the first directory entry that matches.
		// Precedence among multiple matches is directory listing order.
		entries, err := os.ReadDir(dir)
		if err != nil {
			return ""
		}
		for _, e := range entries {
			ok, err := filepath.Match(fn, e.Name())
			if err == nil && ok {
				fn = e.Name()
				break
			}
		}
	}

	full := filepath.Join(dir, fn)
	if _, err := os.Stat(full); err != nil {
		return ""
	}
	return full
}

func (b *Browser) dirFor(date time.Time) string {
	parts := []string{b.tmpl.RootPath}
	for _, seg := range b.pathSegs {
		if seg.format != nil {
			parts = append(parts, seg.format.FormatString(date))
		} else {
			parts = append(parts, seg.literal)
		}
	}
	return filepath.Join(parts...)
}
