package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	appLog "eventfeed/internal/log"
	"eventfeed/internal/model"
)

const (
	jsonName = "events.json"
	icsName  = "events.ics"
	metaName = "meta.json"
)

// meta records when the feed was last replaced.
type meta struct {
	PublishedAt time.Time `json:"published_at"`
	Occurrences int       `json:"occurrences"`
}

// Store owns the published feed documents in one directory. Every Publish
// replaces them wholesale; readers never observe a partially written file.
type Store struct {
	dir      string
	loc      *time.Location
	calName  string
	nowStamp func() time.Time
}

// NewStore creates the feed directory if needed.
//
// loc is the wall-clock zone used when reading the JSON feed back. calName
// names the iCalendar rendition.
func NewStore(dir string, loc *time.Location, calName string) (*Store, error) {
	if dir == "" {
		// Development fallback; deployments set feed.dir explicitly.
		dir = "./var/feed"
	}
	if loc == nil {
		loc = time.Local
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, loc: loc, calName: calName, nowStamp: time.Now}, nil
}

func (s *Store) JSONPath() string { return filepath.Join(s.dir, jsonName) }

func (s *Store) ICSPath() string { return filepath.Join(s.dir, icsName) }

func (s *Store) metaPath() string { return filepath.Join(s.dir, metaName) }

// Publish replaces the feed with occs, recording at as the publish time.
func (s *Store) Publish(_ context.Context, occs []model.Occurrence, at time.Time) error {
	body, err := EncodeJSON(occs)
	if err != nil {
		return err
	}
	icsBody := EncodeICS(occs, s.calName, s.nowStamp().UTC())

	// Both documents are staged before either is renamed into place.
	icsTmp, err := stageTemp(s.dir, []byte(icsBody))
	if err != nil {
		return err
	}
	defer os.Remove(icsTmp)
	jsonTmp, err := stageTemp(s.dir, body)
	if err != nil {
		return err
	}
	defer os.Remove(jsonTmp)

	prevICS, err := os.ReadFile(s.ICSPath())
	hadICS := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	// The JSON document goes last; if it cannot be replaced the previous
	// ICS rendition is put back so the pair stays consistent.
	if err := os.Rename(icsTmp, s.ICSPath()); err != nil {
		return err
	}
	if err := os.Rename(jsonTmp, s.JSONPath()); err != nil {
		s.restoreICS(prevICS, hadICS)
		return err
	}

	m := meta{PublishedAt: at, Occurrences: len(occs)}
	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomic(s.dir, s.metaPath(), data); err != nil {
		// The feed itself is in place; only the bookkeeping is stale.
		appLog.Error("feed meta save failed", err, "dir", s.dir)
	}

	appLog.Info("feed published", "path", s.JSONPath(), "occurrences", len(occs))
	return nil
}

// Load reads the currently published occurrences. A missing feed yields an
// empty list.
func (s *Store) Load() ([]model.Occurrence, error) {
	data, err := os.ReadFile(s.JSONPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Occurrence{}, nil
		}
		return nil, err
	}
	return DecodeJSON(data, s.loc)
}

// LastPublished returns when the feed was last replaced, or the zero time if
// it never was. Without meta the JSON file's modification time is used.
func (s *Store) LastPublished() (time.Time, error) {
	data, err := os.ReadFile(s.metaPath())
	if err == nil {
		var m meta
		if jerr := json.Unmarshal(data, &m); jerr == nil && !m.PublishedAt.IsZero() {
			return m.PublishedAt, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, err
	}

	info, err := os.Stat(s.JSONPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (s *Store) restoreICS(prev []byte, existed bool) {
	var err error
	if existed {
		err = writeAtomic(s.dir, s.ICSPath(), prev)
	} else {
		err = os.Remove(s.ICSPath())
	}
	if err != nil {
		appLog.Error("feed ICS rollback failed", err, "path", s.ICSPath())
	}
}

// stageTemp writes data to a synced temp file in dir and returns its name.
// The caller renames or removes it.
func stageTemp(dir string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, ".eventfeed-*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	// Feed documents are public assets.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return tmpName, nil
}

// writeAtomic writes data to a temp file in dir, syncs it and renames it over
// path.
func writeAtomic(dir, path string, data []byte) error {
	tmpName, err := stageTemp(dir, data)
	if err != nil {
		return err
	}
	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)
	return os.Rename(tmpName, path)
}
