package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"expanderd/internal/expansion"
)

// JSONStore keeps all data in one JSON document on disk. Every call reads
// the file, so edits made by another process are picked up on the next
// load.
type JSONStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

var _ Store = (*JSONStore)(nil)

// OpenJSON opens the data file at path, creating it with empty data when it
// does not exist. A file that cannot be parsed is renamed aside and replaced
// with empty data.
func OpenJSON(path string) (*JSONStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: data file path is empty", ErrInvalid)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	s := &JSONStore{
		path:   path,
		logger: slog.Default().With("component", "store_json"),
	}

	_, err := s.read()
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		if err := s.write(NewDocument()); err != nil {
			return nil, err
		}
	case errors.Is(err, ErrSchema):
		backup := fmt.Sprintf("%s.corrupt-%s", path, time.Now().Format("20060102-150405"))
		if rerr := os.Rename(path, backup); rerr != nil {
			return nil, fmt.Errorf("move unreadable data file aside: %w", rerr)
		}
		s.logger.Warn("data file unreadable, starting with empty data", "error", err, "backup", backup)
		if err := s.write(NewDocument()); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return s, nil
}

// Path returns the data file location.
func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) read() (*Document, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := DecodeDocument(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if p, dup := doc.DuplicatePrefix(); dup {
		s.logger.Warn("data file has duplicate prefixes", "prefix", p)
	}
	return doc, nil
}

// write replaces the data file atomically.
func (s *JSONStore) write(doc *Document) error {
	var buf bytes.Buffer
	if err := doc.Encode(&buf); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".data-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}

func (s *JSONStore) view(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// update loads the document, applies fn and writes the result if fn
// succeeds.
func (s *JSONStore) update(ctx context.Context, fn func(*Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.write(doc)
}

// LoadExpansions implements engine.ConfigSource.
func (s *JSONStore) LoadExpansions(ctx context.Context) ([]expansion.Expansion, error) {
	doc, err := s.view(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Expansions(), nil
}

// LoadWhitelist implements engine.ConfigSource.
func (s *JSONStore) LoadWhitelist(ctx context.Context) (expansion.WhitelistConfig, error) {
	doc, err := s.view(ctx)
	if err != nil {
		return expansion.WhitelistConfig{}, err
	}
	return doc.Settings.Whitelist(), nil
}

func (s *JSONStore) Groups(ctx context.Context) ([]expansion.Group, error) {
	doc, err := s.view(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Groups, nil
}

func (s *JSONStore) AddGroup(ctx context.Context, name string) (id string, err error) {
	err = s.update(ctx, func(d *Document) error {
		id, err = d.addGroup(name)
		return err
	})
	return id, err
}

func (s *JSONStore) RenameGroup(ctx context.Context, id, name string) error {
	return s.update(ctx, func(d *Document) error { return d.renameGroup(id, name) })
}

func (s *JSONStore) DeleteGroup(ctx context.Context, id string) error {
	return s.update(ctx, func(d *Document) error { return d.deleteGroup(id) })
}

func (s *JSONStore) AddExpansion(ctx context.Context, groupID string, in ExpansionInput) (id string, err error) {
	err = s.update(ctx, func(d *Document) error {
		id, err = d.addExpansion(groupID, in)
		return err
	})
	return id, err
}

func (s *JSONStore) UpdateExpansion(ctx context.Context, id string, in ExpansionInput) error {
	return s.update(ctx, func(d *Document) error { return d.updateExpansion(id, in) })
}

func (s *JSONStore) DeleteExpansion(ctx context.Context, id string) error {
	return s.update(ctx, func(d *Document) error { return d.deleteExpansion(id) })
}

func (s *JSONStore) IsPrefixUnique(ctx context.Context, prefix, excludeID string) (bool, error) {
	doc, err := s.view(ctx)
	if err != nil {
		return false, err
	}
	return doc.prefixUnique(prefix, excludeID), nil
}

func (s *JSONStore) Settings(ctx context.Context) (expansion.Settings, error) {
	doc, err := s.view(ctx)
	if err != nil {
		return expansion.Settings{}, err
	}
	return doc.Settings, nil
}

func (s *JSONStore) UpdateSettings(ctx context.Context, settings expansion.Settings) error {
	settings, err := validateSettings(settings)
	if err != nil {
		return err
	}
	return s.update(ctx, func(d *Document) error {
		d.Settings = settings
		return nil
	})
}

func (s *JSONStore) Export(ctx context.Context, w io.Writer) error {
	doc, err := s.view(ctx)
	if err != nil {
		return err
	}
	return doc.Encode(w)
}

func (s *JSONStore) Import(ctx context.Context, r io.Reader, merge bool) error {
	src, err := DecodeDocument(r)
	if err != nil {
		return err
	}
	return s.update(ctx, func(d *Document) error {
		out, err := d.importInto(src, merge)
		if err != nil {
			return err
		}
		*d = *out
		return nil
	})
}

// Close is a no-op; the file is not held open.
func (s *JSONStore) Close() error { return nil }
