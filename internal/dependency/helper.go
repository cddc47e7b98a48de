package dependency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	metadataSuffix = ".metadata.json"
	unpackedSuffix = ".unpacked"
)

// Helper gives a test access to its dependencies and reports which
// versions it used.
type Helper interface {
	// LocalPath returns the path of the named dependency, fetching it if needed.
	// Unpacked dependencies resolve to a directory.
	LocalPath(ctx context.Context, name string) (string, error)
	// VersionsUsed maps every dependency resolved so far to its version.
	VersionsUsed() map[string]string
}

// metadata is written next to every stored version.
type metadata struct {
	Source    string    `json:"source"`
	Version   string    `json:"version"`
	FetchedAt time.Time `json:"fetched_at"`
}

// FromSourceHelper stores each dependency at <dir>/<name>/<version>, where
// the version is the SHA-256 of the fetched bytes. Without a required
// version the most recently fetched one is reused.
type FromSourceHelper struct {
	dir      string
	sources  map[string]Source
	required map[string]string

	mu   sync.Mutex
	used map[string]string
}

// NewFromSourceHelper creates a helper rooted at dir. required pins
// dependency names to versions that must already be stored.
func NewFromSourceHelper(dir string, sources map[string]Source, required map[string]string) *FromSourceHelper {
	return &FromSourceHelper{
		dir:      dir,
		sources:  sources,
		required: required,
		used:     make(map[string]string),
	}
}

func (h *FromSourceHelper) LocalPath(ctx context.Context, name string) (string, error) {
	src, ok := h.sources[name]
	if !ok {
		return "", fmt.Errorf("unknown dependency %q", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	version, err := h.resolveVersion(ctx, name, src)
	if err != nil {
		return "", err
	}
	path := h.versionPath(name, version)
	if u := src.Unpacker(); u != nil {
		path, err = h.ensureUnpacked(name, path, u)
		if err != nil {
			return "", err
		}
	}
	h.used[name] = version
	return path, nil
}

func (h *FromSourceHelper) VersionsUsed() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.used)
}

func (h *FromSourceHelper) versionPath(name, version string) string {
	return filepath.Join(h.dir, name, version)
}

func (h *FromSourceHelper) resolveVersion(ctx context.Context, name string, src Source) (string, error) {
	if v, ok := h.required[name]; ok {
		if _, err := os.Stat(h.versionPath(name, v)); err != nil {
			return "", fmt.Errorf("required version %s of dependency %q is not stored under %s: %w", v, name, h.dir, err)
		}
		return v, nil
	}
	if v, ok := h.used[name]; ok {
		return v, nil
	}
	latest, err := h.latestStored(name)
	if err != nil {
		return "", err
	}
	if latest != "" {
		slog.Debug("reusing stored dependency", "name", name, "version", latest)
		return latest, nil
	}
	return h.fetch(ctx, name, src)
}

// latestStored returns the most recently fetched version of name, or "".
func (h *FromSourceHelper) latestStored(name string) (string, error) {
	entries, err := os.ReadDir(filepath.Join(h.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to list stored versions of %q: %w", name, err)
	}

	var latest metadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metadataSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(h.dir, name, e.Name()))
		if err != nil {
			return "", err
		}
		var m metadata
		if err := json.Unmarshal(data, &m); err != nil {
			slog.Warn("skipping unreadable dependency metadata", "file", e.Name(), "error", err)
			continue
		}
		if _, err := os.Stat(h.versionPath(name, m.Version)); err != nil {
			continue
		}
		if latest.Version == "" || m.FetchedAt.After(latest.FetchedAt) {
			latest = m
		}
	}
	return latest.Version, nil
}

func (h *FromSourceHelper) fetch(ctx context.Context, name string, src Source) (string, error) {
	dir := filepath.Join(h.dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create dependency directory: %w", err)
	}

	slog.Info("fetching dependency", "name", name, "source", src.Describe())
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	if err := src.Fetch(ctx, io.MultiWriter(tmp, hash)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("dependency %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	version := hex.EncodeToString(hash.Sum(nil))
	target := h.versionPath(name, version)
	if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
		if err := os.Rename(tmp.Name(), target); err != nil {
			return "", fmt.Errorf("failed to store dependency %q: %w", name, err)
		}
	}

	data, err := json.MarshalIndent(metadata{
		Source:    src.Describe(),
		Version:   version,
		FetchedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(target+metadataSuffix, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write dependency metadata: %w", err)
	}
	slog.Debug("stored dependency", "name", name, "version", version)
	return version, nil
}

func (h *FromSourceHelper) ensureUnpacked(name, archive string, u Unpacker) (string, error) {
	dest := archive + unpackedSuffix
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return dest, nil
	}

	tmp, err := os.MkdirTemp(filepath.Dir(archive), ".unpack-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	if err := u.Unpack(archive, tmp); err != nil {
		os.RemoveAll(tmp)
		return "", fmt.Errorf("failed to unpack dependency %q: %w", name, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.RemoveAll(tmp)
		return "", fmt.Errorf("failed to store unpacked dependency %q: %w", name, err)
	}
	return dest, nil
}
