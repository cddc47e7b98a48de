// Package dependency fetches, versions and unpacks the external data a test needs.
package dependency

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
)

// Source describes where a dependency comes from and how to unpack it.
type Source interface {
	// Fetch writes the raw dependency bytes to w.
	Fetch(ctx context.Context, w io.Writer) error
	// Unpacker returns how to unpack the fetched bytes, or nil to use them as-is.
	Unpacker() Unpacker
	// Describe returns a human-readable origin used in logs and metadata.
	Describe() string
}

// WebData is a dependency downloaded over HTTP(S).
type WebData struct {
	URL    string
	Unpack Unpacker
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

func (d WebData) Fetch(ctx context.Context, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", d.URL, err)
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", d.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: unexpected status %s", d.URL, resp.Status)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read %s: %w", d.URL, err)
	}
	return nil
}

func (d WebData) Unpacker() Unpacker { return d.Unpack }
func (d WebData) Describe() string   { return d.URL }

// LocalData is a dependency read from a file on disk.
type LocalData struct {
	Path   string
	Unpack Unpacker
}

func (d LocalData) Fetch(_ context.Context, w io.Writer) error {
	f, err := os.Open(d.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", d.Path, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", d.Path, err)
	}
	return nil
}

func (d LocalData) Unpacker() Unpacker { return d.Unpack }
func (d LocalData) Describe() string   { return "file://" + d.Path }

// FSData is a dependency read from an fs.FS, typically an embed.FS.
type FSData struct {
	FS     fs.FS
	Path   string
	Unpack Unpacker
}

func (d FSData) Fetch(_ context.Context, w io.Writer) error {
	f, err := d.FS.Open(d.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", d.Path, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", d.Path, err)
	}
	return nil
}

func (d FSData) Unpacker() Unpacker { return d.Unpack }
func (d FSData) Describe() string   { return "fs://" + d.Path }
