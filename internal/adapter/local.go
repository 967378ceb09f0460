package adapter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apierrors "github.com/soundtrace/soundtrace/internal/errors"
)

// LocalFetcher resolves "file://" URLs against a root directory on disk.
// It implements both MetadataFetcher and AudioFetcher: metadata is derived
// from the filename (artist and title split on " - "), audio bytes are
// the file itself, never downloaded. This is the one real, wired adapter
// this repository ships; remote catalog adapters (Spotify, YouTube) follow
// the same two interfaces but are out of scope here.
type LocalFetcher struct {
	root string
}

func NewLocalFetcher(root string) *LocalFetcher {
	return &LocalFetcher{root: root}
}

const filePrefix = "file://"

// resolve joins url (a "file://" URL, relative path empty meaning the
// fetcher's own root) against root, rejecting any path that escapes it.
func (f *LocalFetcher) resolve(url string) (string, error) {
	rel := strings.TrimPrefix(url, filePrefix)
	path := filepath.Join(f.root, filepath.Clean("/"+rel))
	if !strings.HasPrefix(path, filepath.Clean(f.root)+string(filepath.Separator)) && path != filepath.Clean(f.root) {
		return "", apierrors.AdapterErr("local", "path escapes root")
	}
	return path, nil
}

// metadataFromFilename derives title/artist from a file's basename and
// sets ID to a "file://" URL relative to root, so it round-trips back
// through resolve() when the caller (e.g. a playlist child job) later
// fetches it.
func metadataFromFilename(root, path string) TrackMetadata {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	artist, title := "", base
	if idx := strings.Index(base, " - "); idx >= 0 {
		artist = strings.TrimSpace(base[:idx])
		title = strings.TrimSpace(base[idx+3:])
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return TrackMetadata{ID: filePrefix + rel, Title: title, Artist: artist}
}

// GetTrack resolves a file:// URL to metadata derived from its filename.
func (f *LocalFetcher) GetTrack(ctx context.Context, url string) (*TrackMetadata, error) {
	path, err := f.resolve(url)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, apierrors.AdapterErr("local", fmt.Sprintf("file not found: %s", url))
	}
	meta := metadataFromFilename(f.root, path)
	return &meta, nil
}

// GetPlaylist lists every audio file directly under the file:// directory,
// sorted by name. Entries that vanish between listing and read are simply
// absent from the result rather than surfacing an error.
func (f *LocalFetcher) GetPlaylist(ctx context.Context, url string) ([]TrackMetadata, error) {
	dir, err := f.resolve(url)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apierrors.AdapterErr("local", fmt.Sprintf("playlist directory not found: %s", url))
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !isAudioExt(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	tracks := make([]TrackMetadata, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		tracks = append(tracks, metadataFromFilename(f.root, path))
	}
	return tracks, nil
}

// SearchAndDownload treats query as a file:// URL rather than a real
// search: "downloading" copies the library file to a temp path. The
// caller owns the copy and deletes it unconditionally after ingestion,
// so handing out the library file itself would lose the reference audio.
func (f *LocalFetcher) SearchAndDownload(ctx context.Context, query string) (string, *TrackMetadata, error) {
	path, err := f.resolve(query)
	if err != nil {
		return "", nil, err
	}
	src, err := os.Open(path)
	if err != nil {
		return "", nil, apierrors.AdapterErr("local", fmt.Sprintf("file not found: %s", query))
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "soundtrace-*"+filepath.Ext(path))
	if err != nil {
		return "", nil, apierrors.AdapterErr("local", fmt.Sprintf("temp file: %v", err))
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, apierrors.AdapterErr("local", fmt.Sprintf("copy: %v", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, apierrors.AdapterErr("local", fmt.Sprintf("copy: %v", err))
	}

	meta := metadataFromFilename(f.root, path)
	return tmp.Name(), &meta, nil
}

// IsPlaylistURL dispatches by URL shape rather than a lookup call: a
// playlist reference is "a directory" under the local fetcher's root,
// so a trailing slash (or the bare root) is the playlist marker.
func IsPlaylistURL(url string) bool {
	return url == "" || url == filePrefix || strings.HasSuffix(url, "/")
}

func isAudioExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".mp3":
		return true
	default:
		return false
	}
}
