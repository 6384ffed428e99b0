// Package downloader is the boundary between ytfetchd and the external
// media-download tool. It wraps the yt-dlp command line, the only
// component in this repo built on os/exec rather than a Go client library
// (see DESIGN.md): no Go binding for yt-dlp exists, so shelling out to the
// real tool is the grounded choice.
package downloader

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/smukkama/ytfetchd/internal/codec"
)

// Downloader fetches single items and expands playlists into their member
// items. Both operations are opaque collaborators from the scheduler's
// point of view: it only cares about ok/err, never about yt-dlp's own
// internals.
type Downloader interface {
	Download(ctx context.Context, item codec.ItemID) (ok bool, errText string)
	ExpandPlaylist(ctx context.Context, playlist codec.PlaylistID, cookiePath string) ([]codec.ItemID, error)
}

// YTDLP shells out to the yt-dlp binary. Each worker owns its own YTDLP
// pointed at its private cookie file, matching the source's one
// YTConnector per worker, each with its own YTConfig.cookies.
type YTDLP struct {
	// Binary is the executable name or path; defaults to "yt-dlp" when
	// empty.
	Binary string
	// WithDescriptions mirrors the source's YTConfig.descriptions: write a
	// sidecar .description file alongside each download.
	WithDescriptions bool
	// CookiePath is this instance's cookie file, threaded into every
	// Download call. Empty means no cookie authentication.
	CookiePath string
}

func (y *YTDLP) binary() string {
	if y.Binary == "" {
		return "yt-dlp"
	}
	return y.Binary
}

// Download runs yt-dlp against a single item id.
func (y *YTDLP) Download(ctx context.Context, item codec.ItemID) (bool, string) {
	args := y.baseArgs(y.CookiePath)
	args = append(args, string(item))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, y.binary(), args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return false, strings.TrimSpace(stderr.String())
	}
	return true, ""
}

// ExpandPlaylist asks yt-dlp for the flat list of item ids belonging to a
// playlist, without downloading anything.
func (y *YTDLP) ExpandPlaylist(ctx context.Context, playlist codec.PlaylistID, cookiePath string) ([]codec.ItemID, error) {
	args := []string{"--flat-playlist", "--print", "id", "--skip-download"}
	if cookiePath != "" {
		args = append(args, "--cookies", cookiePath)
	}
	args = append(args, string(playlist))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, y.binary(), args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("downloader: expand playlist %s: %w: %s", playlist, err, strings.TrimSpace(stderr.String()))
	}

	var ids []codec.ItemID
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			ids = append(ids, codec.ItemID(line))
		}
	}
	return ids, nil
}

func (y *YTDLP) baseArgs(cookiePath string) []string {
	args := []string{
		"--quiet",
		"--no-warnings",
		"--no-color",
		"--restrict-filenames",
		"--windows-filenames",
	}
	if y.WithDescriptions {
		args = append(args, "--write-description")
	}
	if cookiePath != "" {
		args = append(args, "--cookies", cookiePath)
	}
	return args
}
