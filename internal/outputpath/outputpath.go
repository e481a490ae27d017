// SPDX-License-Identifier: MIT

// Package outputpath implements Output Paths (C9): per-session temp
// directory allocation and the atomic temp-to-final move.
package outputpath

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Session holds the paths for one recording session: the temp
// directory the encoder/audio workers write into, and the user's
// requested final output path.
type Session struct {
	TempDir   string
	TempVideo string
	FinalPath string
}

// sibling names the directory FFmpeg lives next to, preferred per
// spec §6 (CAPTURIST_FFMPEG_BIN/FFMPEG_DIR) so temp files land on the
// same volume as the encoder binary when possible.
func sibling(ffmpegDir string) (string, error) {
	if ffmpegDir == "" {
		return "", fmt.Errorf("outputpath: no ffmpeg dir configured")
	}
	dir := filepath.Join(ffmpegDir, "capturist-temp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// NewSession allocates a per-session temp directory (preferring a
// directory sibling to the ffmpeg install, falling back to the system
// temp dir) and derives the encoder's temp output filename from the
// final path's extension.
func NewSession(finalPath, ffmpegDir string) (*Session, error) {
	base, err := sibling(ffmpegDir)
	if err != nil {
		base = os.TempDir()
	}
	id := uuid.NewString()
	tempDir := filepath.Join(base, id)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("outputpath: create temp dir: %w", err)
	}
	ext := filepath.Ext(finalPath)
	if ext == "" {
		ext = ".mp4"
	}
	return &Session{
		TempDir:   tempDir,
		TempVideo: filepath.Join(tempDir, "video"+ext),
		FinalPath: finalPath,
	}, nil
}

// Finalize atomically moves src into the session's final path,
// creating the destination directory if needed, then removes the
// temp directory on success.
func (s *Session) Finalize(src string) error {
	if err := os.MkdirAll(filepath.Dir(s.FinalPath), 0o755); err != nil {
		return fmt.Errorf("outputpath: create destination dir: %w", err)
	}
	if err := atomicMove(src, s.FinalPath); err != nil {
		return fmt.Errorf("outputpath: move %s to %s: %w", src, s.FinalPath, err)
	}
	_ = os.RemoveAll(s.TempDir)
	return nil
}

// atomicMove renames src to dst, falling back to copy+remove if they
// are on different volumes (os.Rename across volumes fails on
// Windows with ERROR_NOT_SAME_DEVICE).
func atomicMove(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
