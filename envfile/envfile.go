// Package envfile persists single keys into a KEY=VALUE env file without
// disturbing the rest of it. It backs the rotating Twitch refresh token.
package envfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Store mirrors one key of an env file.
type Store struct {
	Path string
	Key  string
}

// New returns a Store for key in the env file at path.
func New(path, key string) *Store {
	return &Store{Path: path, Key: key}
}

// Load returns the current value of the key, or "" if the file or key is absent.
func (s *Store) Load() (string, error) {
	vals, err := godotenv.Read(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read env file: %w", err)
	}
	return vals[s.Key], nil
}

// SaveRefreshToken writes the token under the store's key.
func (s *Store) SaveRefreshToken(token string) error {
	return Upsert(s.Path, s.Key, token)
}

// Upsert sets key=value in the env file at path. The first line assigning the
// key (with or without "export ") is replaced, later duplicates are dropped, and the line is appended when
// the key is absent. Other lines keep their content and order. The file is
// replaced atomically via a temp file in the same directory.
func Upsert(path, key, value string) error {
	if key == "" {
		return errors.New("envfile: empty key")
	}
	if strings.ContainsAny(value, "\r\n") {
		return errors.New("envfile: value contains newline")
	}
	perm := fs.FileMode(0o600)
	var content string
	b, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	switch {
	case err == nil:
		content = string(b)
		if st, statErr := os.Stat(path); statErr == nil {
			perm = st.Mode().Perm()
		}
	case errors.Is(err, fs.ErrNotExist):
		slog.Info("env file missing; creating", slog.String("path", path))
	default:
		return fmt.Errorf("read env file: %w", err)
	}
	return writeAtomic(path, []byte(Rewrite(content, key, value)), perm)
}

// Rewrite returns content with key set to value.
func Rewrite(content, key, value string) string {
	entry := key + "=" + value
	if content == "" {
		return entry + "\n"
	}
	trailingNewline := strings.HasSuffix(content, "\n")
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	out := make([]string, 0, len(lines)+1)
	written := false
	for _, line := range lines {
		lead, ok := matchKey(line, key)
		if ok {
			if written {
				continue
			}
			// keep CRLF files CRLF
			if strings.HasSuffix(line, "\r") {
				out = append(out, lead+entry+"\r")
			} else {
				out = append(out, lead+entry)
			}
			written = true
			continue
		}
		out = append(out, line)
	}
	if !written {
		out = append(out, entry)
		trailingNewline = true
	}
	res := strings.Join(out, "\n")
	if trailingNewline {
		res += "\n"
	}
	return res
}

// matchKey reports whether line assigns key, accepting the forms godotenv
// reads: leading whitespace, an "export " prefix, spaces before the
// separator, and ":" as well as "=".
// lead is the text before the key, kept on rewrite.
func matchKey(line, key string) (lead string, ok bool) {
	rest := strings.TrimLeft(line, " \t")
	if after, found := strings.CutPrefix(rest, "export "); found {
		rest = strings.TrimLeft(after, " \t")
	}
	after, found := strings.CutPrefix(rest, key)
	if !found {
		return "", false
	}
	after = strings.TrimLeft(after, " \t")
	if !strings.HasPrefix(after, "=") && !strings.HasPrefix(after, ":") {
		return "", false
	}
	return line[:len(line)-len(rest)], true
}

func writeAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp env file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if err := os.Remove(tmpName); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to remove temp env file", slog.String("path", tmpName), slog.Any("err", err))
		}
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp env file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp env file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp env file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp env file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace env file: %w", err)
	}
	return nil
}
