package hook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voocel/toolrt/internal/toolapi"
)

// FileOffload writes oversized tool output to disk and replaces it with a
// file reference, so large payloads don't round-trip through the RPC
// surface or the conversation history that consumes tool results.
type FileOffload struct {
	Dir     string
	MaxAge  time.Duration // entries older than this are pruned on each write; 0 disables
	nowFunc func() time.Time
}

// NewFileOffload returns a FileOffload writing under dir.
func NewFileOffload(dir string, maxAge time.Duration) *FileOffload {
	return &FileOffload{Dir: dir, MaxAge: maxAge, nowFunc: time.Now}
}

// NewOffloadPostHook builds a PostFunc that, when result.Data[field] exceeds
// threshold characters, writes it to a file named
// "<prefix>_<yyyymmdd-hhmmss>_<shorthash><ext>" under f.Dir (ext is appended
// as given, so it carries its own leading dot, e.g. ".txt") and replaces
// result.Data[field] with the file path plus optional metadata.
func (f *FileOffload) NewOffloadPostHook(field, prefix, ext string, threshold int, withMetadata bool) PostFunc {
	return func(ctx context.Context, ec *toolapi.ExecutionContext, result *toolapi.Result, callErr error) (*toolapi.Result, error) {
		if callErr != nil || result == nil || result.Data == nil {
			return result, callErr
		}
		text, _ := result.Data[field].(string)
		if len(text) <= threshold {
			return result, callErr
		}

		if f.MaxAge > 0 {
			f.cleanup()
		}

		path, err := f.write(prefix, ext, text)
		if err != nil {
			return result, fmt.Errorf("file offload: %w", err)
		}

		next := *result
		next.Data = make(map[string]any, len(result.Data)+3)
		for k, v := range result.Data {
			next.Data[k] = v
		}
		next.Data[field] = fmt.Sprintf("output written to %s (%d bytes)", path, len(text))
		if withMetadata {
			next.Data[field+"_file"] = path
			next.Data[field+"_bytes"] = len(text)
		}
		return &next, nil
	}
}

func (f *FileOffload) write(prefix, ext, content string) (string, error) {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", err
	}
	now := f.now()
	sum := sha256.Sum256([]byte(content))
	shortHash := hex.EncodeToString(sum[:4])
	name := fmt.Sprintf("%s_%s_%s%s", prefix, now.Format("20060102-150405"), shortHash, ext)
	path := filepath.Join(f.Dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *FileOffload) now() time.Time {
	if f.nowFunc != nil {
		return f.nowFunc()
	}
	return time.Now()
}

// cleanup removes entries under f.Dir older than f.MaxAge. Errors are
// swallowed: a failed cleanup pass should never block the write it was
// triggered from.
func (f *FileOffload) cleanup() {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return
	}
	cutoff := f.now().Add(-f.MaxAge)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(f.Dir, entry.Name()))
		}
	}
}
