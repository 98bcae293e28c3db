package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/whispercppkit/whispercppkit/internal/download"
	"go.uber.org/zap"
)

// Store manages one models directory.
type Store struct {
	Dir string
	// Repo is a Hugging Face repository id. Empty means DefaultRepo.
	Repo string
	// BaseURL overrides https://huggingface.co, mainly for tests and mirrors.
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
	NoProgress bool
}

// Resolved is the outcome of turning a --model argument into a file.
type Resolved struct {
	Model         Model
	Path          string
	NeedsDownload bool
	IsCustomPath  bool
}

func (s *Store) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// LocalPath is where m lives inside the store.
func (s *Store) LocalPath(m Model) string {
	return filepath.Join(s.Dir, m.FileName())
}

// RemoteURL is the direct download link for m.
func (s *Store) RemoteURL(m Model) string {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = "https://huggingface.co"
	}
	repo := s.Repo
	if repo == "" {
		repo = DefaultRepo
	}
	return fmt.Sprintf("%s/%s/resolve/main/%s?download=true", base, repo, url.PathEscape(m.FileName()))
}

// Resolve maps ref to a model file. An existing path wins over a catalogue id; an
// empty ref selects DefaultModel.
func (s *Store) Resolve(ref string) (Resolved, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = DefaultModel
	}

	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return Resolved{Path: filepath.Clean(ref), IsCustomPath: true}, nil
	}

	if m, ok := Lookup(ref); ok {
		if strings.TrimSpace(s.Dir) == "" {
			return Resolved{}, errors.New("model directory must not be empty for named model")
		}

		path := s.LocalPath(m)
		_, statErr := os.Stat(path)
		if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
			return Resolved{}, fmt.Errorf("stat model path: %w", statErr)
		}
		return Resolved{Model: m, Path: path, NeedsDownload: statErr != nil}, nil
	}

	if looksLikePath(ref) {
		return Resolved{}, fmt.Errorf("custom model path does not exist: %s", filepath.Clean(ref))
	}
	return Resolved{}, fmt.Errorf("unknown model %q (known models: %s)", ref, strings.Join(IDs(), ", "))
}

// Ensure downloads m unless it is already present. With overwrite the local copy is
// replaced.
func (s *Store) Ensure(ctx context.Context, m Model, overwrite bool) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory: %w", err)
	}

	path := s.LocalPath(m)
	if _, err := os.Stat(path); err == nil {
		if !overwrite {
			return path, nil
		}
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("remove existing model: %w", err)
		}
	}

	s.logger().Info("downloading model", zap.String("model", m.ID), zap.String("path", path))
	err := download.DownloadFile(ctx, download.Options{
		URL:            s.RemoteURL(m),
		Destination:    path,
		ExpectedSHA256: m.SHA256,
		NoProgress:     s.NoProgress,
		HTTPClient:     s.HTTPClient,
		Logger:         s.logger(),
		Description:    m.ID,
	})
	if err != nil {
		return "", fmt.Errorf("download model %s: %w", m.ID, err)
	}
	return path, nil
}

// Entry is one catalogue model as seen on disk.
type Entry struct {
	ID       string `json:"id" yaml:"id"`
	File     string `json:"file" yaml:"file"`
	Present  bool   `json:"present" yaml:"present"`
	Size     int64  `json:"size,omitempty" yaml:"size,omitempty"`
	Verified *bool  `json:"verified,omitempty" yaml:"verified,omitempty"`
}

// Extra is a file in the store that is not a catalogue model.
type Extra struct {
	File string `json:"file" yaml:"file"`
	Size int64  `json:"size" yaml:"size"`
}

// Status summarises the store directory.
type Status struct {
	Dir          string  `json:"dir" yaml:"dir"`
	Models       []Entry `json:"models" yaml:"models"`
	Extras       []Extra `json:"extras,omitempty" yaml:"extras,omitempty"`
	PresentCount int     `json:"presentCount" yaml:"presentCount"`
	PresentBytes int64   `json:"presentBytes" yaml:"presentBytes"`
	ExtraBytes   int64   `json:"extraBytes" yaml:"extraBytes"`
}

// Status lists every catalogue model and any leftover model-like files. With verify
// set, present models with a pinned digest are hashed.
func (s *Store) Status(verify bool) (Status, error) {
	st := Status{Dir: s.Dir}
	known := make(map[string]bool, len(catalog))

	for _, m := range catalog {
		known[m.FileName()] = true
		entry := Entry{ID: m.ID, File: m.FileName()}

		info, err := os.Stat(s.LocalPath(m))
		switch {
		case err == nil:
			entry.Present = true
			entry.Size = info.Size()
			st.PresentCount++
			st.PresentBytes += info.Size()
			if verify && m.SHA256 != "" {
				ok := download.VerifyFileChecksum(s.LocalPath(m), m.SHA256) == nil
				entry.Verified = &ok
			}
		case !errors.Is(err, os.ErrNotExist):
			return Status{}, fmt.Errorf("stat %s: %w", m.FileName(), err)
		}
		st.Models = append(st.Models, entry)
	}

	files, err := s.modelLikeFiles()
	if err != nil {
		return Status{}, err
	}
	for _, f := range files {
		if known[f.File] {
			continue
		}
		st.Extras = append(st.Extras, f)
		st.ExtraBytes += f.Size
	}

	return st, nil
}

// Prune removes partial downloads and every model file whose id is not in keep.
// With dryRun nothing is deleted; the candidates are returned either way.
func (s *Store) Prune(keep []string, dryRun bool) ([]Extra, error) {
	keepFiles := make(map[string]bool, len(keep))
	for _, id := range keep {
		m, ok := Lookup(id)
		if !ok {
			return nil, fmt.Errorf("unknown model %q in keep list", id)
		}
		keepFiles[m.FileName()] = true
	}

	files, err := s.modelLikeFiles()
	if err != nil {
		return nil, err
	}

	var removed []Extra
	for _, f := range files {
		if keepFiles[f.File] && !strings.HasSuffix(f.File, download.PartialSuffix) {
			continue
		}
		removed = append(removed, f)
		if dryRun {
			continue
		}
		path := filepath.Join(s.Dir, f.File)
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", path, err)
		}
		s.logger().Info("removed model file", zap.String("path", path), zap.Int64("bytes", f.Size))
	}
	return removed, nil
}

func (s *Store) modelLikeFiles() ([]Extra, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read model directory: %w", err)
	}

	var out []Extra
	for _, e := range entries {
		if !isModelLike(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		out = append(out, Extra{File: e.Name(), Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

func isModelLike(name string) bool {
	if strings.HasSuffix(name, download.PartialSuffix) {
		return true
	}
	if !strings.HasPrefix(name, "ggml-") {
		return false
	}
	return strings.HasSuffix(name, ".bin") || strings.HasSuffix(name, ".zip")
}

func looksLikePath(input string) bool {
	return strings.ContainsRune(input, os.PathSeparator) ||
		strings.ContainsRune(input, '/') ||
		strings.HasSuffix(strings.ToLower(input), ".bin")
}
