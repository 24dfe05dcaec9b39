package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const metaSuffix = ".meta"

// FSStore keeps objects as files under a root directory. A sidecar file
// holds the content type and user metadata.
type FSStore struct {
	root string
}

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewFS returns a filesystem store rooted at dir, creating it if needed.
func NewFS(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, errors.New("archive: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create root: %w", err)
	}
	return &FSStore{root: dir}, nil
}

func (s *FSStore) Driver() Driver { return DriverFilesystem }

func (s *FSStore) pathFor(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

// Put writes the object through a temp file so readers never see partial data.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	p, err := s.pathFor(key)
	if err != nil {
		return Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Info{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return Info{}, err
	}
	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return Info{}, fmt.Errorf("archive: write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return Info{}, err
	}
	meta := sidecar{ContentType: opts.ContentType, Metadata: opts.Metadata, Size: size, CreatedAt: time.Now().UTC()}
	raw, err := json.Marshal(meta)
	if err != nil {
		return Info{}, err
	}
	if err := os.WriteFile(p+metaSuffix, raw, 0o644); err != nil {
		return Info{}, err
	}
	return s.info(key, p)
}

// Get opens the object for reading. Callers close the returned reader.
func (s *FSStore) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	p, err := s.pathFor(key)
	if err != nil {
		return Info{}, nil, err
	}
	info, err := s.info(key, p)
	if err != nil {
		return Info{}, nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return Info{}, nil, err
	}
	return info, f, nil
}

// List returns objects whose key starts with prefix, sorted by key.
func (s *FSStore) List(ctx context.Context, prefix string) ([]Info, error) {
	out := []Info{}
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, metaSuffix) || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := s.info(key, p)
		if err != nil {
			return err
		}
		out = append(out, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *FSStore) info(key, p string) (Info, error) {
	st, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Info{}, err
	}
	info := Info{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC()}
	raw, err := os.ReadFile(p + metaSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return info, nil
		}
		return Info{}, err
	}
	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err == nil {
		info.ContentType = meta.ContentType
		info.Metadata = meta.Metadata
	}
	return info, nil
}
