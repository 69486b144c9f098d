package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

// FSStore writes uploads below a root directory and serves them back under
// publicPrefix.
type FSStore struct {
	fs           afero.Fs
	publicPrefix string
	now          func() time.Time
}

var (
	_ core.BlobStore  = (*FSStore)(nil)
	_ core.BlobReader = (*FSStore)(nil)
)

// NewFSStore roots the store at dir on the OS filesystem.
func NewFSStore(dir, publicPrefix string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return NewFSStoreOn(afero.NewBasePathFs(afero.NewOsFs(), dir), publicPrefix), nil
}

// NewFSStoreOn uses an existing afero filesystem, e.g. afero.NewMemMapFs in tests.
func NewFSStoreOn(fsys afero.Fs, publicPrefix string) *FSStore {
	if publicPrefix == "" {
		publicPrefix = "/files"
	}
	return &FSStore{
		fs:           fsys,
		publicPrefix: strings.TrimSuffix(publicPrefix, "/"),
		now:          time.Now,
	}
}

// Upload stores data and returns the public locator of the new object.
func (s *FSStore) Upload(ctx context.Context, code domain.RoomCode, data []byte, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(fileName) == "" {
		return "", domain.ErrFileNameEmpty
	}
	name := ObjectName(code, fileName, s.now())
	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return "", fmt.Errorf("create room dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, name, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	log.Debug().Str("module", "adapters.blob").Str("object", name).Int("bytes", len(data)).Msg("stored upload")
	return s.publicPrefix + "/" + name, nil
}

func (s *FSStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimPrefix(name, "/")
	if !validName(name) {
		return nil, domain.ErrNotFound
	}
	data, err := afero.ReadFile(s.fs, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	return data, err
}
