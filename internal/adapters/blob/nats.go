package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

// ObjectStore keeps uploads in a NATS JetStream object store bucket so every
// server instance can serve every file.
type ObjectStore struct {
	conn         *nats.Conn
	js           jetstream.JetStream
	store        jetstream.ObjectStore
	bucket       string
	publicPrefix string
	now          func() time.Time
}

var (
	_ core.BlobStore  = (*ObjectStore)(nil)
	_ core.BlobReader = (*ObjectStore)(nil)
)

// NewObjectStore connects to NATS and opens (or creates) the bucket.
func NewObjectStore(ctx context.Context, natsURL, bucket, publicPrefix string) (*ObjectStore, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	if publicPrefix == "" {
		publicPrefix = "/files"
	}
	s := &ObjectStore{
		conn:         conn,
		js:           js,
		bucket:       bucket,
		publicPrefix: strings.TrimSuffix(publicPrefix, "/"),
		now:          time.Now,
	}
	if err := s.init(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *ObjectStore) init(ctx context.Context) error {
	store, err := s.js.ObjectStore(ctx, s.bucket)
	if err == nil {
		s.store = store
		return nil
	}
	store, err = s.js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      s.bucket,
		Description: "room chat attachments",
	})
	if err != nil {
		return fmt.Errorf("create object store bucket: %w", err)
	}
	s.store = store
	return nil
}

func (s *ObjectStore) Upload(ctx context.Context, code domain.RoomCode, data []byte, fileName string) (string, error) {
	if strings.TrimSpace(fileName) == "" {
		return "", domain.ErrFileNameEmpty
	}
	name := ObjectName(code, fileName, s.now())
	meta := jetstream.ObjectMeta{Name: name}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		meta.Headers = nats.Header{"Content-Type": []string{ct}}
	}
	if _, err := s.store.Put(ctx, meta, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}
	log.Debug().Str("module", "adapters.blob").Str("bucket", s.bucket).Str("object", name).Msg("stored upload")
	return s.publicPrefix + "/" + name, nil
}

func (s *ObjectStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	name = strings.TrimPrefix(name, "/")
	if !validName(name) {
		return nil, domain.ErrNotFound
	}
	res, err := s.store.Get(ctx, name)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	defer res.Close()
	return io.ReadAll(res)
}

func (s *ObjectStore) Close() error {
	s.conn.Close()
	return nil
}
