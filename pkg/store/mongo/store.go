// Package mongo persists finished sessions: the aggregate document in a
// collection, the audio capture in a GridFS bucket.
package mongo

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/emora-ai/emora/pkg/errorsx"
	"github.com/emora-ai/emora/pkg/session"
)

const (
	defaultDatabase   = "emora"
	defaultCollection = "agent_sessions"
	defaultBucket     = "recordings"
)

type Config struct {
	URI        string
	Database   string
	Collection string
	Bucket     string
	// FileExt names the uploaded audio container, e.g. "flac".
	FileExt string
}

func (c Config) withDefaults() Config {
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.Collection == "" {
		c.Collection = defaultCollection
	}
	if c.Bucket == "" {
		c.Bucket = defaultBucket
	}
	if c.FileExt == "" {
		c.FileExt = "flac"
	}
	return c
}

// Store is safe for concurrent use; one instance serves all sessions for the
// process lifetime.
type Store struct {
	cfg      Config
	client   *mongo.Client
	sessions *mongo.Collection
	bucket   *mongo.GridFSBucket
}

func New(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo store: missing uri")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo store: connect: %w", err)
	}
	db := client.Database(cfg.Database)
	bucket := db.GridFSBucket(options.GridFSBucket().SetName(cfg.Bucket))
	return &Store{
		cfg:      cfg,
		client:   client,
		sessions: db.Collection(cfg.Collection),
		bucket:   bucket,
	}, nil
}

// Ping verifies the deployment is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// UploadAudio writes the recording to GridFS and returns its addressable URL.
func (s *Store) UploadAudio(ctx context.Context, sessionID string, createdAt time.Time, audio []byte) (string, error) {
	filename := fmt.Sprintf("%s_%s.%s", sessionID, createdAt.UTC().Format("20060102T150405Z"), s.cfg.FileExt)
	id, err := s.bucket.UploadFromStream(ctx, filename, bytes.NewReader(audio))
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("gridfs upload %s: %w", filename, err), errorsx.ReasonAudioUpload)
	}
	return fmt.Sprintf("gridfs://%s/%s/%s", s.cfg.Database, s.cfg.Bucket, id.Hex()), nil
}

// UploadSession inserts the write-once aggregate document.
func (s *Store) UploadSession(ctx context.Context, rec session.AgentSession) error {
	if _, err := s.sessions.InsertOne(ctx, rec); err != nil {
		return errorsx.Wrap(fmt.Errorf("insert session %s: %w", rec.SessionID, err), errorsx.ReasonSessionUpload)
	}
	return nil
}

var _ session.Store = (*Store)(nil)
