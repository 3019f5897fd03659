package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"salesbot/salesbot/config"
	"salesbot/salesbot/sources/psql/models"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrTranscriptNotFound = errors.New("transcript not found")

type MinIOClient struct {
	client *minio.Client
	bucket string
}

// Transcript is the archived form of a replaced session.
type Transcript struct {
	SessionID  string            `json:"session_id"`
	Username   string            `json:"username"`
	Level      string            `json:"level"`
	StartedAt  time.Time         `json:"started_at"`
	ArchivedAt time.Time         `json:"archived_at"`
	Messages   []TranscriptEntry `json:"messages"`
}

type TranscriptEntry struct {
	Seq       int64     `json:"seq"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMinIOClient returns nil, nil when no endpoint is configured.
func NewMinIOClient(ctx context.Context, cfg config.Config) (*MinIOClient, error) {
	if cfg.MinIOEndpoint == "" {
		return nil, nil
	}
	return newMinIOClient(ctx, cfg.MinIOEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
		Secure: cfg.MinIOUseSSL,
	}, cfg.MinIOBucket)
}

func newMinIOClient(ctx context.Context, endpoint string, opts *minio.Options, bucket string) (*MinIOClient, error) {
	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, err
	}
	// Create bucket if not exists
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return &MinIOClient{client: client, bucket: bucket}, nil
}

// TranscriptKey is transcripts/<username>/<session id>.json.
func TranscriptKey(username, sessionID string) string {
	return path.Join("transcripts", username, sessionID+".json")
}

// BuildTranscript snapshots a session and its ordered messages.
func BuildTranscript(session models.Session, msgs []models.Message, now time.Time) Transcript {
	t := Transcript{
		SessionID:  session.ID.String(),
		Username:   session.Username,
		Level:      session.Level,
		StartedAt:  session.CreatedAt,
		ArchivedAt: now,
		Messages:   make([]TranscriptEntry, 0, len(msgs)),
	}
	for _, m := range msgs {
		t.Messages = append(t.Messages, TranscriptEntry{Seq: m.Seq, Text: m.Message, CreatedAt: m.CreatedAt})
	}
	return t
}

func (m *MinIOClient) ArchiveTranscript(ctx context.Context, session models.Session, msgs []models.Message) (string, error) {
	key := TranscriptKey(session.Username, session.ID.String())
	data, err := json.Marshal(BuildTranscript(session, msgs, time.Now()))
	if err != nil {
		return "", err
	}

	_, err = m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("upload transcript %s: %w", key, err)
	}
	return key, nil
}

// GetTranscript reads an archived session back. A missing object is ErrTranscriptNotFound.
func (m *MinIOClient) GetTranscript(ctx context.Context, username, sessionID string) (*Transcript, error) {
	key := TranscriptKey(username, sessionID)
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch transcript %s: %w", key, err)
	}
	defer obj.Close()
	if _, err := obj.Stat(); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" { // same value as minio.NoSuchKey (minio-go >= v7.0.93)
			return nil, fmt.Errorf("%w: %s", ErrTranscriptNotFound, key)
		}
		return nil, fmt.Errorf("fetch transcript %s: %w", key, err)
	}
	var t Transcript
	if err := json.NewDecoder(obj).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", key, err)
	}
	return &t, nil
}
