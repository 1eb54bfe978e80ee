package publishers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// gcsPublisher archives each event's artifact (or the event itself) in a bucket
// under <prefix>/<source-id>/<file>.
type gcsPublisher struct {
	id     string
	client *gcs.Client
	bucket string
	prefix string
	log    Logger
}

func newGCSPublisher(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.GCS == nil {
		return nil, fmt.Errorf("publisher %q missing gcs configuration", cfg.ID)
	}

	var opts []option.ClientOption
	if cfg.GCS.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCS.CredentialsFile))
	}
	if cfg.GCS.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.GCS.Endpoint), option.WithoutAuthentication())
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &gcsPublisher{
		id:     cfg.ID,
		client: client,
		bucket: cfg.GCS.Bucket,
		prefix: cfg.GCS.Prefix,
		log:    ensureLogger(log),
	}, nil
}

func (g *gcsPublisher) ID() string   { return g.id }
func (g *gcsPublisher) Type() string { return TypeGCS }

// Publish uploads the artifact file, or the event JSON when the event has none.
func (g *gcsPublisher) Publish(ctx context.Context, evt Event) error {
	var (
		name        string
		contentType string
		body        io.Reader
	)

	if evt.ArtifactPath != "" {
		f, err := os.Open(evt.ArtifactPath)
		if err != nil {
			return fmt.Errorf("open artifact: %w", err)
		}
		defer f.Close()
		name = filepath.Base(evt.ArtifactPath)
		contentType = evt.ContentType
		body = f
	} else {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		name = evt.ID + ".json"
		contentType = "application/json"
		body = bytes.NewReader(payload)
	}

	object := path.Join(g.prefix, evt.SourceID, name)
	writer := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	writer.Metadata = map[string]string{
		"event_id":   evt.ID,
		"event_kind": evt.Kind,
		"caption":    evt.Caption,
	}

	if _, err := io.Copy(writer, body); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}

	g.log.DebugObj("gcs publisher stored object", "publisher_gcs_delivery", map[string]any{
		"publisher_id": g.id,
		"object":       fmt.Sprintf("gs://%s/%s", g.bucket, object),
	})
	return nil
}

func (g *gcsPublisher) Close() error {
	return g.client.Close()
}
