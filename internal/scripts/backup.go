package scripts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/langbridge/bridge-engine/internal/protocol"
)

// BackupStore exports and restores a Repository's entire index to S3,
// grounded on the AWS config/client wiring in
// pithecene-io-quarry's quarry/lode/client_s3.go (region override +
// default credential chain via config.LoadDefaultConfig), minus the
// Lode storage abstraction layer itself, which this module does not
// depend on.
type BackupStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewBackupStore builds an S3 client, optionally pinned to region. When
// accessKey and secretKey are both set, the client uses that static
// credential pair instead of the default chain (environment, shared
// config, IAM role) — useful when the backup target's account differs
// from whatever credentials the host environment already carries.
func NewBackupStore(ctx context.Context, bucket, prefix, region, accessKey, secretKey string) (*BackupStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &BackupStore{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (b *BackupStore) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return b.prefix + "/" + name
}

// Export uploads the full script index (every SavedScript, including
// its signature) as a single JSON object. Export does not re-sign
// anything; it is a faithful snapshot of what Load would currently
// verify successfully.
func (b *BackupStore) Export(ctx context.Context, repo *Repository) error {
	repo.mu.RLock()
	payload, err := json.MarshalIndent(repo.idx, "", "  ")
	repo.mu.RUnlock()
	if err != nil {
		return err
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key("index.json")),
		Body:   bytes.NewReader(payload),
	})
	return err
}

// Import downloads a previously exported index and merges it into repo,
// re-verifying every entry's signature against this process's own
// signing secret before accepting it: an index exported under a
// different secret fails closed (KindTamper) rather than silently
// becoming unverifiable later.
func (b *BackupStore) Import(ctx context.Context, repo *Repository) error {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key("index.json")),
	})
	if err != nil {
		return err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return err
	}

	var imported index
	if err := json.Unmarshal(data, &imported); err != nil {
		return err
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	for name, s := range imported.Scripts {
		if !verify(repo.signingSecret, s.Code, s.Signature) {
			return protocol.New(protocol.KindTamper, fmt.Sprintf("imported script %q fails signature verification under current signing secret", name))
		}
	}
	for name, s := range imported.Scripts {
		repo.idx.Scripts[name] = s
	}
	return repo.persist()
}
