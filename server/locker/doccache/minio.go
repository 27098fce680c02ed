package doccache

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
)

const objectPrefix = "files/"

// MinIOStore keeps one object per document under files/ in a bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(client *minio.Client, bucket string) *MinIOStore {
	return &MinIOStore{client: client, bucket: bucket}
}

func (s *MinIOStore) Get(ctx context.Context, docID string) ([]byte, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectPrefix+docID, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, err
	}
	defer obj.Close()

	blob, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, err
	}
	return blob, true, nil
}

func (s *MinIOStore) Put(ctx context.Context, docID string, blob []byte) error {
	reader := bytes.NewReader(blob)
	_, err := s.client.PutObject(ctx, s.bucket, objectPrefix+docID, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (s *MinIOStore) Clear(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: objectPrefix, Recursive: true}) {
		if info.Err != nil {
			return info.Err
		}
		if err := s.client.RemoveObject(ctx, s.bucket, info.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func (s *MinIOStore) Close() error {
	return nil
}
