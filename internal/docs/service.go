// Package docs is the community document registry: PDF notices and minutes
// stored in an object bucket under a documents/ prefix.
package docs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// MaxFileSize caps uploads at 5 MiB.
const MaxFileSize = 5 << 20

const prefix = "documents/"

// ObjectStorage is the bucket operation subset the registry needs. Satisfied
// by *minio.Client.
type ObjectStorage interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Service manages uploaded community documents.
type Service struct {
	storage ObjectStorage
	bucket  string
}

func NewService(storage ObjectStorage, bucket string) *Service {
	return &Service{storage: storage, bucket: bucket}
}

// Document describes a registered file.
type Document struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
	URL        string    `json:"url,omitempty"`
}

// ValidationError reports a rejected upload.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ErrDocumentNotFound is returned when an operation targets a missing document.
var ErrDocumentNotFound = errors.New("document not found")

// ErrStorageDenied signals the storage backend refused the operation. The
// usual cause is a session whose role claim predates a role change.
var ErrStorageDenied = errors.New("storage permission denied: check your role or refresh your session")

var pdfMagic = []byte("%PDF-")

// Upload validates and stores a PDF. Validation happens before any bytes go
// to the bucket, so a rejected upload never leaves a partial object behind.
func (s *Service) Upload(ctx context.Context, name, contentType string, size int64, body io.Reader, uploadedBy string) (Document, error) {
	name = strings.TrimSpace(path.Base(name))
	if name == "" || name == "." || name == "/" {
		return Document{}, &ValidationError{Message: "file name is required"}
	}
	if contentType != "application/pdf" {
		return Document{}, &ValidationError{Message: "only PDF files are allowed"}
	}
	if size <= 0 {
		return Document{}, &ValidationError{Message: "file is empty"}
	}
	if size > MaxFileSize {
		return Document{}, &ValidationError{Message: "file exceeds the 5 MiB limit"}
	}

	// Sniff the magic bytes; the declared content type alone is caller input.
	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Document{}, fmt.Errorf("read upload: %w", err)
	}
	if !bytes.Equal(head[:n], pdfMagic) {
		return Document{}, &ValidationError{Message: "file content is not a PDF"}
	}
	reader := io.MultiReader(bytes.NewReader(head[:n]), body)

	uploadedAt := time.Now().UTC()
	key := fmt.Sprintf("%s%d_%s", prefix, uploadedAt.UnixMilli(), name)

	opts := minio.PutObjectOptions{ContentType: "application/pdf"}
	if uploadedBy != "" {
		opts.UserMetadata = map[string]string{"uploaded-by": uploadedBy}
	}
	_, err = s.storage.PutObject(ctx, s.bucket, key, reader, size, opts)
	if err != nil {
		return Document{}, s.translate(err, "store document")
	}

	return Document{Key: key, Name: name, Size: size, UploadedAt: uploadedAt}, nil
}

var timestampPrefix = regexp.MustCompile(`^(\d+)_`)

// List returns registered documents, newest upload first.
func (s *Service) List(ctx context.Context) ([]Document, error) {
	var out []Document
	for info := range s.storage.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if info.Err != nil {
			return nil, s.translate(info.Err, "list documents")
		}
		base := strings.TrimPrefix(info.Key, prefix)
		if base == "" || strings.HasSuffix(info.Key, "/") {
			continue
		}

		doc := Document{Key: info.Key, Name: base, Size: info.Size, UploadedAt: info.LastModified}
		if m := timestampPrefix.FindStringSubmatch(base); m != nil {
			doc.Name = base[len(m[0]):]
			var millis int64
			fmt.Sscanf(m[1], "%d", &millis)
			doc.UploadedAt = time.UnixMilli(millis).UTC()
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// DownloadURL issues a short-lived presigned link for a document.
func (s *Service) DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if !strings.HasPrefix(key, prefix) {
		return "", ErrDocumentNotFound
	}
	if _, err := s.storage.StatObject(ctx, s.bucket, key, minio.GetObjectOptions{}); err != nil {
		return "", s.translate(err, "stat document")
	}
	u, err := s.storage.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", s.translate(err, "presign document")
	}
	return u.String(), nil
}

// Remove deletes a document from the registry.
func (s *Service) Remove(ctx context.Context, key string) error {
	if !strings.HasPrefix(key, prefix) {
		return ErrDocumentNotFound
	}
	if _, err := s.storage.StatObject(ctx, s.bucket, key, minio.GetObjectOptions{}); err != nil {
		return s.translate(err, "stat document")
	}
	if err := s.storage.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return s.translate(err, "remove document")
	}
	return nil
}

func (s *Service) translate(err error, op string) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "AccessDenied":
		return ErrStorageDenied
	case "NoSuchKey":
		return ErrDocumentNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
