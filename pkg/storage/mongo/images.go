package mongo

import (
	"bytes"
	"context"
	"errors"
	"io"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"

	"forum/pkg/storage"
)

// SaveImage streams r into the images bucket and returns the hex id of the stored file.
func (s *Storage) SaveImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	fileID := primitive.NewObjectID()
	uploadStream, err := s.images.OpenUploadStreamWithID(fileID, filename)
	if err != nil {
		return "", err
	}
	defer uploadStream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		uploadStream.SetWriteDeadline(deadline)
	}

	if _, err := io.Copy(uploadStream, r); err != nil {
		uploadStream.Abort()
		return "", err
	}

	return fileID.Hex(), nil
}

func (s *Storage) Image(ctx context.Context, id string) ([]byte, error) {
	fileID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, storage.ErrImageNotFound
	}

	stream, err := s.images.OpenDownloadStream(fileID)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, storage.ErrImageNotFound
	}
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		stream.SetReadDeadline(deadline)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Storage) DeleteImage(ctx context.Context, id string) error {
	fileID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return storage.ErrImageNotFound
	}

	err = s.images.DeleteContext(ctx, fileID)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return storage.ErrImageNotFound
	}
	return err
}
