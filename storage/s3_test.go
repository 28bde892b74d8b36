package storage

import (
	"context"
	"net/url"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	copies  []*s3.CopyObjectInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.objects[*in.Key] = []byte("x")
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) CopyObject(ctx context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.copies = append(f.copies, in)
	src, _ := url.PathUnescape(*in.CopySource)
	key := src[len(*in.Bucket)+1:]
	data, ok := f.objects[key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "missing"}
	}
	f.objects[*in.Key] = data
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "missing"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3Store_StageMove(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := NewS3Store(fake, "catalog", "media/", "", "")

	key, err := store.Stage(ctx, []byte("png"), "shot.png")
	require.NoError(t, err)
	_, staged := fake.objects["media/"+key]
	assert.True(t, staged)

	require.NoError(t, store.Move(ctx, key, "product/1_shot.png"))
	ok, err := store.Exists(ctx, "product/1_shot.png")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3Store_MoveMissing(t *testing.T) {
	store := NewS3Store(newFakeS3(), "catalog", "", "", "")
	err := store.Move(context.Background(), "tmp/none.png", "product/none.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.NoError(t, store.Delete(context.Background(), "tmp/none.png"))
}

func TestS3Store_URL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/product/a.jpg",
		NewS3Store(nil, "b", "", "", "cdn.example.com/").URL("product/a.jpg"))
	assert.Equal(t, "http://localhost:4566/b/product/a.jpg",
		NewS3Store(nil, "b", "", "http://localhost:4566", "").URL("product/a.jpg"))
	assert.Equal(t, "https://b.s3.amazonaws.com/p/product/a.jpg",
		NewS3Store(nil, "b", "p", "", "").URL("product/a.jpg"))
}
