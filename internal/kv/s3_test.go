package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/keepershare/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	body []byte
	etag string
}

// fakeS3 emulates the conditional-write semantics of S3 in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	seq     int
	getErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func precondition() error {
	return &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.body)), ETag: aws.String(obj.etag)}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := aws.ToString(in.Key)
	cur, exists := f.objects[key]
	if in.IfNoneMatch != nil && exists {
		return nil, precondition()
	}
	if in.IfMatch != nil && (!exists || cur.etag != aws.ToString(in.IfMatch)) {
		return nil, precondition()
	}

	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.seq++
	etag := fmt.Sprintf(`"%d"`, f.seq)
	f.objects[key] = fakeObject{body: body, etag: etag}
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0)
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[k].body)))})
	}
	return out, nil
}

func TestS3Store_Basics(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := newS3Store(fake, "vault", "ks/")

	_, err := s.Get(ctx, "items/1")
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, s.Set(ctx, "items/1", []byte("a")))
	require.NoError(t, s.Set(ctx, "items/2", []byte("b")))
	require.NoError(t, s.Set(ctx, "audit/1", []byte("c")))

	assert.Contains(t, fake.objects, "ks/items/1", "prefix must be applied")

	v, err := s.Get(ctx, "items/1")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), v)

	keys, err := s.List(ctx, "items/")
	require.NoError(t, err)
	assert.Equal(t, []string{"items/1", "items/2"}, keys)

	require.NoError(t, s.Delete(ctx, "items/1"))
	_, err = s.Get(ctx, "items/1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestS3Store_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := newS3Store(newFakeS3(), "vault", "")

	ok, err := s.CompareAndSwap(ctx, "k", nil, []byte("v1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndSwap(ctx, "k", nil, []byte("v1"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwap(ctx, "k", []byte("nope"), []byte("v2"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwap(ctx, "k", []byte("v1"), []byte("v2"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndSwap(ctx, "k", []byte("v2"), nil)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestS3Store_TombstoneIsAbsent(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := newS3Store(fake, "vault", "")

	// a delete that left its tombstone behind
	fake.objects["k"] = fakeObject{body: []byte{}, etag: `"t"`}

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	ok, err := s.CompareAndSwap(ctx, "k", nil, []byte("fresh"))
	require.NoError(t, err)
	assert.True(t, ok, "create must overwrite a tombstone")
}

func TestS3Store_ConcurrentSwapsOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	s := newS3Store(newFakeS3(), "vault", "")
	require.NoError(t, s.Set(ctx, "k", []byte("v0")))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.CompareAndSwap(ctx, "k", []byte("v0"), []byte(fmt.Sprintf("v%d", i+1)))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestS3Store_GetError(t *testing.T) {
	fake := newFakeS3()
	fake.getErr = errors.New("network")
	s := newS3Store(fake, "vault", "")

	_, err := s.Get(context.Background(), "k")
	assert.ErrorContains(t, err, "network")

	_, err = s.CompareAndSwap(context.Background(), "k", nil, []byte("x"))
	assert.ErrorContains(t, err, "network")
}
