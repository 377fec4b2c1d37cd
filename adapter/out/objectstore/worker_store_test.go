package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"calsync_server/core/port/out"
)

func TestMemoryStoreConditionalPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, "b", "k"); !errors.Is(err, out.ErrDocumentNotFound) {
		t.Fatalf("Get missing: err = %v, want ErrDocumentNotFound", err)
	}

	v1, err := s.Put(ctx, "b", "k", []byte(`[1]`), out.WriteCondition{IfAbsent: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Put(ctx, "b", "k", []byte(`[2]`), out.WriteCondition{IfAbsent: true}); !errors.Is(err, out.ErrVersionConflict) {
		t.Fatalf("second create: err = %v, want conflict", err)
	}

	v2, err := s.Put(ctx, "b", "k", []byte(`[2]`), out.WriteCondition{IfVersion: v1})
	if err != nil {
		t.Fatalf("update at v1: %v", err)
	}
	if _, err := s.Put(ctx, "b", "k", []byte(`[3]`), out.WriteCondition{IfVersion: v1}); !errors.Is(err, out.ErrVersionConflict) {
		t.Fatalf("stale update: err = %v, want conflict", err)
	}

	doc, err := s.Get(ctx, "b", "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(doc.Body) != `[2]` || doc.Version != v2 {
		t.Errorf("Get = %s@%s, want [2]@%s", doc.Body, doc.Version, v2)
	}

	if _, err := s.Put(ctx, "b", "k", []byte(`[4]`), out.WriteCondition{}); err != nil {
		t.Errorf("unconditional put: %v", err)
	}
}

func TestMemoryStoreListChildKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{
		"users/bob/info.json",
		"users/alice/info.json",
		"users/alice/google_token.json",
		"users/readme.txt",
		"sync/processed_events.json",
	} {
		if _, err := s.Put(ctx, "b", k, []byte(`{}`), out.WriteCondition{}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Put(ctx, "other", "users/carol/info.json", []byte(`{}`), out.WriteCondition{}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListChildKeys(ctx, "b", "users/")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"users/alice/", "users/bob/"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListChildKeys = %v, want %v", got, want)
	}

	ok, _ := s.Exists(ctx, "b", "users/alice/google_token.json")
	if !ok {
		t.Error("Exists = false for stored key")
	}
	ok, _ = s.Exists(ctx, "b", "users/alice/outlook_token.json")
	if ok {
		t.Error("Exists = true for missing key")
	}
}

// fakeS3 keeps objects in a map and honours If-Match / If-None-Match.
type fakeS3 struct {
	objects map[string]string
	etags   map[string]string
	seq     int
	pages   []*s3.ListObjectsV2Output
	puts    []*s3.PutObjectInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]string{}, etags: map[string]string{}}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader(body)),
		ETag: aws.String(f.etags[aws.ToString(in.Key)]),
	}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	key := aws.ToString(in.Key)
	_, exists := f.objects[key]
	if aws.ToString(in.IfNoneMatch) == "*" && exists {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed"}
	}
	if in.IfMatch != nil && (!exists || f.etags[key] != aws.ToString(in.IfMatch)) {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed"}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, in.Body); err != nil {
		return nil, err
	}
	f.seq++
	etag := `"` + string(rune('a'+f.seq)) + `"`
	f.objects[key] = buf.String()
	f.etags[key] = etag
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if len(f.pages) == 0 {
		return &s3.ListObjectsV2Output{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func TestS3StoreGetPut(t *testing.T) {
	ctx := context.Background()
	api := newFakeS3()
	s := NewS3Store(api)

	if _, err := s.Get(ctx, "b", "k"); !errors.Is(err, out.ErrDocumentNotFound) {
		t.Fatalf("Get missing: err = %v", err)
	}
	v1, err := s.Put(ctx, "b", "k", []byte(`{"a":1}`), out.WriteCondition{IfAbsent: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := aws.ToString(api.puts[0].IfNoneMatch); got != "*" {
		t.Errorf("IfNoneMatch = %q, want *", got)
	}
	if _, err := s.Put(ctx, "b", "k", []byte(`{}`), out.WriteCondition{IfAbsent: true}); !errors.Is(err, out.ErrVersionConflict) {
		t.Errorf("duplicate create: err = %v, want conflict", err)
	}

	doc, err := s.Get(ctx, "b", "k")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Version != v1 || string(doc.Body) != `{"a":1}` {
		t.Errorf("Get = %s@%s", doc.Body, doc.Version)
	}

	if _, err := s.Put(ctx, "b", "k", []byte(`{"a":2}`), out.WriteCondition{IfVersion: `"stale"`}); !errors.Is(err, out.ErrVersionConflict) {
		t.Errorf("stale update: err = %v, want conflict", err)
	}
	if _, err := s.Put(ctx, "b", "k", []byte(`{"a":2}`), out.WriteCondition{IfVersion: v1}); err != nil {
		t.Errorf("update: %v", err)
	}

	ok, err := s.Exists(ctx, "b", "k")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	ok, err = s.Exists(ctx, "b", "missing")
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v", ok, err)
	}
}

func TestS3StoreListChildKeysPaginates(t *testing.T) {
	api := newFakeS3()
	api.pages = []*s3.ListObjectsV2Output{
		{
			CommonPrefixes:        []types.CommonPrefix{{Prefix: aws.String("users/bob/")}},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		{
			CommonPrefixes: []types.CommonPrefix{{Prefix: aws.String("users/alice/")}, {Prefix: aws.String("users/bob/")}},
		},
	}

	got, err := NewS3Store(api).ListChildKeys(context.Background(), "b", "users/")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"users/alice/", "users/bob/"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListChildKeys = %v, want %v", got, want)
	}
}
