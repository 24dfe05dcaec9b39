package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFSStorePutGetList(t *testing.T) {
	ctx := context.Background()
	store, err := NewFS(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, DriverFilesystem, store.Driver())

	info, err := store.Put(ctx, "quote-maps/a/mapa.pdf", strings.NewReader("%PDF"), PutOptions{
		ContentType: "application/pdf",
		Metadata:    map[string]string{"items": "3"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(4), info.Size)
	require.Equal(t, "application/pdf", info.ContentType)

	_, err = store.Put(ctx, "quote-maps/b/mapa.xlsx", strings.NewReader("PK"), PutOptions{})
	require.NoError(t, err)
	_, err = store.Put(ctx, "other/file.txt", strings.NewReader("x"), PutOptions{})
	require.NoError(t, err)

	got, rc, err := store.Get(ctx, "quote-maps/a/mapa.pdf")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "%PDF", string(body))
	require.Equal(t, "3", got.Metadata["items"])

	list, err := store.List(ctx, "quote-maps/")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "quote-maps/a/mapa.pdf", list[0].Key)
	require.Equal(t, "quote-maps/b/mapa.xlsx", list[1].Key)

	_, _, err = store.Get(ctx, "quote-maps/missing.pdf")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFSStoreRejectsUnsafeKeys(t *testing.T) {
	store, err := NewFS(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "   ", "/etc/passwd", "../escape", "a/../../b"} {
		_, err := store.Put(context.Background(), key, strings.NewReader("x"), PutOptions{})
		require.Error(t, err, key)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	store, err := Open(context.Background(), Options{Driver: DriverFilesystem, Dir: t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, DriverFilesystem, store.Driver())

	_, err = Open(context.Background(), Options{Driver: DriverS3})
	require.Error(t, err)

	_, err = Open(context.Background(), Options{Driver: "gcs"})
	require.Error(t, err)
}

func TestQuoteMapKey(t *testing.T) {
	at := time.Date(2026, time.March, 14, 9, 30, 5, 0, time.UTC)
	require.Equal(t, "quote-maps/20260314T093005Z/mapa-comparativo.pdf", QuoteMapKey(at, "mapa-comparativo.pdf"))
}

// fakeS3 serves the path-style subset of the S3 API used by S3Store.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType string
}

func (f *fakeS3) object(key string) (fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	return obj, ok
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-03-14T09:30:00Z</LastModified></Contents>", k, len(f.objects[k].body))
		}
		b.WriteString("</ListBucketResult>")
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(b.String()))
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = fakeObject{body: body, contentType: r.Header.Get("Content-Type")}
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", obj.contentType)
		w.Header().Set("Content-Length", fmt.Sprint(len(obj.body)))
		w.Header().Set("Last-Modified", time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC).Format(http.TimeFormat))
		_, _ = w.Write(obj.body)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func TestS3StoreAgainstFakeEndpoint(t *testing.T) {
	fake := &fakeS3{objects: map[string]fakeObject{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	store, err := NewS3(ctx, S3Config{
		Bucket:          "exports",
		Endpoint:        srv.URL,
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		HTTPClient:      srv.Client(),
	})
	require.NoError(t, err)
	require.Equal(t, DriverS3, store.Driver())

	info, err := store.Put(ctx, "quote-maps/a/mapa.pdf", strings.NewReader("%PDF-1.7"), PutOptions{ContentType: "application/pdf"})
	require.NoError(t, err)
	require.Equal(t, int64(8), info.Size)
	stored, ok := fake.object("quote-maps/a/mapa.pdf")
	require.True(t, ok)
	require.Equal(t, "application/pdf", stored.contentType)

	got, rc, err := store.Get(ctx, "quote-maps/a/mapa.pdf")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.7", string(body))
	require.Equal(t, "application/pdf", got.ContentType)

	list, err := store.List(ctx, "quote-maps/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(8), list[0].Size)

	_, _, err = store.Get(ctx, "quote-maps/none.pdf")
	require.ErrorIs(t, err, ErrNotFound)
}
