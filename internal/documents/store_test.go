package documents

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fastidp/fastidp-backend/pkg/enums"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/storage/gcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")
	jpgBytes = append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{0}, 64)...)
)

type memoryObjects struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	failOn    string
	deleted   []string
	signErr   error
	uploadErr error
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryObjects) Upload(ctx context.Context, name, contentType string, r io.Reader) (*gcs.Object, error) {
	if m.failOn != "" && strings.Contains(name, m.failOn) {
		return nil, m.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = data
	m.types[name] = contentType
	return &gcs.Object{
		Bucket:      "docs",
		Name:        name,
		URL:         gcs.PublicURL("docs", name),
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (m *memoryObjects) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	m.deleted = append(m.deleted, name)
	return nil
}

func (m *memoryObjects) SignedURL(name string, expiry time.Duration) (string, error) {
	if m.signErr != nil {
		return "", m.signErr
	}
	return "https://signed.example/" + name, nil
}

func fileOf(category enums.DocumentCategory, name string, content []byte) File {
	return File{
		Category: category,
		FileName: name,
		Size:     int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

func newTestStore(t *testing.T, objects ObjectStore) *Store {
	t.Helper()
	store, err := NewStore(StoreParams{
		Objects:  objects,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		MaxBytes: 1 << 20,
	})
	require.NoError(t, err)
	return store
}

func TestSaveUploadsEveryDocument(t *testing.T) {
	objects := newMemoryObjects()
	store := newTestStore(t, objects)

	urls, err := store.Save(context.Background(), "app-1", []File{
		fileOf(enums.DocumentDriversLicense, "front.jpg", jpgBytes),
		fileOf(enums.DocumentDriversLicense, "back.png", pngBytes),
		fileOf(enums.DocumentPassportPhoto, "me.png", pngBytes),
		fileOf(enums.DocumentSignature, "sig.pdf", pdfBytes),
	})
	require.NoError(t, err)

	require.Len(t, urls[enums.DocumentDriversLicense], 2)
	assert.Equal(t, "applications/app-1/drivers_license/0-front.jpg", urls[enums.DocumentDriversLicense][0].Path)
	assert.Equal(t, "applications/app-1/drivers_license/1-back.png", urls[enums.DocumentDriversLicense][1].Path)
	assert.Equal(t, "image/jpeg", urls[enums.DocumentDriversLicense][0].ContentType)
	assert.Equal(t, "application/pdf", urls[enums.DocumentSignature][0].ContentType)
	assert.Len(t, objects.objects, 4)
	assert.Equal(t, pngBytes, objects.objects["applications/app-1/passport_photo/0-me.png"])
}

func TestSaveRejectsUnsupportedType(t *testing.T) {
	objects := newMemoryObjects()
	store := newTestStore(t, objects)

	_, err := store.Save(context.Background(), "app-1", []File{
		fileOf(enums.DocumentSignature, "notes.txt", []byte("just some text, not an image")),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, objects.objects)
}

func TestSaveRejectsOversizedDocument(t *testing.T) {
	store := newTestStore(t, newMemoryObjects())
	big := fileOf(enums.DocumentPassportPhoto, "huge.png", pngBytes)
	big.Size = 2 << 20

	_, err := store.Save(context.Background(), "app-1", []File{big})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSaveFailureRemovesUploadedObjects(t *testing.T) {
	objects := newMemoryObjects()
	objects.failOn = "signature"
	objects.uploadErr = errors.New("bucket unavailable")
	store := newTestStore(t, objects)

	_, err := store.Save(context.Background(), "app-1", []File{
		fileOf(enums.DocumentDriversLicense, "front.jpg", jpgBytes),
		fileOf(enums.DocumentPassportPhoto, "me.png", pngBytes),
		fileOf(enums.DocumentSignature, "sig.pdf", pdfBytes),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Empty(t, objects.objects)
}

func TestDownloadURLsFallsBackToStoredURL(t *testing.T) {
	objects := newMemoryObjects()
	store := newTestStore(t, objects)
	urls, err := store.Save(context.Background(), "app-1", []File{
		fileOf(enums.DocumentSignature, "sig.pdf", pdfBytes),
	})
	require.NoError(t, err)

	links := store.DownloadURLs(context.Background(), urls)
	assert.Equal(t, []string{"https://signed.example/applications/app-1/signature/0-sig.pdf"}, links[enums.DocumentSignature])

	objects.signErr = errors.New("no signer")
	links = store.DownloadURLs(context.Background(), urls)
	assert.Equal(t, []string{urls[enums.DocumentSignature][0].URL}, links[enums.DocumentSignature])
}

func TestObjectNameSanitizes(t *testing.T) {
	name := ObjectName("app 1", enums.DocumentPassportPhoto, 0, `..\..\My Photo (1).HEIC`)
	assert.Equal(t, "applications/app_1/passport_photo/0-My_Photo_1_.HEIC", name)
	assert.Equal(t, "applications/a/signature/2-file", ObjectName("a", enums.DocumentSignature, 2, ""))
}

func TestDiscardRemovesObjects(t *testing.T) {
	objects := newMemoryObjects()
	store := newTestStore(t, objects)
	urls, err := store.Save(context.Background(), "app-1", []File{
		fileOf(enums.DocumentSignature, "sig.pdf", pdfBytes),
		fileOf(enums.DocumentPassportPhoto, "me.png", pngBytes),
	})
	require.NoError(t, err)
	require.Len(t, objects.objects, 2)

	store.Discard(context.Background(), urls)
	assert.Empty(t, objects.objects)
	assert.Len(t, objects.deleted, 2)
}
