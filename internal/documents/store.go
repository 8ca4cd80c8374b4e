package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/fastidp/fastidp-backend/pkg/enums"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/storage/gcs"
	"github.com/fastidp/fastidp-backend/pkg/types"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
)

const (
	objectPrefix    = "applications"
	sniffBytes      = 3072
	maxNameLength   = 80
	uploadLimit     = 4
	defaultMaxBytes = 15 << 20
)

var allowedContentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/heic",
	"image/heif",
	"application/pdf",
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectStore is the blob storage the documents land in.
type ObjectStore interface {
	Upload(ctx context.Context, objectName, contentType string, r io.Reader) (*gcs.Object, error)
	Delete(ctx context.Context, objectName string) error
	SignedURL(objectName string, expiry time.Duration) (string, error)
}

// File is one uploaded document awaiting storage.
type File struct {
	Category enums.DocumentCategory
	FileName string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

type StoreParams struct {
	Objects     ObjectStore
	Logger      *logger.Logger
	MaxBytes    int64
	URLLifetime time.Duration
}

// Store validates identity documents and writes them under the application's
// prefix.
type Store struct {
	objects     ObjectStore
	logg        *logger.Logger
	maxBytes    int64
	urlLifetime time.Duration
}

func NewStore(params StoreParams) (*Store, error) {
	if params.Objects == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "object store required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	maxBytes := params.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Store{
		objects:     params.Objects,
		logg:        params.Logger,
		maxBytes:    maxBytes,
		urlLifetime: params.URLLifetime,
	}, nil
}

// Save uploads every file concurrently. If any upload fails the whole batch
// fails and objects already written are removed.
func (s *Store) Save(ctx context.Context, applicationID string, files []File) (types.FileURLs, error) {
	for _, f := range files {
		if f.Size > s.maxBytes {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "document too large").
				WithDetails(map[string]any{
					string(f.Category): fmt.Sprintf("must be at most %d MB", s.maxBytes>>20),
				})
		}
	}

	indexes := map[enums.DocumentCategory]int{}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = ObjectName(applicationID, f.Category, indexes[f.Category], f.FileName)
		indexes[f.Category]++
	}

	refs := make([]*types.FileRef, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadLimit)
	for i := range files {
		g.Go(func() error {
			ref, err := s.upload(gctx, names[i], files[i])
			if err != nil {
				return err
			}
			refs[i] = &ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.cleanup(ctx, refs)
		return nil, err
	}

	out := types.FileURLs{}
	for i, f := range files {
		out[f.Category] = append(out[f.Category], *refs[i])
	}
	return out, nil
}

// Discard removes previously stored documents. Failures are logged.
func (s *Store) Discard(ctx context.Context, files types.FileURLs) {
	refs := make([]*types.FileRef, 0, len(files))
	for _, list := range files {
		for i := range list {
			refs = append(refs, &list[i])
		}
	}
	s.cleanup(ctx, refs)
}

// DownloadURLs returns time-limited links for every stored document, keyed by
// category. Documents that cannot be signed keep their stored URL.
func (s *Store) DownloadURLs(ctx context.Context, files types.FileURLs) map[enums.DocumentCategory][]string {
	out := make(map[enums.DocumentCategory][]string, len(files))
	for category, refs := range files {
		for _, ref := range refs {
			link := ref.URL
			if signed, err := s.objects.SignedURL(ref.Path, s.urlLifetime); err == nil {
				link = signed
			} else {
				s.logg.Warn(s.logg.WithField(ctx, "object", ref.Path), "signing document url failed")
			}
			out[category] = append(out[category], link)
		}
	}
	return out
}

func (s *Store) upload(ctx context.Context, objectName string, file File) (types.FileRef, error) {
	if file.Open == nil {
		return types.FileRef{}, pkgerrors.New(pkgerrors.CodeValidation, "document missing").
			WithDetails(map[string]string{string(file.Category): "is required"})
	}
	rc, err := file.Open()
	if err != nil {
		return types.FileRef{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "document unreadable")
	}
	defer func() { _ = rc.Close() }()

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return types.FileRef{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "document unreadable")
	}
	head = head[:n]
	if n == 0 {
		return types.FileRef{}, pkgerrors.New(pkgerrors.CodeValidation, "document is empty").
			WithDetails(map[string]string{string(file.Category): "is empty"})
	}

	detected := mimetype.Detect(head)
	contentType := detected.String()
	if !isAllowed(detected) {
		return types.FileRef{}, pkgerrors.New(pkgerrors.CodeValidation, "unsupported document type").
			WithDetails(map[string]string{
				string(file.Category): fmt.Sprintf("must be a JPEG, PNG, WebP, HEIC or PDF file (got %s)", contentType),
			})
	}
	contentType = baseType(contentType)

	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), rc), s.maxBytes+1)
	obj, err := s.objects.Upload(ctx, objectName, contentType, body)
	if err != nil {
		return types.FileRef{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store document")
	}
	if obj.Size > s.maxBytes {
		_ = s.objects.Delete(ctx, objectName)
		return types.FileRef{}, pkgerrors.New(pkgerrors.CodeValidation, "document too large")
	}

	return types.FileRef{
		Path:        obj.Name,
		URL:         obj.URL,
		FileName:    file.FileName,
		ContentType: contentType,
		Size:        obj.Size,
	}, nil
}

func (s *Store) cleanup(ctx context.Context, refs []*types.FileRef) {
	cleanupCtx := context.WithoutCancel(ctx)
	for _, ref := range refs {
		if ref == nil {
			continue
		}
		if err := s.objects.Delete(cleanupCtx, ref.Path); err != nil {
			s.logg.Error(s.logg.WithField(cleanupCtx, "object", ref.Path), "remove orphaned document", err)
		}
	}
}

// ObjectName is applications/<id>/<category>/<index>-<sanitized name>.
func ObjectName(applicationID string, category enums.DocumentCategory, index int, fileName string) string {
	return path.Join(objectPrefix, sanitize(applicationID), string(category), fmt.Sprintf("%d-%s", index, sanitize(fileName)))
}

func sanitize(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	clean := strings.Trim(unsafeNameChars.ReplaceAllString(base, "_"), "._")
	if clean == "" {
		clean = "file"
	}
	if len(clean) > maxNameLength {
		clean = clean[len(clean)-maxNameLength:]
	}
	return clean
}

func isAllowed(detected *mimetype.MIME) bool {
	for _, allowed := range allowedContentTypes {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}

func baseType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		return strings.TrimSpace(contentType[:idx])
	}
	return contentType
}
