package upload

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sdko-org/portfolio-backend/internal/apperr"
	"github.com/sdko-org/portfolio-backend/internal/audit"
	"github.com/sdko-org/portfolio-backend/internal/storage"
	"github.com/sirupsen/logrus"
)

const maxOriginalNameLen = 200

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// File is an attachment received with a submission.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Content     io.Reader
}

// Stored describes a file that has been moved into managed storage.
type Stored struct {
	Filename string
	Path     string
	Size     int64
}

type Config struct {
	MaxFileSize  int64
	AllowedTypes []string
}

type Handler struct {
	storage storage.Storage
	audit   audit.Recorder
	log     *logrus.Entry
	maxSize int64
	allowed map[string]bool
	order   []string
}

func NewHandler(logger *logrus.Logger, store storage.Storage, rec audit.Recorder, cfg Config) *Handler {
	allowed := make(map[string]bool, len(cfg.AllowedTypes))
	var order []string
	for _, ext := range cfg.AllowedTypes {
		ext = strings.ToLower(strings.TrimPrefix(ext, "."))
		if !allowed[ext] {
			allowed[ext] = true
			order = append(order, strings.ToUpper(ext))
		}
	}
	return &Handler{
		storage: store,
		audit:   rec,
		log:     logger.WithField("component", "upload"),
		maxSize: cfg.MaxFileSize,
		allowed: allowed,
		order:   order,
	}
}

// Validate checks size and extension without touching storage.
func (h *Handler) Validate(f *File) error {
	if f.Size > h.maxSize {
		return apperr.Validation(fmt.Sprintf("File size exceeds %s limit", humanSize(h.maxSize)))
	}
	if !h.allowed[extension(f.Name)] {
		return apperr.Validation("Invalid file type. Only " + h.allowedList() + " files are allowed")
	}
	return nil
}

// Store validates f and moves it into storage under a generated name. A nil
// file is not an error and yields a nil result.
func (h *Handler) Store(ctx context.Context, f *File) (*Stored, error) {
	if f == nil {
		return nil, nil
	}
	if err := h.Validate(f); err != nil {
		return nil, err
	}

	name := GenerateName(f.Name)
	// the declared size can lie; never read past the limit
	content := &countingReader{r: io.LimitReader(f.Content, h.maxSize+1)}

	path, err := h.storage.Save(ctx, name, content, f.ContentType)
	if err != nil {
		h.log.WithError(err).WithField("filename", name).Error("Failed to store upload")
		return nil, apperr.Storage("Failed to upload file", err)
	}
	if content.n > h.maxSize {
		h.discard(ctx, name)
		return nil, apperr.Validation(fmt.Sprintf("File size exceeds %s limit", humanSize(h.maxSize)))
	}

	h.audit.Log(ctx, audit.EventFileUpload, "Resume file uploaded", map[string]any{
		"filename": name,
		"size":     content.n,
		"type":     f.ContentType,
	})

	return &Stored{Filename: name, Path: path, Size: content.n}, nil
}

// Discard removes a stored file whose submission could not be recorded.
func (h *Handler) Discard(ctx context.Context, s *Stored) error {
	if s == nil {
		return nil
	}
	return h.discard(ctx, s.Filename)
}

func (h *Handler) discard(ctx context.Context, name string) error {
	if err := h.storage.Delete(ctx, name); err != nil {
		h.log.WithError(err).WithField("filename", name).Error("Failed to remove upload")
		return err
	}
	return nil
}

func (h *Handler) allowedList() string {
	exts := h.order
	switch len(exts) {
	case 0:
		return "no"
	case 1:
		return exts[0]
	case 2:
		return exts[0] + " and " + exts[1]
	}
	return strings.Join(exts[:len(exts)-1], ", ") + ", and " + exts[len(exts)-1]
}

// GenerateName returns "<random token>_<original name stripped to [A-Za-z0-9._-]>".
func GenerateName(original string) string {
	base := unsafeFilenameChars.ReplaceAllString(filepath.Base(strings.ReplaceAll(original, `\`, "/")), "")
	base = strings.TrimLeft(base, ".")
	if len(base) > maxOriginalNameLen {
		base = base[len(base)-maxOriginalNameLen:]
	}
	if base == "" || extension(base) == "" {
		base = "resume." + extension(original)
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return token + "_" + base
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func humanSize(n int64) string {
	const mb = 1024 * 1024
	if n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
