package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/httputil"
	"github.com/Kxd395/AxxessWebUI/pkg/observability"
	"github.com/Kxd395/AxxessWebUI/pkg/storage/files"
)

const (
	profileImagePrefix = "profile/"
	profileImageRoute  = "/files/profile/"

	// DefaultMaxImageBytes caps profile image uploads
	DefaultMaxImageBytes int64 = 5 << 20
)

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// UploadError is a client mistake in an image upload
type UploadError struct {
	Message string
}

func (e *UploadError) Error() string {
	return e.Message
}

// ImageHandlers stores and serves profile images
type ImageHandlers struct {
	storage  files.Storage
	maxBytes int64
}

// NewImageHandlers creates image handlers over storage. A non-positive
// maxBytes selects DefaultMaxImageBytes.
func NewImageHandlers(storage files.Storage, maxBytes int64) *ImageHandlers {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &ImageHandlers{storage: storage, maxBytes: maxBytes}
}

// RegisterRoutes registers the file routes
func (h *ImageHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(profileImageRoute+"{name}", h.serveProfileImage).Methods("GET", "HEAD")
}

// Store saves the "file" part of a multipart upload and returns the URL it is served at
func (h *ImageHandlers) Store(r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		return "", &UploadError{Message: "Invalid upload: " + err.Error()}
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", &UploadError{Message: "Missing file field"}
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		return "", &UploadError{Message: fmt.Sprintf("Image exceeds %d bytes", h.maxBytes)}
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", &UploadError{Message: "Empty file"}
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", &UploadError{Message: fmt.Sprintf("Unsupported image type %s", contentType)}
	}

	name := uuid.NewString() + ext
	content := io.MultiReader(bytes.NewReader(head), file)
	if err := h.storage.Upload(r.Context(), profileImagePrefix+name, content, contentType); err != nil {
		return "", fmt.Errorf("failed to store profile image: %w", err)
	}

	return profileImageRoute + name, nil
}

// Remove deletes a previously stored image. URLs not served by these handlers are ignored.
func (h *ImageHandlers) Remove(ctx context.Context, url string) error {
	name, ok := strings.CutPrefix(url, profileImageRoute)
	if !ok || name == "" {
		return nil
	}
	if err := h.storage.Delete(ctx, profileImagePrefix+name); err != nil && !errors.Is(err, files.ErrNotFound) {
		return fmt.Errorf("failed to delete profile image: %w", err)
	}
	return nil
}

// serveProfileImage handles GET /files/profile/{name}
func (h *ImageHandlers) serveProfileImage(w http.ResponseWriter, r *http.Request) {
	name, err := httputil.ParsePathString(r, "name")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if _, err := files.CleanName(name); err != nil || strings.Contains(name, "/") {
		httputil.WriteNotFound(w, auth.MsgUserNotFound)
		return
	}

	obj, err := h.storage.Open(r.Context(), profileImagePrefix+name)
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			httputil.WriteNotFound(w, auth.MsgUserNotFound)
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("failed to open profile image")
		httputil.WriteInternalError(w, auth.MsgDefault)
		return
	}
	defer obj.Body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to stream profile image")
	}
}
