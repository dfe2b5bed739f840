package native

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/SB-IM/peerenv/internal/env"
)

// BlobPathPrefix is the HTTP path prefix object URLs are served under.
const BlobPathPrefix = "/blob/"

// ObjectURLRegistry maps object URLs to blobs.
// It is safe for concurrent use.
type ObjectURLRegistry struct {
	origin string
	logger zerolog.Logger

	mu    sync.RWMutex
	blobs map[string]env.Blob // Keyed by uuid.
}

// NewObjectURLRegistry returns a registry minting URLs of the form blob:<origin>/<uuid>.
// An empty origin is rendered as "null", like an opaque browser origin.
func NewObjectURLRegistry(origin string, logger *zerolog.Logger) *ObjectURLRegistry {
	if origin == "" {
		origin = "null"
	}
	return &ObjectURLRegistry{
		origin: strings.TrimSuffix(origin, "/"),
		logger: logger.With().Str("component", "ObjectURLRegistry").Logger(),
		blobs:  make(map[string]env.Blob),
	}
}

// Create stores a copy of blob and returns a new unique URL for it.
func (r *ObjectURLRegistry) Create(blob env.Blob) string {
	id := uuid.NewString()
	stored := env.Blob{
		Type: blob.Type,
		Data: append([]byte(nil), blob.Data...),
	}

	r.mu.Lock()
	r.blobs[id] = stored
	r.mu.Unlock()

	return "blob:" + r.origin + "/" + id
}

// Revoke forgets url. Unknown URLs are ignored.
func (r *ObjectURLRegistry) Revoke(url string) {
	id, ok := r.id(url)
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.blobs, id)
	r.mu.Unlock()
}

// Resolve returns the blob url refers to, if it has not been revoked.
func (r *ObjectURLRegistry) Resolve(url string) (env.Blob, bool) {
	id, ok := r.id(url)
	if !ok {
		return env.Blob{}, false
	}
	blob, ok := r.lookup(id)
	if !ok {
		return env.Blob{}, false
	}
	return env.Blob{Type: blob.Type, Data: append([]byte(nil), blob.Data...)}, true
}

// Len returns the number of live URLs.
func (r *ObjectURLRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// Handler serves live blobs at BlobPathPrefix + uuid.
func (r *ObjectURLRegistry) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc(BlobPathPrefix+"{id}", r.handleBlob()).Methods(http.MethodGet, http.MethodHead)
	return router
}

func (r *ObjectURLRegistry) handleBlob() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := mux.Vars(req)["id"]
		blob, ok := r.lookup(id)
		if !ok {
			r.logger.Debug().Str("id", id).Msg("blob not found")
			http.NotFound(w, req)
			return
		}

		contentType := blob.Type
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
		w.Header().Set("Cache-Control", "no-store")
		if req.Method == http.MethodHead {
			return
		}
		if _, err := w.Write(blob.Data); err != nil {
			r.logger.Err(err).Str("id", id).Msg("could not write blob")
		}
	}
}

func (r *ObjectURLRegistry) lookup(id string) (env.Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	blob, ok := r.blobs[id]
	return blob, ok
}

func (r *ObjectURLRegistry) id(url string) (string, bool) {
	prefix := "blob:" + r.origin + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}
