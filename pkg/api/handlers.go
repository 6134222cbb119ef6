package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"emojid/pkg/captioner"
	"emojid/pkg/config"
	"emojid/pkg/imaging"
	"emojid/pkg/logger"
	"emojid/pkg/match"
	"emojid/pkg/registry"
	"emojid/pkg/state"
)

const (
	previewCacheEntries = 256
	previewCacheTTL     = 10 * time.Minute
)

// Handler bundles the HTTP surface dependencies: the registry, the
// captioning collaborator and the directory layout.
type Handler struct {
	reg       *registry.Registry
	svc       captioner.Service
	paths     state.Paths
	threshold float64
	maxUpload int64
	cache     *previewCache
	limiter   *limiterPool
}

// NewHandler builds the HTTP handler set.
func NewHandler(reg *registry.Registry, svc captioner.Service, paths state.Paths, cfg *config.Config) *Handler {
	return &Handler{
		reg:       reg,
		svc:       svc,
		paths:     paths,
		threshold: cfg.Emoji.SimilarityThreshold,
		maxUpload: cfg.Emoji.MaxUploadSize.Int64(),
		cache:     newPreviewCache(previewCacheEntries, previewCacheTTL),
		limiter:   newLimiterPool(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst),
	}
}

// Register attaches all emoji routes to the provided router.
func (h *Handler) Register(r *mux.Router) {
	r.Handle("/api/emoji/upload", h.limiter.RateLimit(http.HandlerFunc(h.upload))).Methods(http.MethodPost)
	r.HandleFunc("/api/emoji/match", h.matchEmoji).Methods(http.MethodPost)
	r.HandleFunc("/api/emoji/approve/{filename}", h.approve).Methods(http.MethodPost)
	r.HandleFunc("/api/emoji/unreviewed", h.listDir(func() string { return h.paths.Unreviewed })).Methods(http.MethodGet)
	r.HandleFunc("/api/emoji/approved", h.listDir(func() string { return h.paths.Approved })).Methods(http.MethodGet)
	r.HandleFunc("/api/emoji/{hash}", h.deleteEmoji).Methods(http.MethodDelete)
	r.HandleFunc("/preview/unreviewed/{filename}", h.preview(func() string { return h.paths.Unreviewed })).Methods(http.MethodGet)
	r.HandleFunc("/preview/approved/{filename}", h.preview(func() string { return h.paths.Approved })).Methods(http.MethodGet)
	r.HandleFunc("/preview/registered/{filename}", h.preview(func() string { return h.paths.Registered })).Methods(http.MethodGet)
}

// upload accepts an image (multipart field "image" or a raw body), names
// it by content hash plus original extension, and stores it in the
// unreviewed staging directory.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	data, origName, err := readUpload(r)
	if err != nil {
		http.Error(w, `{"error":"invalid upload: `+err.Error()+`"}`, http.StatusBadRequest)
		return
	}
	info, err := imaging.Identify(data)
	if err != nil {
		http.Error(w, `{"error":"unsupported or corrupt image"}`, http.StatusBadRequest)
		return
	}
	if _, exists := h.reg.FindByHash(info.Hash); exists {
		http.Error(w, `{"error":"emoji with identical content already registered"}`, http.StatusConflict)
		return
	}
	filename := imaging.HashedFilename(info.Hash, origName)
	dest := filepath.Join(h.paths.Unreviewed, filename)
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		logger.Error("upload_write_failed", "path", dest, "error", err)
		http.Error(w, `{"error":"failed to store upload"}`, http.StatusInternalServerError)
		return
	}
	logger.Info("upload_stored", "filename", filename, "bytes", len(data))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":      "success",
		"filename":    filename,
		"preview_url": "/preview/unreviewed/" + filename,
	})
}

func readUpload(r *http.Request) ([]byte, string, error) {
	if ct := r.Header.Get("Content-Type"); ct != "" && len(ct) >= 19 && ct[:19] == "multipart/form-data" {
		f, hdr, err := r.FormFile("image")
		if err != nil {
			return nil, "", fmt.Errorf("missing image field")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, "", err
		}
		if len(data) == 0 {
			return nil, "", fmt.Errorf("empty image")
		}
		return data, hdr.Filename, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty body")
	}
	return data, "", nil
}

// approve moves an unreviewed file into the approved staging directory
// and writes the optional audit sidecar. The reconciler picks the file up
// on its next cycle.
func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	filename := mux.Vars(r)["filename"]
	src := filepath.Join(h.paths.Unreviewed, filename)
	if _, err := os.Stat(src); err != nil {
		http.Error(w, `{"error":"file not found"}`, http.StatusNotFound)
		return
	}
	dest := filepath.Join(h.paths.Approved, filename)
	if _, err := os.Stat(dest); err == nil {
		_ = os.Remove(dest)
	}
	if err := os.Rename(src, dest); err != nil {
		logger.Error("approve_move_failed", "file", filename, "error", err)
		http.Error(w, `{"error":"approval failed"}`, http.StatusInternalServerError)
		return
	}
	user := r.URL.Query().Get("user")
	if user == "" {
		user = "admin"
	}
	meta := map[string]string{
		"approved_by":       user,
		"approve_time":      strconv.FormatInt(time.Now().Unix(), 10),
		"original_filename": filename,
	}
	if err := WriteApprovalMeta(dest, meta); err != nil {
		logger.Warn("approval_meta_write_failed", "file", filename, "error", err)
	}
	h.cache.Invalidate(src)
	logger.Info("emoji_approved", "file", filename, "user", user)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":      "success",
		"filename":    filename,
		"preview_url": "/preview/approved/" + filename,
	})
}

type matchRequest struct {
	Text string `json:"text"`
}

// matchEmoji extracts emotion keywords from the query text and tries each
// against the tag vocabulary, falling back to the raw text. "No match" is
// a normal negative result reported as 404.
func (h *Handler) matchEmoji(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, `{"error":"invalid json: text required"}`, http.StatusBadRequest)
		return
	}

	queries := h.extractQueries(r.Context(), req.Text)
	snapshot := h.reg.Snapshot()
	for _, q := range queries {
		res, ok := match.ByEmotion(snapshot, q, h.threshold)
		if !ok {
			continue
		}
		h.reg.RecordUsage(res.Record.Hash)
		matchHitsTotal.Inc()
		logger.Info("emoji_matched", "query", q, "tag", res.Tag, "similarity", res.Similarity, "hash", res.Record.Hash)
		resp := map[string]any{
			"status":      "success",
			"text":        req.Text,
			"emoji_path":  res.Record.Path,
			"description": res.Record.Description,
		}
		if b, ok := h.readFile(res.Record.Path); ok {
			resp["base64"] = base64.StdEncoding.EncodeToString(b)
		}
		_ = json.NewEncoder(w).Encode(resp)
		return
	}
	matchMissesTotal.Inc()
	http.Error(w, `{"error":"no matching emoji found"}`, http.StatusNotFound)
}

// extractQueries asks the captioner to pull emotion keywords out of the
// text; when extraction fails or yields nothing the raw text is used.
func (h *Handler) extractQueries(ctx context.Context, text string) []string {
	tags, err := h.svc.ExtractEmotion(ctx, text)
	if err != nil {
		logger.Warn("emotion_extract_failed", "error", err)
		return []string{text}
	}
	if len(tags) == 0 {
		return []string{text}
	}
	return append(tags, text)
}

// deleteEmoji tombstones a record by content hash.
func (h *Handler) deleteEmoji(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	hash := mux.Vars(r)["hash"]
	if !h.reg.DeleteByHash(hash) {
		http.Error(w, `{"error":"emoji not found"}`, http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "success", "hash": hash})
}

type fileEntry struct {
	Filename   string            `json:"filename"`
	PreviewURL string            `json:"preview_url"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// listDir lists supported image files in a staging directory.
func (h *Handler) listDir(dir func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		entries, err := os.ReadDir(dir())
		if err != nil && !os.IsNotExist(err) {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		out := make([]fileEntry, 0, len(entries))
		base := filepath.Base(dir())
		segment := "unreviewed"
		if base == filepath.Base(h.paths.Approved) {
			segment = "approved"
		}
		for _, e := range entries {
			if e.IsDir() || !imaging.SupportedFile(e.Name()) {
				continue
			}
			fe := fileEntry{Filename: e.Name(), PreviewURL: "/preview/" + segment + "/" + e.Name()}
			if segment == "approved" {
				if meta, err := ReadApprovalMeta(filepath.Join(dir(), e.Name())); err == nil && meta != nil {
					fe.Meta = meta
				}
			}
			out = append(out, fe)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"count": len(out), "images": out})
	}
}

// preview serves a staged or registered file through the byte cache.
func (h *Handler) preview(dir func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := filepath.Base(mux.Vars(r)["filename"])
		if !imaging.SupportedFile(filename) {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		path := filepath.Join(dir(), filename)
		data, ok := h.readFile(path)
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		http.ServeContent(w, r, filename, time.Time{}, bytes.NewReader(data))
	}
}

// readFile fetches file bytes through the preview cache.
func (h *Handler) readFile(path string) ([]byte, bool) {
	if b, ok := h.cache.Get(path); ok {
		return b, true
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	h.cache.Set(path, b)
	return b, true
}
