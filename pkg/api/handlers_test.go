package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"

	"emojid/pkg/captioner"
	"emojid/pkg/config"
	"emojid/pkg/imaging"
	"emojid/pkg/models"
	"emojid/pkg/registry"
	"emojid/pkg/state"
	"emojid/pkg/store"
)

type stubService struct {
	tags       []string
	extractErr error
}

func (s *stubService) Describe(ctx context.Context, data []byte, format string) (string, []string, error) {
	return "stub description", s.tags, nil
}

func (s *stubService) ExtractEmotion(ctx context.Context, text string) ([]string, error) {
	return s.tags, s.extractErr
}

func (s *stubService) DecideEviction(ctx context.Context, cands []captioner.EvictionCandidate, newDescription string) (captioner.Decision, error) {
	return captioner.Decision{}, nil
}

func testServer(t *testing.T, svc captioner.Service) (*httptest.Server, *registry.Registry, state.Paths) {
	t.Helper()
	paths := state.DerivePaths(t.TempDir())
	if err := state.EnsureStateDirs(paths); err != nil {
		t.Fatal(err)
	}
	reg := registry.New(store.NewRecordStore(paths.Records), paths, 100, false)
	reg.Initialize()

	cfg := &config.Config{}
	cfg.Emoji.SimilarityThreshold = 0.4
	cfg.Emoji.MaxUploadSize = config.SizeBytes(8 << 20)
	cfg.Security.RateLimit.RPS = 1000
	cfg.Security.RateLimit.Burst = 1000

	h := NewHandler(reg, svc, paths, cfg)
	r := mux.NewRouter()
	h.Register(r)
	srv := httptest.NewServer(RequestID(r))
	t.Cleanup(srv.Close)
	return srv, reg, paths
}

func pngBytes(t *testing.T, size int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, size, size))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func registerEmoji(t *testing.T, reg *registry.Registry, paths state.Paths, hash string, tags ...string) models.EmojiRecord {
	t.Helper()
	staged := filepath.Join(paths.Approved, hash+".png")
	if err := os.WriteFile(staged, pngBytes(t, 4), 0o600); err != nil {
		t.Fatal(err)
	}
	rec := models.NewEmojiRecord(hash, staged, hash+".png", "png")
	rec.Description = "desc " + hash
	rec.EmotionTags = tags
	if err := reg.RegisterNew(rec); err != nil {
		t.Fatal(err)
	}
	out, _ := reg.FindByHash(hash)
	return out
}

func TestUploadMultipart(t *testing.T) {
	srv, _, paths := testServer(t, &stubService{})

	img := pngBytes(t, 4)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "cat.png")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(img)
	mw.Close()

	resp, err := http.Post(srv.URL+"/api/emoji/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}

	// the staged file is named by content hash
	info, err := imaging.Identify(img)
	if err != nil {
		t.Fatal(err)
	}
	want := info.Hash + ".png"
	if out["filename"] != want {
		t.Fatalf("filename = %q, want %q", out["filename"], want)
	}
	if _, err := os.Stat(filepath.Join(paths.Unreviewed, want)); err != nil {
		t.Fatalf("staged file missing: %v", err)
	}
}

func TestUploadRawBody(t *testing.T) {
	srv, _, paths := testServer(t, &stubService{})
	img := pngBytes(t, 4)
	resp, err := http.Post(srv.URL+"/api/emoji/upload", "application/octet-stream", bytes.NewReader(img))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	entries, _ := os.ReadDir(paths.Unreviewed)
	if len(entries) != 1 {
		t.Fatalf("unreviewed dir has %d entries, want 1", len(entries))
	}
}

func TestUploadRejectsGarbage(t *testing.T) {
	srv, _, _ := testServer(t, &stubService{})
	resp, err := http.Post(srv.URL+"/api/emoji/upload", "application/octet-stream", bytes.NewReader([]byte("not an image")))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadDedupesByContent(t *testing.T) {
	srv, _, paths := testServer(t, &stubService{})
	img := pngBytes(t, 4)
	for i := 0; i < 2; i++ {
		resp, err := http.Post(srv.URL+"/api/emoji/upload", "application/octet-stream", bytes.NewReader(img))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}
	entries, _ := os.ReadDir(paths.Unreviewed)
	if len(entries) != 1 {
		t.Fatalf("identical uploads should collapse to one file, got %d", len(entries))
	}
}

func TestUploadRejectsRegisteredContent(t *testing.T) {
	srv, reg, paths := testServer(t, &stubService{})

	img := pngBytes(t, 4)
	info, err := imaging.Identify(img)
	if err != nil {
		t.Fatal(err)
	}
	staged := filepath.Join(paths.Approved, "x.png")
	if err := os.WriteFile(staged, img, 0o600); err != nil {
		t.Fatal(err)
	}
	rec := models.NewEmojiRecord(info.Hash, staged, info.Hash+".png", "png")
	rec.Description = "d"
	if err := reg.RegisterNew(rec); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(srv.URL+"/api/emoji/upload", "application/octet-stream", bytes.NewReader(img))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestApproveFlow(t *testing.T) {
	srv, _, paths := testServer(t, &stubService{})

	img := pngBytes(t, 4)
	info, err := imaging.Identify(img)
	if err != nil {
		t.Fatal(err)
	}
	name := info.Hash + ".png"
	if err := os.WriteFile(filepath.Join(paths.Unreviewed, name), img, 0o600); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(srv.URL+"/api/emoji/approve/"+name+"?user=reviewer1", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if _, err := os.Stat(filepath.Join(paths.Unreviewed, name)); !os.IsNotExist(err) {
		t.Fatal("file should leave the unreviewed dir")
	}
	approved := filepath.Join(paths.Approved, name)
	if _, err := os.Stat(approved); err != nil {
		t.Fatalf("file should land in the approved dir: %v", err)
	}
	meta, err := ReadApprovalMeta(approved)
	if err != nil {
		t.Fatal(err)
	}
	if meta["approved_by"] != "reviewer1" {
		t.Fatalf("meta = %v", meta)
	}
}

func TestApproveMissingFile(t *testing.T) {
	srv, _, _ := testServer(t, &stubService{})
	resp, err := http.Post(srv.URL+"/api/emoji/approve/nope.png", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMatch(t *testing.T) {
	svc := &stubService{tags: []string{"happy"}}
	srv, reg, paths := testServer(t, svc)
	registerEmoji(t, reg, paths, "aaa", "happy", "joyful")

	resp, err := http.Post(srv.URL+"/api/emoji/match", "application/json",
		bytes.NewReader([]byte(`{"text":"what a wonderful day"}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["base64"] == nil || out["base64"] == "" {
		t.Fatal("match response should carry the image bytes")
	}

	// a hit updates usage statistics
	got, _ := reg.FindByHash("aaa")
	if got.UsageCount != 1 {
		t.Fatalf("usage = %d, want 1", got.UsageCount)
	}
}

func TestMatchNoResult(t *testing.T) {
	svc := &stubService{tags: []string{"furious"}}
	srv, reg, paths := testServer(t, svc)
	registerEmoji(t, reg, paths, "aaa", "serene")

	resp, err := http.Post(srv.URL+"/api/emoji/match", "application/json",
		bytes.NewReader([]byte(`{"text":"unrelated"}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMatchFallsBackToRawText(t *testing.T) {
	// extraction fails; the raw text still matches the tag vocabulary
	svc := &stubService{extractErr: fmt.Errorf("model down")}
	srv, reg, paths := testServer(t, svc)
	registerEmoji(t, reg, paths, "aaa", "happy")

	resp, err := http.Post(srv.URL+"/api/emoji/match", "application/json",
		bytes.NewReader([]byte(`{"text":"happy"}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMatchRejectsEmptyText(t *testing.T) {
	srv, _, _ := testServer(t, &stubService{})
	resp, err := http.Post(srv.URL+"/api/emoji/match", "application/json",
		bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDeleteEmoji(t *testing.T) {
	srv, reg, paths := testServer(t, &stubService{})
	registerEmoji(t, reg, paths, "aaa", "happy")

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/emoji/aaa", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if reg.ActiveCount() != 0 {
		t.Fatal("record should be gone")
	}

	resp2, err := http.DefaultClient.Do(req.Clone(context.Background()))
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp2.StatusCode)
	}
}

func TestListDirs(t *testing.T) {
	srv, _, paths := testServer(t, &stubService{})
	if err := os.WriteFile(filepath.Join(paths.Unreviewed, "a.png"), pngBytes(t, 4), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(paths.Unreviewed, "skip.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/api/emoji/unreviewed")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out struct {
		Count  int `json:"count"`
		Images []struct {
			Filename string `json:"filename"`
		} `json:"images"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 1 || out.Images[0].Filename != "a.png" {
		t.Fatalf("listing = %+v", out)
	}
}

func TestPreview(t *testing.T) {
	srv, _, paths := testServer(t, &stubService{})
	img := pngBytes(t, 4)
	if err := os.WriteFile(filepath.Join(paths.Unreviewed, "a.png"), img, 0o600); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/preview/unreviewed/a.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("request id header missing")
	}

	// path traversal collapses to the base name
	resp2, err := http.Get(srv.URL + "/preview/unreviewed/..%2F..%2Fsecret.png")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode == http.StatusOK {
		t.Fatal("traversal path must not serve files")
	}
}

func TestApprovalMetaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	meta := map[string]string{"approved_by": "alice", "approve_time": "123"}
	if err := WriteApprovalMeta(path, meta); err != nil {
		t.Fatal(err)
	}
	got, err := ReadApprovalMeta(path)
	if err != nil {
		t.Fatal(err)
	}
	if got["approved_by"] != "alice" || got["approve_time"] != "123" {
		t.Fatalf("meta = %v", got)
	}

	none, err := ReadApprovalMeta(filepath.Join(dir, "missing.png"))
	if err != nil || none != nil {
		t.Fatalf("missing sidecar should be nil, nil; got %v, %v", none, err)
	}
}
