package captioner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"emojid/pkg/config"
)

func TestParseDecision(t *testing.T) {
	cases := []struct {
		name  string
		out   string
		count int
		want  Decision
	}{
		{"KeepAll", `{"delete": false}`, 5, Decision{}},
		{"DeleteFirst", `{"delete": true, "index": 1}`, 5, Decision{Delete: true, Index: 0}},
		{"DeleteLast", `{"delete": true, "index": 5}`, 5, Decision{Delete: true, Index: 4}},
		{"SurroundingProse", `Sure, here is my verdict: {"delete": true, "index": 2} hope that helps`, 5, Decision{Delete: true, Index: 1}},
		{"IndexZero", `{"delete": true, "index": 0}`, 5, Decision{}},
		{"IndexOutOfRange", `{"delete": true, "index": 6}`, 5, Decision{}},
		{"NoJSON", `I think we should delete number 2`, 5, Decision{}},
		{"BadJSON", `{"delete": yes}`, 5, Decision{}},
		{"Empty", ``, 5, Decision{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ParseDecision(c.out, c.count); got != c.want {
				t.Fatalf("ParseDecision(%q) = %+v, want %+v", c.out, got, c.want)
			}
		})
	}
}

func TestSplitTags(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"happy, joyful, excited", []string{"happy", "joyful", "excited"}},
		{"开心，高兴", []string{"开心", "高兴"}},
		{" a ,, b ", []string{"a", "b"}},
		{"a,b,c,d,e,f,g", []string{"a", "b", "c", "d", "e"}},
		{"", nil},
	}
	for _, c := range cases {
		got := splitTags(c.in)
		if len(got) == 0 && len(c.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("splitTags(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func chatReply(content string) []byte {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return b
}

func newTestClient(url string) *Client {
	return NewClient(config.CaptionerConfig{
		BaseURL:     url,
		APIKey:      "test-key",
		VisionModel: "vision",
		UtilsModel:  "utils",
		MaxTokens:   100,
	})
}

func TestDescribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model == "vision" {
			w.Write(chatReply("a very smug cat"))
			return
		}
		w.Write(chatReply("smug, gloating"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	desc, tags, err := c.Describe(context.Background(), []byte("fake-image"), "png")
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if desc != "a very smug cat" {
		t.Fatalf("description = %q", desc)
	}
	if !reflect.DeepEqual(tags, []string{"smug", "gloating"}) {
		t.Fatalf("tags = %v", tags)
	}
}

func TestExtractEmotionStripsThinking(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply("<think>the user seems\nupset</think>sad, frustrated"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	tags, err := c.ExtractEmotion(context.Background(), "everything is broken again")
	if err != nil {
		t.Fatalf("ExtractEmotion failed: %v", err)
	}
	if !reflect.DeepEqual(tags, []string{"sad", "frustrated"}) {
		t.Fatalf("tags = %v", tags)
	}
}

func TestTerminalClientError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.ExtractEmotion(context.Background(), "text")
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if calls != 1 {
		t.Fatalf("client error must not be retried, got %d calls", calls)
	}
}

func TestPayloadTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too large", http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.Describe(context.Background(), []byte("big"), "png")
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDecideEviction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply(`{"delete": true, "index": 2}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	cands := []EvictionCandidate{
		{Description: "old cat", UsageCount: 0},
		{Description: "older dog", UsageCount: 1},
	}
	d, err := c.DecideEviction(context.Background(), cands, "new frog")
	if err != nil {
		t.Fatalf("DecideEviction failed: %v", err)
	}
	if !d.Delete || d.Index != 1 {
		t.Fatalf("decision = %+v, want delete index 1", d)
	}
}
