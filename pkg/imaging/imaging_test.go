package imaging

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIdentify(t *testing.T) {
	data := pngBytes(t, 4, 4)
	info, err := Identify(data)
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if info.Format != "png" {
		t.Fatalf("format = %q, want png", info.Format)
	}
	if len(info.Hash) != 32 {
		t.Fatalf("hash = %q, want 32 hex chars", info.Hash)
	}

	// identical bytes, identical hash
	again, err := Identify(data)
	if err != nil {
		t.Fatal(err)
	}
	if again.Hash != info.Hash {
		t.Fatal("hash not deterministic")
	}

	// different content, different hash
	other, err := Identify(pngBytes(t, 5, 5))
	if err != nil {
		t.Fatal(err)
	}
	if other.Hash == info.Hash {
		t.Fatal("distinct images collided")
	}
}

func TestIdentifyRejectsGarbage(t *testing.T) {
	if _, err := Identify([]byte("not an image")); err == nil {
		t.Fatal("expected error for non-image data")
	}
	if _, err := Identify(nil); err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestSupportedFile(t *testing.T) {
	cases := map[string]bool{
		"a.png":    true,
		"b.JPG":    true,
		"c.jpeg":   true,
		"d.gif":    true,
		"e.webp":   false,
		"f.txt":    false,
		"noext":    false,
		".png":     true,
		"x.png.md": false,
	}
	for name, want := range cases {
		if got := SupportedFile(name); got != want {
			t.Errorf("SupportedFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestHashedFilename(t *testing.T) {
	if got := HashedFilename("abc", "cat.PNG"); got != "abc.png" {
		t.Fatalf("got %q", got)
	}
	if got := HashedFilename("abc", ""); got != "abc.jpg" {
		t.Fatalf("default extension: got %q", got)
	}
}
