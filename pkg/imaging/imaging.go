package imaging

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Info identifies an image asset: content hash and decoded format.
type Info struct {
	Hash   string
	Format string
}

// supported upload/staging extensions
var supportedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// SupportedFile reports whether name carries a supported image extension.
func SupportedFile(name string) bool {
	return supportedExt[strings.ToLower(filepath.Ext(name))]
}

// Identify computes the content hash of raw image bytes and decodes the
// image header to determine the format. Returns an error for unreadable
// or undecodable data.
func Identify(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, fmt.Errorf("empty image data")
	}
	sum := md5.Sum(data)
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return Info{Hash: hex.EncodeToString(sum[:]), Format: format}, nil
}

// IdentifyFile reads path and identifies its contents.
func IdentifyFile(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	return Identify(data)
}

// HashedFilename derives the canonical display name for an asset: the
// content hash plus the original extension (".jpg" when absent).
func HashedFilename(hash, original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		ext = ".jpg"
	}
	return hash + ext
}
