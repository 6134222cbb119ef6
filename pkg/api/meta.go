package api

import (
	"fmt"
	"os"
	"strings"
)

// Approval metadata sidecars are optional per-file audit records stored
// next to the approved asset as "<filename>.meta" with key: value lines.

// WriteApprovalMeta writes the sidecar for an approved file.
func WriteApprovalMeta(path string, meta map[string]string) error {
	var b strings.Builder
	for k, v := range meta {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	return os.WriteFile(path+".meta", []byte(b.String()), 0o600)
}

// ReadApprovalMeta parses a sidecar. A missing sidecar returns nil, nil:
// the metadata is optional.
func ReadApprovalMeta(path string) (map[string]string, error) {
	b, err := os.ReadFile(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	meta := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		meta[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return meta, nil
}
