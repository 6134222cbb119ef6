package models

import "time"

// EmojiRecord describes a registered emoji asset. Hash is the primary
// identity and must be unique among records where Deleted is false.
type EmojiRecord struct {
	Hash     string `json:"hash"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Format   string `json:"format,omitempty"`
	// Description is the captioning result; empty string means not yet
	// captioned (or invalid) and excludes the record from the active set
	// on the next integrity pass.
	Description string `json:"description"`
	// EmotionTags order is preserved for display; an empty list excludes
	// the record from matching.
	EmotionTags  []string `json:"emotion_tags"`
	UsageCount   int      `json:"usage_count"`
	LastUsedTime int64    `json:"last_used_time"`
	RegisterTime int64    `json:"register_time"`
	Deleted      bool     `json:"is_deleted,omitempty"`
}

// NewEmojiRecord builds a record for a staged file. Path points at the
// staging location until registration moves the file.
func NewEmojiRecord(hash, path, filename, format string) EmojiRecord {
	now := time.Now().Unix()
	return EmojiRecord{
		Hash:         hash,
		Path:         path,
		Filename:     filename,
		Format:       format,
		EmotionTags:  []string{},
		LastUsedTime: now,
		RegisterTime: now,
	}
}

// Active reports whether the record participates in registry operations.
func (r *EmojiRecord) Active() bool { return !r.Deleted }
