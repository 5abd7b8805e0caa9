// Package media holds the normalized description of resolvable media content.
package media

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies a deliverable item by its container.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
)

// Item is one deliverable unit resolved from a source URL.
type Item struct {
	SourceURL       string
	Title           string
	Author          string
	DurationSeconds int
	Description     string
	FileExtension   string
	ThumbnailURL    string
}

// Descriptor is the result of resolving one input URL: a single item or an
// ordered collection of items. Collection order determines delivery sequence.
type Descriptor struct {
	Title             string
	Items             []Item
	SharedDescription string
	collection        bool
}

// Single wraps one item into a descriptor.
func Single(item Item) Descriptor {
	return Descriptor{Items: []Item{item}}
}

// Collection wraps an ordered list of items into a descriptor.
func Collection(title string, items []Item, sharedDescription string) Descriptor {
	return Descriptor{
		Title:             title,
		Items:             items,
		SharedDescription: sharedDescription,
		collection:        true,
	}
}

// IsCollection reports whether the descriptor came from a multi-item post.
func (d Descriptor) IsCollection() bool {
	return d.collection
}

var videoExtensions = map[string]struct{}{
	"mp4":  {},
	"mov":  {},
	"avi":  {},
	"mkv":  {},
	"webm": {},
}

// KindForExtension maps a file extension to a media kind. Video container
// extensions map to video, everything else to image. The same mapping is
// applied at fetch time and at upload time.
func KindForExtension(ext string) Kind {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if _, ok := videoExtensions[ext]; ok {
		return KindVideo
	}
	return KindImage
}

// Kind returns the item's kind derived from its file extension.
func (i Item) Kind() Kind {
	return KindForExtension(i.FileExtension)
}

// Normalize fills defaulted fields on a resolved item.
func (i Item) Normalize() Item {
	if strings.TrimSpace(i.Title) == "" {
		i.Title = "untitled"
	}
	if strings.TrimSpace(i.Author) == "" {
		i.Author = "unknown"
	}
	if strings.TrimSpace(i.FileExtension) == "" {
		i.FileExtension = "mp4"
	}
	if i.DurationSeconds < 0 {
		i.DurationSeconds = 0
	}
	return i
}

// Unicode-aware: Cyrillic and CJK titles must keep their letters, or every
// such title would collapse onto the same shared path.
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// DeriveID computes the filesystem-safe identifier used for local file naming
// and download idempotence. Collection members pass their zero-based index;
// single items pass a negative index. Two items with the same sanitized title
// and index always map to the same identifier.
func DeriveID(title string, index int) string {
	limit := 30
	if index >= 0 {
		limit = 20
	}
	runes := []rune(title)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	id := nonWord.ReplaceAllString(string(runes), "")
	if id == "" {
		id = "media"
	}
	if index >= 0 {
		return fmt.Sprintf("%s_%d", id, index)
	}
	return id
}

// FormatDuration renders a duration in seconds as HH:MM:SS, or MM:SS when
// shorter than an hour.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
