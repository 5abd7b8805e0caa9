package deliver

import (
	"fmt"
	"strings"

	"github.com/maxgrab/maxgrab/internal/media"
)

// DescriptionLimit caps the shared description message length in runes.
const DescriptionLimit = 4000

// Caption renders the message text accompanying one delivered item. For
// collection members index is 1-based and total is the collection size;
// single items pass index 0 and get no numbering line.
func Caption(item media.Item, index, total int) string {
	var b strings.Builder
	if index > 0 {
		fmt.Fprintf(&b, "📦 File %d/%d\n", index, total)
	}
	fmt.Fprintf(&b, "🎬 %s\n", item.Title)
	fmt.Fprintf(&b, "👤 %s\n", item.Author)
	fmt.Fprintf(&b, "⏱ %s\n", media.FormatDuration(item.DurationSeconds))
	fmt.Fprintf(&b, "🔗 %s", item.SourceURL)
	return b.String()
}

// TruncateDescription bounds a description to the fixed maximum length.
func TruncateDescription(text string) string {
	runes := []rune(text)
	if len(runes) <= DescriptionLimit {
		return text
	}
	return string(runes[:DescriptionLimit])
}
