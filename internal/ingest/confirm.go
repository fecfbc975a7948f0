package ingest

import (
	"fmt"
	"strings"
)

func (k Kind) noun() string {
	switch k {
	case KindImage:
		return "image"
	case KindAudio:
		return "voice note"
	case KindVideo:
		return "video"
	case KindAnimation:
		return "GIF"
	case KindDocument:
		return "document"
	default:
		return "message"
	}
}

// NotesMessage lists the first few extraction notes, or "" when there are
// none.
func NotesMessage(notes []string) string {
	if len(notes) == 0 {
		return ""
	}
	if len(notes) > 3 {
		notes = notes[:3]
	}
	var b strings.Builder
	b.WriteString("📥 Extracted:")
	for _, n := range notes {
		b.WriteString("\n• ")
		b.WriteString(n)
	}
	return b.String()
}

// Confirmation renders the chat reply for a finished ingestion.
func Confirmation(res Result) string {
	switch res.Outcome {
	case OutcomeInProgress:
		return fmt.Sprintf("⏳ Still processing this %s...", res.Kind.noun())
	case OutcomeDuplicate:
		return fmt.Sprintf("⚠️ I already processed this %s (Entry ID: %d).", res.Kind.noun(), res.EntryID)
	case OutcomeFailed:
		msg := "unknown error"
		if res.Err != nil {
			msg = preview(res.Err.Error(), 200)
		}
		return fmt.Sprintf("❌ Error processing %s: %s", res.Kind.noun(), msg)
	}
	if res.Degraded {
		return fmt.Sprintf("✅ Saved (basic mode). Entry ID: %d", res.EntryID)
	}
	if len(res.Items) == 0 {
		return fmt.Sprintf("✅ Saved! Entry ID: %d", res.EntryID)
	}

	switch res.Kind {
	case KindImage:
		return analysisConfirmation(res, "✅ Image analyzed!", "from image!")
	case KindDocument:
		return analysisConfirmation(res, "✅ Document processed!", "from document!")
	case KindAudio:
		return mediaConfirmation(res, "✅ Voice note processed!", "from voice note!")
	case KindVideo:
		return mediaConfirmation(res, "✅ Video processed!", "from video!")
	case KindAnimation:
		return mediaConfirmation(res, "✅ GIF analyzed!", "from GIF!")
	default:
		return textConfirmation(res)
	}
}

func textConfirmation(res Result) string {
	var b strings.Builder
	if len(res.Items) > 1 {
		fmt.Fprintf(&b, "✅ Created %d entries!\n\n", len(res.Items))
		for i, item := range res.Items {
			fmt.Fprintf(&b, "%d. %s\n   📁 %s", i+1, preview(item.Title, 40), item.Category)
			if item.IsContentIdea {
				b.WriteString(" 💡")
			}
			fmt.Fprintf(&b, " (ID: %d)\n\n", item.EntryID)
		}
		b.WriteString(res.TradeMessage)
		return strings.TrimRight(b.String(), "\n")
	}

	item := res.Items[0]
	fmt.Fprintf(&b, "✅ Saved! Entry ID: %d\n📝 Saved as note\n", item.EntryID)
	switch res.ContentType {
	case "video":
		b.WriteString("🎬 YouTube content processed\n")
	case "link":
		b.WriteString("🔗 Link content extracted\n")
	}
	tradeLine(&b, res.TradeMessage)
	fmt.Fprintf(&b, "📁 Category: %s\n", categoryLabel(item))
	if item.IsContentIdea {
		b.WriteString("💡 Marked as content idea\n")
	}
	b.WriteString("\n\n📋 Content:\n")
	b.WriteString(preview(item.Content, 2000))
	return b.String()
}

func analysisConfirmation(res Result, heading, multiSuffix string) string {
	var b strings.Builder
	if len(res.Items) > 1 {
		fmt.Fprintf(&b, "✅ Created %d entries %s\n\n", len(res.Items), multiSuffix)
		for i, item := range res.Items {
			fmt.Fprintf(&b, "%d. %s (ID: %d)\n", i+1, preview(item.Title, 40), item.EntryID)
		}
		return strings.TrimRight(b.String(), "\n")
	}
	item := res.Items[0]
	fmt.Fprintf(&b, "%s Entry ID: %d\n", heading, item.EntryID)
	tradeLine(&b, res.TradeMessage)
	fmt.Fprintf(&b, "📁 Category: %s\n", categoryLabel(item))
	if item.IsContentIdea {
		b.WriteString("💡 Marked as content idea\n")
	}
	b.WriteString("\n📋 Analysis:\n")
	b.WriteString(preview(item.Content, 400))
	return b.String()
}

func mediaConfirmation(res Result, heading, multiSuffix string) string {
	var b strings.Builder
	if len(res.Items) > 1 {
		fmt.Fprintf(&b, "✅ Created %d entries %s\n\n", len(res.Items), multiSuffix)
		for i, item := range res.Items {
			fmt.Fprintf(&b, "%d. %s (ID: %d)\n", i+1, preview(item.Title, 40), item.EntryID)
		}
		tradeLine(&b, res.TradeMessage)
		return strings.TrimRight(b.String(), "\n")
	}
	item := res.Items[0]
	fmt.Fprintf(&b, "%s Entry ID: %d\n", heading, item.EntryID)
	tradeLine(&b, res.TradeMessage)
	fmt.Fprintf(&b, "📁 Category: %s\n", categoryLabel(item))
	if item.IsContentIdea {
		b.WriteString("💡 Marked as content idea\n")
	}
	b.WriteString("\n📋 Content:\n")
	b.WriteString(preview(item.Content, 250))
	return b.String()
}

func tradeLine(b *strings.Builder, msg string) {
	if msg != "" {
		b.WriteString(msg)
		b.WriteString("\n")
	}
}

func categoryLabel(item SavedItem) string {
	if item.Subcategory != "" {
		return item.Category + " / " + item.Subcategory
	}
	return item.Category
}

// preview cuts s to n runes, marking the cut with "...".
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
