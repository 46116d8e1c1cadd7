package notify

const (
	excerptLimit  = 100
	excerptSuffix = "..."
)

// Excerpt returns the first 100 characters of content followed by "..." when
// content is longer, and content unchanged otherwise. Word boundaries are
// ignored.
func Excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLimit {
		return content
	}
	return string(runes[:excerptLimit]) + excerptSuffix
}

func channelTitle(channelName string) string {
	return "New message in #" + channelName
}

func directTitle(senderName string) string {
	return "New message from " + senderName
}

func body(senderName, content string) string {
	return senderName + ": " + Excerpt(content)
}
