package helpers

// TruncateURL shortens a URL for log output
func TruncateURL(url string) string {
	const maxLen = 100
	if len(url) <= maxLen {
		return url
	}
	return url[:maxLen] + "..."
}
