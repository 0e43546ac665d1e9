package token

// TruncationMarker is appended whenever TruncateToLimit shortens its input.
const TruncationMarker = "\n\n[... truncated]"

// TruncateToLimit returns the longest prefix of text whose estimate fits
// within the model's limit minus reserve, found by binary search over rune
// offsets. The truncation marker is appended only when truncation occurred;
// text already within budget is returned unchanged.
func TruncateToLimit(text, model string, reserve int) string {
	limit := GetLimit(model) - reserve
	if limit < 0 {
		return ""
	}
	if Estimate(text) <= limit {
		return text
	}

	runes := []rune(text)
	low, high := 0, len(runes)
	result := ""

	for low < high {
		mid := (low + high) / 2
		candidate := string(runes[:mid])
		if Estimate(candidate) <= limit {
			result = candidate
			low = mid + 1
		} else {
			high = mid
		}
	}

	return result + TruncationMarker
}
