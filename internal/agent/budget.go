package agent

// Token estimation for tool results fed back to the model.
// 1 token ~= 4 characters is close enough for Portuguese tabular text.

const truncatedNote = "\n... (resultado truncado)"

// CountTokens estimates the number of tokens in text.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TruncateToTokenLimit cuts text to roughly limit tokens. A non-positive
// limit leaves text untouched.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	charLimit := limit * 4
	if charLimit >= len(runes) {
		return text
	}
	return string(runes[:charLimit]) + truncatedNote
}
