package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// chatJSON runs a completion that must yield a single JSON object and decodes
// it into out. Invalid output triggers up to jsonRetries re-prompts with a
// strict hint at temperature 0; as a last resort the raw text goes through
// mechanical repair (fence stripping, object extraction, bracket balancing).
func chatJSON(ctx context.Context, client ChatClient, req ChatRequest, retryHint string, jsonRetries int, logger *zap.Logger, out any) error {
	if jsonRetries < 0 {
		jsonRetries = 0
	}

	currentReq := req
	var lastContent string
	var lastErr error

	for attempt := 0; attempt <= jsonRetries; attempt++ {
		content, err := client.Chat(ctx, currentReq)
		if err != nil {
			lastErr = err
			if attempt >= jsonRetries {
				return err
			}
			continue
		}

		lastContent = content
		raw, repaired, ok := extractJSONObject(content)
		if ok {
			if err := json.Unmarshal([]byte(raw), out); err == nil {
				if repaired {
					logger.Warn("minor JSON repair applied",
						zap.String("model", req.Model),
						zap.String("response", truncate(content, 600)))
				}
				return nil
			}
		}

		logger.Warn("invalid JSON from model",
			zap.String("model", req.Model),
			zap.Int("attempt", attempt+1),
			zap.String("response", truncate(content, 600)))

		currentReq = req
		currentReq.Messages = append(append([]ChatMessage{}, req.Messages...),
			ChatMessage{Role: "system", Content: retryHint},
			ChatMessage{Role: "system", Content: "Return a single JSON object and nothing else."},
		)
		currentReq.Temperature = 0
	}

	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("model returned invalid JSON: %s", truncate(lastContent, 600))
}

// extractJSONObject returns text that decodes as a JSON object, repairing the
// input if a direct parse fails. The second return value reports whether
// repair was needed.
func extractJSONObject(raw string) (string, bool, bool) {
	if isJSONObject(raw) {
		return raw, false, true
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		return "", false, false
	}

	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	if start == -1 {
		return "", false, false
	}
	text = text[start:]

	text = firstObjectOrPrefix(text)
	text = removeTrailingCommas(text)
	text = balanceBrackets(text)
	text = strings.TrimSpace(text)

	if !isJSONObject(text) {
		return "", false, false
	}
	return text, true, true
}

func isJSONObject(raw string) bool {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return false
	}
	_, ok := value.(map[string]any)
	return ok
}

// firstObjectOrPrefix truncates text after the first balanced top-level JSON
// object, leaving trailing prose behind.
func firstObjectOrPrefix(text string) string {
	var stack []byte
	inString := false
	escape := false

	for idx := 0; idx < len(text); idx++ {
		ch := text[idx]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
			continue
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && ch == stack[len(stack)-1] {
				stack = stack[:len(stack)-1]
			} else {
				return text
			}
		}

		if idx > 0 && len(stack) == 0 {
			return text[:idx+1]
		}
	}
	return text
}

// balanceBrackets appends the closers a truncated response left open.
func balanceBrackets(text string) string {
	var stack []byte
	inString := false
	escape := false

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && ch == stack[len(stack)-1] {
				stack = stack[:len(stack)-1]
			} else {
				return text
			}
		}
	}

	if len(stack) == 0 {
		return text
	}
	var sb strings.Builder
	sb.WriteString(text)
	for i := len(stack) - 1; i >= 0; i-- {
		sb.WriteByte(stack[i])
	}
	return sb.String()
}

var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

func removeTrailingCommas(text string) string {
	for {
		next := trailingCommaRe.ReplaceAllString(text, "$1")
		if next == text {
			return next
		}
		text = next
	}
}
