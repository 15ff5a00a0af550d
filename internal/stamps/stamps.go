// Package stamps форматирует текст содержимого письма под физические
// ограничения резиновых штампов.
package stamps

import "strings"

// MaxLineLength задаёт максимальную длину строки штампа в символах.
const MaxLineLength = 11

// Format переносит текст штампов по строкам длиной не более MaxLineLength.
// Существующие переводы строк сохраняются, перенос выполняется по границам
// слов, слова длиннее лимита разрезаются принудительно, пустые строки отбрасываются.
func Format(text string) string {
	if text == "" {
		return ""
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if len(line) <= MaxLineLength {
			out = append(out, line)
			continue
		}

		current := ""
		for _, word := range strings.Fields(line) {
			if len(word) > MaxLineLength {
				if current != "" {
					out = append(out, current)
					current = ""
				}
				for i := 0; i < len(word); i += MaxLineLength {
					end := i + MaxLineLength
					if end > len(word) {
						end = len(word)
					}
					out = append(out, word[i:end])
				}
				continue
			}

			test := word
			if current != "" {
				test = current + " " + word
			}

			if len(test) <= MaxLineLength {
				current = test
			} else {
				out = append(out, current)
				current = word
			}
		}

		if current != "" {
			out = append(out, current)
		}
	}

	return strings.Join(out, "\n")
}

// FormatForDisplay оформляет текст штампов для отображения в сообщении чата.
func FormatForDisplay(text string) string {
	if text == "" {
		return ""
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, "  > "+line)
		}
	}

	return strings.Join(out, "\n")
}
