package metadata

import (
	"strings"
	"unicode"
)

// toSnakeCase converts CamelCase to snake_case, keeping acronyms together
// (HTTPRequest -> http_request). Existing underscores are kept as is.
func toSnakeCase(s string) string {
	var result strings.Builder
	runes := []rune(s)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' {
				prev := runes[i-1]
				if unicode.IsLower(prev) || unicode.IsDigit(prev) {
					result.WriteRune('_')
				} else if i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
					result.WriteRune('_')
				}
			}
			result.WriteRune(unicode.ToLower(r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// acronyms are upper-cased whole when they appear as a label word.
var acronyms = map[string]bool{
	"id": true, "url": true, "uuid": true, "ip": true, "api": true, "sku": true, "vat": true,
}

// Humanize turns a column or table name into a label:
// "customer_id" -> "Customer ID", "createdAt" -> "Created At".
func Humanize(name string) string {
	words := strings.FieldsFunc(toSnakeCase(name), func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	for i, w := range words {
		if acronyms[w] {
			words[i] = strings.ToUpper(w)
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
