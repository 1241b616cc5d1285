package credentials

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// cyrillic maps Cyrillic letters to their common Latin transliteration.
// Lowercase only; input is lowered before lookup.
var cyrillic = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}

// foldDiacritics is an NFD decomposition that drops combining marks, turning
// é into e, ü into u, and so on.
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Latinize converts a name to a lowercase ASCII identifier fragment:
// Cyrillic is transliterated, diacritics are folded, and anything that is
// still not a lowercase ASCII letter or digit is dropped.
func Latinize(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	for _, r := range lowered {
		if tr, ok := cyrillic[r]; ok {
			b.WriteString(tr)
			continue
		}
		b.WriteRune(r)
	}

	folded, _, err := transform.String(foldDiacritics, b.String())
	if err != nil {
		folded = b.String()
	}

	var out strings.Builder
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			out.WriteRune(r)
		}
	}
	return out.String()
}
