package notify

import (
	"strings"
)

// GSM 03.38 basic set plus the extension table (which costs two septets but is still deliverable).
const gsmBasic = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
	"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"

const gsmExtension = "^{}\\[~]|€"

var gsmReplacements = map[rune]string{
	'‘': "'", '’': "'", '‚': "'", '′': "'",
	'“': "\"", '”': "\"", '„': "\"", '″': "\"",
	'–': "-", '—': "-", '‒': "-", '−': "-",
	'…': "...",
	'\t': " ", '\u00a0': " ", '\u2009': " ", '\u202f': " ",
	'•': "-", '·': "-",
	'á': "a", 'í': "i", 'ó': "o", 'ú': "u", 'â': "a", 'ê': "e", 'î': "i", 'ô': "o", 'û': "u",
	'ç': "c", 'ë': "e", 'ï': "i",
}

var gsmSet = func() map[rune]struct{} {
	m := make(map[rune]struct{}, len(gsmBasic)+len(gsmExtension))
	for _, r := range gsmBasic + gsmExtension {
		m[r] = struct{}{}
	}
	return m
}()

// SanitizeGSM rewrites text so every rune is GSM-7 encodable. Known typographic characters are
// transliterated, anything else (emoji etc.) is dropped, and runs of spaces collapse to one.
func SanitizeGSM(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if _, ok := gsmSet[r]; ok {
			b.WriteRune(r)
			continue
		}
		if rep, ok := gsmReplacements[r]; ok {
			b.WriteString(rep)
		}
	}

	out := b.String()
	for strings.Contains(out, "  ") {
		out = strings.ReplaceAll(out, "  ", " ")
	}
	return strings.TrimSpace(out)
}
