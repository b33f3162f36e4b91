package qti

import (
	"strings"

	"golang.org/x/net/html"
)

// flattenHTML reduces a mattext HTML fragment to plain text plus the image
// references it embeds. <br> and closing <p> become newlines; everything
// else contributes only its text. Image srcs are returned in document order.
func flattenHTML(fragment string) (string, []string) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return "", nil
	}

	tz := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	var images []string
	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.TextToken:
			b.Write(tz.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tz.TagName()
			switch string(name) {
			case "img":
				for hasAttr {
					var k, v []byte
					k, v, hasAttr = tz.TagAttr()
					if string(k) == "src" {
						if src := sanitizeSrc(string(v)); src != "" {
							images = append(images, src)
						}
					}
				}
			case "br":
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tz.TagName()
			if string(name) == "p" {
				b.WriteByte('\n')
			}
		}
	}
	return strings.TrimSpace(b.String()), images
}

// sanitizeSrc normalizes cartridge-internal image paths. Schoology and
// Canvas prefix them with the $IMS-CC-FILEBASE$ token.
func sanitizeSrc(src string) string {
	src = strings.TrimSpace(src)
	src = strings.TrimPrefix(src, "$IMS-CC-FILEBASE$")
	src = strings.TrimPrefix(src, "./")
	src = strings.TrimPrefix(src, "/")
	return src
}
