package parser

import (
	"fmt"
	"net/url"
	"strings"
)

const cataloguePrefix = "catalogue/"

// CatalogPageURL is the address of the n-th catalog listing page.
func CatalogPageURL(baseURL string, n int) string {
	return fmt.Sprintf("%s/catalogue/page-%d.html", strings.TrimRight(baseURL, "/"), n)
}

// NormalizeCardHref rewrites listing-card links to a catalogue-relative path.
// Category pages link with "../../../X" and "../../X"; the root page links with
// "catalogue/X" and paginated pages with a bare "X".
func NormalizeCardHref(href string) string {
	if isAbsolute(href) {
		return href
	}
	switch {
	case strings.HasPrefix(href, "../../../"):
		href = href[len("../../../"):]
	case strings.HasPrefix(href, "../../"):
		href = href[len("../../"):]
	}
	if !strings.HasPrefix(href, cataloguePrefix) {
		href = cataloguePrefix + href
	}
	return href
}

// ResolveDetailURL makes a detail page address absolute against the site root.
func ResolveDetailURL(raw, baseURL string) string {
	if strings.HasPrefix(raw, "http") {
		return raw
	}
	root := strings.TrimRight(baseURL, "/")
	raw = strings.TrimLeft(raw, "/")
	if strings.HasPrefix(raw, cataloguePrefix) {
		return root + "/" + raw
	}
	return root + "/" + cataloguePrefix + raw
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

func isAbsolute(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && u.IsAbs()
}
