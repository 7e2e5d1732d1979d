// Package metadata fetches and extracts Open Graph / Twitter Card /
// plain HTML metadata from a destination URL for link decoration and
// as LLM prompt context.
package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// MaxVisibleTextLen caps the visible-text extract handed to the LLM prompt.
const MaxVisibleTextLen = 5000

const userAgent = "Mozilla/5.0 (compatible; penshort-metadata-fetcher/1.0; +https://penshort.example/bot)"

// Metadata is the best-effort extract of a fetched page. Every field
// is optional; a failed fetch yields a zero-value Metadata and a
// non-nil error, but callers should treat this as soft-fail and still
// proceed with the bare URL.
type Metadata struct {
	Title       string
	Description string
	ImageURL    string
	FaviconURL  string
	SiteName    string
	Type        string
	Author      string
	Keywords    string
	Canonical   string
	VisibleText string
}

// Fetcher retrieves and parses page metadata.
type Fetcher struct {
	httpClient   *http.Client
	maxBodyBytes int64
	failures     int
}

// New returns a Fetcher with the given timeout and body size cap.
func New(timeout time.Duration, maxBodyBytes int64) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		maxBodyBytes: maxBodyBytes,
	}
}

// degradedThreshold is the number of consecutive failures after which
// Fetch short-circuits to the bare-URL fallback without issuing a
// request, giving a flaky upstream a chance to recover rather than
// hammering it. While degraded, every (degradedThreshold+1)th call is
// let through as a probe: a success resets the count, a failure
// re-opens the breaker.
const degradedThreshold = 5

// Fetch retrieves rawURL and extracts its metadata. On any failure —
// network error, non-2xx status, unparseable HTML — it returns a
// Metadata containing only the URL's own canonical form and a
// non-nil error; callers treat this as soft-fail.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Metadata, error) {
	if f.failures >= degradedThreshold {
		f.failures++
		if f.failures <= 2*degradedThreshold {
			return &Metadata{Canonical: rawURL}, fmt.Errorf("metadata fetcher degraded after %d consecutive failures", degradedThreshold)
		}
		// Probe: one more failure brings the count back to the threshold.
		f.failures = degradedThreshold - 1
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		f.failures++
		return &Metadata{Canonical: rawURL}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.failures++
		return &Metadata{Canonical: rawURL}, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.failures++
		return &Metadata{Canonical: rawURL}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, f.maxBodyBytes)
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		f.failures++
		return &Metadata{Canonical: rawURL}, fmt.Errorf("parse html: %w", err)
	}

	f.failures = 0

	base, _ := url.Parse(rawURL)
	md := extract(doc, base)
	if md.Canonical == "" {
		md.Canonical = rawURL
	}
	return md, nil
}

func extract(doc *goquery.Document, base *url.URL) *Metadata {
	md := &Metadata{}

	md.Title = firstNonEmpty(
		metaContent(doc, "property", "og:title"),
		metaContent(doc, "name", "twitter:title"),
		strings.TrimSpace(doc.Find("title").First().Text()),
	)

	md.Description = firstNonEmpty(
		metaContent(doc, "property", "og:description"),
		metaContent(doc, "name", "twitter:description"),
		metaContent(doc, "name", "description"),
	)

	md.ImageURL = resolveURL(base, firstNonEmpty(
		metaContent(doc, "property", "og:image"),
		metaContent(doc, "name", "twitter:image"),
	))

	md.FaviconURL = resolveURL(base, firstFavicon(doc))
	if md.FaviconURL == "" && base != nil {
		md.FaviconURL = base.Scheme + "://" + base.Host + "/favicon.ico"
	}

	md.SiteName = metaContent(doc, "property", "og:site_name")
	md.Type = metaContent(doc, "property", "og:type")
	md.Author = metaContent(doc, "name", "author")
	md.Keywords = metaContent(doc, "name", "keywords")

	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		md.Canonical = resolveURL(base, href)
	}

	md.VisibleText = visibleText(doc)

	return md
}

func metaContent(doc *goquery.Document, attr, value string) string {
	sel := doc.Find(fmt.Sprintf(`meta[%s="%s"]`, attr, value)).First()
	content, _ := sel.Attr("content")
	return strings.TrimSpace(content)
}

func firstFavicon(doc *goquery.Document) string {
	rels := []string{"icon", "shortcut icon", "apple-touch-icon"}
	for _, rel := range rels {
		sel := doc.Find(fmt.Sprintf(`link[rel="%s"]`, rel)).First()
		if href, ok := sel.Attr("href"); ok && href != "" {
			return href
		}
	}
	return ""
}

func resolveURL(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

func visibleText(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if len(text) > MaxVisibleTextLen {
		return text[:MaxVisibleTextLen]
	}
	return text
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
