package fetcher

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/resilience"
)

var assetRegex = regexp.MustCompile(`\.(jpg|jpeg|png|gif|webp|css|js|svg|ico)$`)

// IsAsset reports whether rawURL points at a static asset that is never
// crawled.
func IsAsset(rawURL string) bool {
	return assetRegex.MatchString(strings.ToLower(StripFragment(rawURL)))
}

// StripFragment drops everything from the first '#'.
func StripFragment(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// Links fetches pageURL, retrying transient failures, and returns the
// absolute links on it that start with siteDomain. Exhausted retries yield
// no links.
func (f *Fetcher) Links(ctx context.Context, pageURL, siteDomain string) []string {
	if IsAsset(pageURL) {
		return nil
	}
	var resp *Response
	err := resilience.Retry(ctx, "fetch-links", f.retry, func() error {
		r, err := f.Fetch(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return resilience.Permanent(ctx.Err())
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			f.logger.Error("giving up on link discovery", "url", pageURL, "error", err)
		}
		return nil
	}
	if resp.Body == "" {
		return nil
	}
	return ExtractLinks(resp.Body, pageURL, siteDomain)
}

// InSite reports whether abs lies under siteDomain. The prefix must end on a
// path or query boundary, so http://a.test does not cover http://a.testing.
func InSite(abs, siteDomain string) bool {
	domain := strings.TrimSuffix(siteDomain, "/")
	if domain == "" || !strings.HasPrefix(abs, domain) {
		return false
	}
	rest := abs[len(domain):]
	return rest == "" || rest[0] == '/' || rest[0] == '?'
}

// ExtractLinks resolves every a[href] in body against baseURL, strips
// fragments and keeps the distinct non-asset links that start with
// siteDomain, in document order.
func ExtractLinks(body, baseURL, siteDomain string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := base.Parse(strings.TrimSpace(href))
		if err != nil || (ref.Scheme != "http" && ref.Scheme != "https") {
			return
		}
		ref.Fragment = ""
		ref.RawFragment = ""
		abs := ref.String()
		if abs == "" || !InSite(abs, siteDomain) || IsAsset(abs) {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}
