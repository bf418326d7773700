package bandcamp

import (
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoCrumbFound is returned when no crumb pattern matches the page.
var ErrNoCrumbFound = errors.New("no crumb found in page")

var (
	quotedCrumbRe  = regexp.MustCompile(`["']crumb["']\s*:\s*["']([^"']+)["']`)
	bareCrumbRe    = regexp.MustCompile(`\bcrumb\s*:\s*["']([^"']+)["']`)
	escapedCrumbRe = regexp.MustCompile(`&quot;crumb&quot;:&quot;([^&]+)&quot;`)
)

type crumbPattern struct {
	name string
	fn   func(page string) (string, bool)
}

// crumbPatterns are tried in order; the first match wins.
var crumbPatterns = []crumbPattern{
	{"data-crumb attribute", crumbFromAttribute},
	{"quoted script assignment", scriptMatcher(quotedCrumbRe)},
	{"bare script assignment", scriptMatcher(bareCrumbRe)},
	{"escaped markup", markupMatcher(escapedCrumbRe)},
	{"quoted markup", markupMatcher(quotedCrumbRe)},
}

// ExtractCrumb returns the anti-forgery crumb embedded in a Bandcamp page.
//
// The page structure varies, so several patterns are tried in priority order:
//  1. a data-crumb HTML attribute
//  2. "crumb": "<token>" inside an inline <script>
//  3. crumb: "<token>" inside an inline <script>
//  4. &quot;crumb&quot;:&quot;<token>&quot; anywhere in the markup
//  5. "crumb": "<token>" anywhere in the markup
//
// The second return value names the pattern that matched.
//
// Example:
//
//	crumb, pattern, err := bandcamp.ExtractCrumb(yumPageHTML)
//	if errors.Is(err, bandcamp.ErrNoCrumbFound) {
//	    // not logged in, or the page layout changed
//	}
func ExtractCrumb(page string) (crumb, pattern string, err error) {
	for _, p := range crumbPatterns {
		if token, ok := p.fn(page); ok {
			return token, p.name, nil
		}
	}
	return "", "", ErrNoCrumbFound
}

func crumbFromAttribute(page string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", false
	}

	var token string
	doc.Find("[data-crumb]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("data-crumb")
		token = strings.TrimSpace(v)
		return token == ""
	})
	return token, token != ""
}

func scriptMatcher(re *regexp.Regexp) func(string) (string, bool) {
	return func(page string) (string, bool) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
		if err != nil {
			return "", false
		}

		var token string
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if m := re.FindStringSubmatch(s.Text()); m != nil {
				token = m[1]
				return false
			}
			return true
		})
		return token, token != ""
	}
}

func markupMatcher(re *regexp.Regexp) func(string) (string, bool) {
	return func(page string) (string, bool) {
		if m := re.FindStringSubmatch(page); m != nil {
			return m[1], true
		}
		return "", false
	}
}
