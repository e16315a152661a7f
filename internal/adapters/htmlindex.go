package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/zduanx/jobtrawl/internal/errs"
	"github.com/zduanx/jobtrawl/internal/models"
)

// HTMLIndexSelectors describes where, in a server-rendered career page, to
// find each posting's fields via CSS selectors (goquery syntax).
type HTMLIndexSelectors struct {
	JobRow       string // selector for each posting's container element
	Title        string // relative selector for the title, within JobRow
	Location     string // relative selector for the location, within JobRow
	Link         string // relative selector for the <a href> to the posting
	Description  string // selector for the description fragment on a detail page
	Requirements string // selector for the requirements fragment on a detail page
}

// HTMLIndexAdapter is a generic Adapter for companies whose career page is
// server-rendered HTML rather than a JSON API: list_jobs parses the index
// page's DOM, and parse_raw parses a single posting's detail page DOM.
type HTMLIndexAdapter struct {
	company   string
	listURL   string
	selectors HTMLIndexSelectors
	client    *http.Client
	userAgent string
}

// NewHTMLIndexAdapter builds an HTML-index adapter for one company.
func NewHTMLIndexAdapter(company, listURL string, selectors HTMLIndexSelectors, client *http.Client, userAgent string) *HTMLIndexAdapter {
	return &HTMLIndexAdapter{
		company:   company,
		listURL:   listURL,
		selectors: selectors,
		client:    client,
		userAgent: userAgent,
	}
}

func (a *HTMLIndexAdapter) Company() string { return a.company }

// ListJobs fetches the index page and extracts one ListedJob per matching
// JobRow element.
func (a *HTMLIndexAdapter) ListJobs(ctx context.Context, filters models.TitleFilters) ([]models.ListedJob, error) {
	body, err := a.get(ctx, a.listURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, &errs.FormatError{Company: a.company, Err: fmt.Errorf("parsing index page: %w", err)}
	}

	filters = models.NormalizeTitleFilters(filters)
	base, _ := url.Parse(a.listURL)

	var listed []models.ListedJob
	doc.Find(a.selectors.JobRow).Each(func(_ int, row *goquery.Selection) {
		title := strings.TrimSpace(row.Find(a.selectors.Title).First().Text())
		if !filters.Allows(title) {
			return
		}
		location := strings.TrimSpace(row.Find(a.selectors.Location).First().Text())
		href, _ := row.Find(a.selectors.Link).First().Attr("href")
		resolved := resolveURL(base, href)

		listed = append(listed, models.ListedJob{
			ExternalID: externalIDFromURL(resolved),
			Title:      title,
			Location:   location,
			URL:        resolved,
		})
	})
	return listed, nil
}

// FetchRaw retrieves a single posting's detail page HTML.
func (a *HTMLIndexAdapter) FetchRaw(ctx context.Context, url string) ([]byte, error) {
	return a.get(ctx, url)
}

// ParseRaw extracts title/location/description/requirements from a
// posting's detail page HTML, normalizing the description/requirements
// fragments to clean text via NormalizeHTMLFragment.
func (a *HTMLIndexAdapter) ParseRaw(ctx context.Context, raw []byte) (ParsedJob, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		return ParsedJob{}, &errs.FormatError{Company: a.company, Err: fmt.Errorf("parsing detail page: %w", err)}
	}

	descHTML, _ := doc.Find(a.selectors.Description).First().Html()
	reqHTML, _ := doc.Find(a.selectors.Requirements).First().Html()

	desc, err := NormalizeHTMLFragment(a.listURL, descHTML)
	if err != nil {
		return ParsedJob{}, &errs.FormatError{Company: a.company, Err: fmt.Errorf("normalizing description: %w", err)}
	}
	reqs, err := NormalizeHTMLFragment(a.listURL, reqHTML)
	if err != nil {
		return ParsedJob{}, &errs.FormatError{Company: a.company, Err: fmt.Errorf("normalizing requirements: %w", err)}
	}

	return ParsedJob{
		Title:        strings.TrimSpace(doc.Find(a.selectors.Title).First().Text()),
		Location:     strings.TrimSpace(doc.Find(a.selectors.Location).First().Text()),
		Description:  desc,
		Requirements: reqs,
	}, nil
}

func (a *HTMLIndexAdapter) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", target, err)
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &errs.UnavailableError{Company: a.company, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &errs.RateLimited{Company: a.company, RetryAfter: resp.Header.Get("Retry-After")}
	}
	if resp.StatusCode >= 500 {
		return nil, &errs.UnavailableError{Company: a.company, Err: fmt.Errorf("upstream status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, &errs.FormatError{Company: a.company, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", target, err)
	}
	return body, nil
}

func resolveURL(base *url.URL, href string) string {
	if base == nil || href == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func externalIDFromURL(u string) string {
	parts := strings.Split(strings.TrimRight(u, "/"), "/")
	if len(parts) == 0 {
		return u
	}
	return parts[len(parts)-1]
}
