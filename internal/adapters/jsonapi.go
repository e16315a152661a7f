package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/zduanx/jobtrawl/internal/errs"
	"github.com/zduanx/jobtrawl/internal/models"
)

// JSONAPIFields maps the adapter's generic JSONAPIAdapter onto the
// company-specific field names used by its career-page JSON API.
type JSONAPIFields struct {
	ExternalID   string
	Title        string
	Location     string
	URL          string
	Description  string
	Requirements string
}

// JSONAPIAdapter is a generic Adapter for companies whose career page is
// backed by a JSON listing endpoint and per-posting JSON detail objects.
// Most ATS-hosted career pages (Greenhouse, Lever, and similar) fit this
// shape; per-company differences are expressed entirely through Fields
// and the two endpoint URLs, with no adapter-specific code required.
type JSONAPIAdapter struct {
	company      string
	listURL      string
	fields       JSONAPIFields
	client       *http.Client
	userAgent    string
}

// NewJSONAPIAdapter builds a JSON-API adapter for one company.
func NewJSONAPIAdapter(company, listURL string, fields JSONAPIFields, client *http.Client, userAgent string) *JSONAPIAdapter {
	return &JSONAPIAdapter{
		company:   company,
		listURL:   listURL,
		fields:    fields,
		client:    client,
		userAgent: userAgent,
	}
}

func (a *JSONAPIAdapter) Company() string { return a.company }

// ListJobs fetches the listing endpoint, decodes it as an array of
// generic JSON objects, and maps each one to a ListedJob via Fields.
// Idempotent and side-effect-free beyond the GET itself, so retrying on a
// transient failure is always safe.
func (a *JSONAPIAdapter) ListJobs(ctx context.Context, filters models.TitleFilters) ([]models.ListedJob, error) {
	body, err := a.get(ctx, a.listURL)
	if err != nil {
		return nil, err
	}

	filters = models.NormalizeTitleFilters(filters)
	var listed []models.ListedJob
	var iterErr error

	_, err = jsonparser.ArrayEach(body, func(value []byte, dataType jsonparser.ValueType, _ int, entryErr error) {
		if entryErr != nil {
			iterErr = entryErr
			return
		}
		if dataType != jsonparser.Object {
			return
		}
		title := stringField(value, a.fields.Title)
		if !filters.Allows(title) {
			return
		}
		listed = append(listed, models.ListedJob{
			ExternalID: stringField(value, a.fields.ExternalID),
			Title:      title,
			Location:   stringField(value, a.fields.Location),
			URL:        stringField(value, a.fields.URL),
		})
	})
	if err != nil {
		return nil, &errs.FormatError{Company: a.company, Err: fmt.Errorf("decoding job list: %w", err)}
	}
	if iterErr != nil {
		return nil, &errs.FormatError{Company: a.company, Err: fmt.Errorf("decoding job list entry: %w", iterErr)}
	}
	return listed, nil
}

// FetchRaw retrieves the posting's own JSON detail object (or, for APIs
// that inline full detail in the listing, the same body shape).
func (a *JSONAPIAdapter) FetchRaw(ctx context.Context, url string) ([]byte, error) {
	return a.get(ctx, url)
}

// ParseRaw decodes a single posting's JSON object into structured fields.
func (a *JSONAPIAdapter) ParseRaw(ctx context.Context, raw []byte) (ParsedJob, error) {
	if _, _, _, err := jsonparser.Get(raw); err != nil {
		return ParsedJob{}, &errs.FormatError{Company: a.company, Err: fmt.Errorf("decoding job detail: %w", err)}
	}
	return ParsedJob{
		Title:        stringField(raw, a.fields.Title),
		Location:     stringField(raw, a.fields.Location),
		Description:  stringField(raw, a.fields.Description),
		Requirements: stringField(raw, a.fields.Requirements),
	}, nil
}

func (a *JSONAPIAdapter) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", "application/json")

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
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return body, nil
}

// stringField looks up a possibly dotted field path (e.g. "location.name")
// in a JSON object without unmarshaling it into a generic map. A missing
// or non-string field yields an empty string rather than an error, since
// most per-company field maps only cover the subset of fields this
// pipeline cares about.
func stringField(obj []byte, key string) string {
	if key == "" {
		return ""
	}
	s, err := jsonparser.GetString(obj, strings.Split(key, ".")...)
	if err != nil {
		return ""
	}
	return s
}
