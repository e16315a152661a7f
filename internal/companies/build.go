package companies

import (
	"fmt"
	"net/http"
	"time"

	"github.com/zduanx/jobtrawl/internal/adapters"
	"github.com/zduanx/jobtrawl/internal/common"
	"github.com/zduanx/jobtrawl/internal/initializer"
	"github.com/zduanx/jobtrawl/internal/models"
)

// BuildRegistry constructs an adapter Registry and a StaticProvider of
// title filters from the configured company entries, dispatching each
// entry to the JSON-API or HTML-index adapter per its Kind.
func BuildRegistry(entries []common.CompanyEntry, requestTimeout time.Duration, userAgent string) (*adapters.Registry, *StaticProvider, error) {
	client := &http.Client{Timeout: requestTimeout}

	var built []adapters.Adapter
	configs := make([]initializer.CompanyConfig, 0, len(entries))

	for _, e := range entries {
		filters := models.NormalizeTitleFilters(models.TitleFilters{Include: e.Include, Exclude: e.Exclude})
		configs = append(configs, initializer.CompanyConfig{Company: e.Company, Filters: filters})

		switch e.Kind {
		case "json_api":
			built = append(built, adapters.NewJSONAPIAdapter(e.Company, e.ListURL, adapters.JSONAPIFields{
				ExternalID:   e.FieldExternalID,
				Title:        e.FieldTitle,
				Location:     e.FieldLocation,
				URL:          e.FieldURL,
				Description:  e.FieldDescription,
				Requirements: e.FieldRequirements,
			}, client, userAgent))
		case "html_index":
			built = append(built, adapters.NewHTMLIndexAdapter(e.Company, e.ListURL, adapters.HTMLIndexSelectors{
				JobRow:       e.ListingSelector,
				Title:        e.TitleSelector,
				Location:     e.LocationSelector,
				Link:         e.LinkSelector,
				Description:  e.DescriptionSelector,
				Requirements: e.RequirementsSelector,
			}, client, userAgent))
		default:
			return nil, nil, fmt.Errorf("company %s: unknown adapter kind %q", e.Company, e.Kind)
		}
	}

	registry, err := adapters.NewRegistry(built...)
	if err != nil {
		return nil, nil, err
	}
	return registry, &StaticProvider{Companies: configs}, nil
}
