// Package companies provides the per-user catalog of companies a run
// fans out across, along with each company's title filters.
package companies

import (
	"context"

	"github.com/zduanx/jobtrawl/internal/initializer"
	"github.com/zduanx/jobtrawl/internal/models"
)

// SettingsProvider resolves the companies a user has configured for
// ingestion. A production deployment backs this with a user-settings
// table or an external profile service; StaticProvider below is the
// fixed-list implementation used where no such store exists yet.
type SettingsProvider interface {
	CompaniesFor(ctx context.Context, userID string) ([]initializer.CompanyConfig, error)
}

// StaticProvider returns the same fixed company list for every user.
type StaticProvider struct {
	Companies []initializer.CompanyConfig
}

// NewStaticProvider builds a StaticProvider from a plain company-tag list,
// applying no title filters.
func NewStaticProvider(companyTags ...string) *StaticProvider {
	configs := make([]initializer.CompanyConfig, 0, len(companyTags))
	for _, tag := range companyTags {
		configs = append(configs, initializer.CompanyConfig{
			Company: tag,
			Filters: models.NormalizeTitleFilters(models.TitleFilters{}),
		})
	}
	return &StaticProvider{Companies: configs}
}

// CompaniesFor implements SettingsProvider.
func (p *StaticProvider) CompaniesFor(_ context.Context, _ string) ([]initializer.CompanyConfig, error) {
	return p.Companies, nil
}
