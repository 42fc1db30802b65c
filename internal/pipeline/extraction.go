package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/brand-discovery/internal/model"
	"github.com/sells-group/brand-discovery/internal/uploader"
)

var titleCaser = cases.Title(language.English)

// nameFromDomain derives a presentable fallback brand name from the domain,
// e.g. "acme-tools.com" becomes "Acme Tools".
func nameFromDomain(domain string) string {
	label, _, _ := strings.Cut(domain, ".")
	label = strings.ReplaceAll(label, "-", " ")
	return titleCaser.String(label)
}

// ApplyExtraction merges completed extraction fields into the brand row and
// moves the brand into content processing. The webhook handler and the cron
// reconciler both land here, so a second application of the same job is
// harmless.
func (o *Orchestrator) ApplyExtraction(ctx context.Context, brandID string, fields model.ExtractedFields) error {
	brand, err := o.st.GetBrand(ctx, brandID)
	if err != nil {
		return err
	}

	if fields.CompanyName != "" {
		brand.Name = fields.CompanyName
	} else if brand.Name == "" {
		brand.Name = nameFromDomain(brand.PrimaryDomain)
	}
	if fields.Description != "" {
		brand.Description = fields.Description
	}
	if fields.LogoURL != "" {
		brand.LogoURL = fields.LogoURL
	}
	if brand.Slug == "" {
		brand.Slug = uploader.Slugify(brand.Name)
	}

	if brand.Metadata == nil {
		brand.Metadata = map[string]any{}
	}
	for key, val := range map[string]string{
		"industry":      fields.Industry,
		"contact_email": fields.ContactEmail,
		"phone_number":  fields.PhoneNumber,
		"address":       fields.Address,
		"pricing_info":  fields.PricingInfo,
		"main_product":  fields.MainProduct,
	} {
		if val != "" {
			brand.Metadata[key] = val
		}
	}
	delete(brand.Metadata, "extractError")

	if err := o.st.UpdateBrandFields(ctx, brand); err != nil {
		return err
	}

	advanced, err := o.st.AdvanceBrandStatus(ctx, brandID, model.CrawlStatusExtracting, model.CrawlStatusProcessing)
	if err != nil {
		return err
	}

	// The scrape can finish before the extraction does. When the mapping is
	// already terminal the crawl-completed handler found the brand still in
	// extracting and left it alone, so settle the brand here instead.
	mapping, err := o.st.GetMapping(ctx, brandID, brand.PrimaryDomain)
	if err != nil {
		return err
	}
	if mapping != nil && mapping.Status == model.MappingStatusCompleted {
		if _, err := o.st.AdvanceBrandStatus(ctx, brandID, model.CrawlStatusProcessing, model.CrawlStatusCompleted); err != nil {
			return err
		}
	}

	zap.L().Info("applied brand extraction",
		zap.String("brandId", brandID),
		zap.String("name", brand.Name),
		zap.Bool("advanced", advanced),
	)
	return nil
}

// FailExtraction records a failed extraction job against the brand.
func (o *Orchestrator) FailExtraction(ctx context.Context, brandID, reason string) error {
	if reason == "" {
		reason = "extraction failed"
	}

	brand, err := o.st.GetBrand(ctx, brandID)
	if err != nil {
		return err
	}
	if brand.Metadata == nil {
		brand.Metadata = map[string]any{}
	}
	brand.Metadata["extractError"] = reason
	if err := o.st.UpdateBrandFields(ctx, brand); err != nil {
		return err
	}

	if _, err := o.st.AdvanceBrandStatus(ctx, brandID, model.CrawlStatusExtracting, model.CrawlStatusFailed); err != nil {
		return err
	}

	zap.L().Warn("brand extraction failed",
		zap.String("brandId", brandID),
		zap.String("reason", reason),
	)
	return nil
}
