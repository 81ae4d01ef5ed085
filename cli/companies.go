// ABOUTME: Company CLI commands
// ABOUTME: Lists stored and virtual companies; promotes virtual ones to stored rows
package cli

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/harperreed/crmdesk/crm"
	"github.com/harperreed/crmdesk/models"
)

// AddCompanyCommand adds a new company.
func AddCompanyCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("add-company", flag.ExitOnError)
	name := fs.String("name", "", "Company name (required)")
	website := fs.String("website", "", "Website")
	industry := fs.String("industry", "", "Industry")
	size := fs.String("size", "", "Company size")
	_ = fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	company, _, err := ctrl.AddCompany(ctx, models.Company{
		Name:     *name,
		Website:  *website,
		Industry: *industry,
		Size:     *size,
	})
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}

	fmt.Fprintf(out, "✓ Company created: %s (ID: %d)\n", company.Name, company.ID)
	return nil
}

// ListCompaniesCommand lists stored companies and the virtual ones implied by contacts.
func ListCompaniesCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("list-companies", flag.ExitOnError)
	virtualOnly := fs.Bool("virtual", false, "Only show companies with no stored record")
	_ = fs.Parse(args)

	views := ctrl.Companies()
	if len(views) == 0 {
		fmt.Fprintln(out, "No companies found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tINDUSTRY\tCONTACTS\tKIND\tID")
	_, _ = fmt.Fprintln(w, "----\t--------\t--------\t----\t--")
	shown := 0
	for _, v := range views {
		if *virtualOnly && !v.Virtual {
			continue
		}
		kind := "stored"
		if v.Virtual {
			kind = "virtual"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\n", v.Name, orDash(v.Industry), len(v.Contacts), kind, v.ID)
		shown++
	}
	_ = w.Flush()

	fmt.Fprintf(out, "\nTotal: %d compan(ies)\n", shown)
	return nil
}

// PromoteCompanyCommand stores a virtual company under its exact name.
func PromoteCompanyCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("promote-company", flag.ExitOnError)
	website := fs.String("website", "", "Website")
	industry := fs.String("industry", "", "Industry")
	size := fs.String("size", "", "Company size")
	_ = fs.Parse(args)

	id, err := parseID(fs.Args(), "company")
	if err != nil {
		return err
	}

	company, _, err := ctrl.PromoteCompany(ctx, id, crm.CompanyProfile{
		Website:  *website,
		Industry: *industry,
		Size:     *size,
	})
	if err != nil {
		return fmt.Errorf("failed to promote company: %w", err)
	}
	fmt.Fprintf(out, "✓ Company promoted: %s (ID: %d)\n", company.Name, company.ID)
	return nil
}

// DeleteCompanyCommand deletes a stored company. Its contacts are kept.
func DeleteCompanyCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("delete-company", flag.ExitOnError)
	_ = fs.Parse(args)

	id, err := parseID(fs.Args(), "company")
	if err != nil {
		return err
	}
	if _, err := ctrl.DeleteCompany(ctx, id); err != nil {
		return fmt.Errorf("failed to delete company: %w", err)
	}
	fmt.Fprintf(out, "✓ Company deleted: %d\n", id)
	return nil
}
