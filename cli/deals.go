// ABOUTME: Deal CLI commands
// ABOUTME: Adds, lists and deletes pipeline deals
package cli

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/harperreed/crmdesk/crm"
	"github.com/harperreed/crmdesk/models"
)

// AddDealCommand adds a new deal.
func AddDealCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("add-deal", flag.ExitOnError)
	title := fs.String("title", "", "Deal title (required)")
	company := fs.String("company", "", "Company name")
	value := fs.Float64("value", 0, "Deal value")
	stage := fs.String("stage", "", "Stage (defaults to Lead)")
	probability := fs.Int64("probability", -1, "Win probability, 0-100")
	closeDate := fs.String("close-date", "", "Expected close date (YYYY-MM-DD)")
	contactID := fs.Int64("contact", 0, "Contact ID")
	_ = fs.Parse(args)

	if *title == "" {
		return fmt.Errorf("--title is required")
	}
	if *probability > 100 {
		return fmt.Errorf("--probability must be between 0 and 100")
	}

	deal := models.Deal{
		Title:     *title,
		Company:   *company,
		Value:     *value,
		Stage:     *stage,
		CloseDate: *closeDate,
	}
	if *probability >= 0 {
		deal.Probability = *probability
	}
	if *contactID > 0 {
		deal.ContactID = models.IDPtr(*contactID)
	}

	created, _, err := ctrl.AddDeal(ctx, deal)
	if err != nil {
		return fmt.Errorf("failed to create deal: %w", err)
	}

	fmt.Fprintf(out, "✓ Deal created: %s (ID: %d)\n", created.Title, created.ID)
	fmt.Fprintf(out, "  Stage: %s\n", created.Stage)
	if created.Value > 0 {
		fmt.Fprintf(out, "  Value: %.2f\n", created.Value)
	}
	return nil
}

// ListDealsCommand lists deals, optionally by stage.
func ListDealsCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("list-deals", flag.ExitOnError)
	stage := fs.String("stage", "", "Filter by stage")
	_ = fs.Parse(args)

	var deals []models.Deal
	for _, d := range ctrl.Snapshot().Deals {
		if *stage != "" && d.Stage != *stage {
			continue
		}
		deals = append(deals, d)
	}
	if len(deals) == 0 {
		fmt.Fprintln(out, "No deals found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TITLE\tCOMPANY\tSTAGE\tVALUE\tPROB\tID")
	_, _ = fmt.Fprintln(w, "-----\t-------\t-----\t-----\t----\t--")
	var total float64
	for _, d := range deals {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d%%\t%d\n", d.Title, orDash(d.Company), d.Stage, d.Value, d.Probability, d.ID)
		total += d.Value
	}
	_ = w.Flush()

	fmt.Fprintf(out, "\nTotal: %d deal(s), %.2f in pipeline\n", len(deals), total)
	return nil
}

// DeleteDealCommand deletes a deal.
func DeleteDealCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("delete-deal", flag.ExitOnError)
	_ = fs.Parse(args)

	id, err := parseID(fs.Args(), "deal")
	if err != nil {
		return err
	}
	if _, err := ctrl.DeleteDeal(ctx, id); err != nil {
		return fmt.Errorf("failed to delete deal: %w", err)
	}
	fmt.Fprintf(out, "✓ Deal deleted: %d\n", id)
	return nil
}
