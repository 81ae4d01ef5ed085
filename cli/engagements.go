// ABOUTME: Engagement and activity CLI commands
// ABOUTME: Engagements carry their staffed resources; activities log touches against contacts
package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/harperreed/crmdesk/crm"
	"github.com/harperreed/crmdesk/models"
)

// AddEngagementCommand adds an engagement with optional resources.
func AddEngagementCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("add-engagement", flag.ExitOnError)
	client := fs.String("client", "", "Client name (required)")
	service := fs.String("service", "", "Service type")
	start := fs.String("start", "", "Start date (YYYY-MM-DD)")
	end := fs.String("end", "", "End date (YYYY-MM-DD)")
	resources := fs.String("resources", "", "Comma-separated resource names")
	_ = fs.Parse(args)

	if *client == "" {
		return fmt.Errorf("--client is required")
	}

	e := models.Engagement{
		ClientName:  *client,
		ServiceType: *service,
		StartDate:   *start,
		EndDate:     *end,
	}
	for _, name := range strings.Split(*resources, ",") {
		if name = strings.TrimSpace(name); name != "" {
			e.Resources = append(e.Resources, models.Resource{Name: name})
		}
	}

	created, _, err := ctrl.AddEngagement(ctx, e)
	if err != nil {
		return fmt.Errorf("failed to create engagement: %w", err)
	}
	fmt.Fprintf(out, "✓ Engagement created: %s (ID: %d)\n", created.ClientName, created.ID)
	if len(created.Resources) > 0 {
		fmt.Fprintf(out, "  Resources: %s\n", resourceNames(created))
	}
	return nil
}

func resourceNames(e models.Engagement) string {
	names := make([]string, 0, len(e.Resources))
	for _, r := range e.Resources {
		names = append(names, r.Name)
	}
	return strings.Join(names, ", ")
}

// ListEngagementsCommand lists engagements with their resources.
func ListEngagementsCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("list-engagements", flag.ExitOnError)
	client := fs.String("client", "", "Filter by client name")
	_ = fs.Parse(args)

	key := crm.NormalizeName(*client)
	var engagements []models.Engagement
	for _, e := range ctrl.Snapshot().Engagements {
		if key != "" && crm.NormalizeName(e.ClientName) != key {
			continue
		}
		engagements = append(engagements, e)
	}
	if len(engagements) == 0 {
		fmt.Fprintln(out, "No engagements found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CLIENT\tSERVICE\tSTATUS\tRESOURCES\tID")
	_, _ = fmt.Fprintln(w, "------\t-------\t------\t---------\t--")
	for _, e := range engagements {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", e.ClientName, orDash(e.ServiceType), e.Status, orDash(resourceNames(e)), e.ID)
	}
	_ = w.Flush()

	fmt.Fprintf(out, "\nTotal: %d engagement(s)\n", len(engagements))
	return nil
}

// DeleteEngagementCommand deletes an engagement with its resources and activities.
func DeleteEngagementCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("delete-engagement", flag.ExitOnError)
	_ = fs.Parse(args)

	id, err := parseID(fs.Args(), "engagement")
	if err != nil {
		return err
	}
	if _, err := ctrl.DeleteEngagement(ctx, id); err != nil {
		return fmt.Errorf("failed to delete engagement: %w", err)
	}
	fmt.Fprintf(out, "✓ Engagement deleted: %d\n", id)
	return nil
}

// LogActivityCommand records an activity against a contact.
func LogActivityCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	kind := fs.String("type", "note", "Activity type (note, call, email, meeting, task)")
	content := fs.String("content", "", "What happened (required)")
	date := fs.String("date", "", "Date (YYYY-MM-DD)")
	_ = fs.Parse(args)

	id, err := parseID(fs.Args(), "contact")
	if err != nil {
		return err
	}
	if *content == "" {
		return fmt.Errorf("--content is required")
	}

	a, _, err := ctrl.AddActivity(ctx, models.Activity{
		Type:      *kind,
		Content:   *content,
		Date:      *date,
		ContactID: models.IDPtr(id),
	})
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	fmt.Fprintf(out, "✓ Logged %s for contact %d (ID: %d)\n", a.Type, id, a.ID)
	return nil
}
