// ABOUTME: Contact CLI commands
// ABOUTME: Human-friendly commands for managing contacts through the active Store
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

// AddContactCommand adds a new contact.
func AddContactCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("add-contact", flag.ExitOnError)
	name := fs.String("name", "", "Contact name (required)")
	email := fs.String("email", "", "Email address")
	phone := fs.String("phone", "", "Phone number")
	company := fs.String("company", "", "Company name")
	jobTitle := fs.String("job-title", "", "Job title")
	notes := fs.String("notes", "", "Notes about the contact")
	_ = fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	contact, _, err := ctrl.AddContact(ctx, models.Contact{
		Name:     *name,
		Email:    *email,
		Phone:    *phone,
		Company:  *company,
		JobTitle: *jobTitle,
		Notes:    *notes,
	})
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}

	fmt.Fprintf(out, "✓ Contact created: %s (ID: %d)\n", contact.Name, contact.ID)
	if contact.Email != "" {
		fmt.Fprintf(out, "  Email: %s\n", contact.Email)
	}
	if contact.Company != "" {
		fmt.Fprintf(out, "  Company: %s\n", contact.Company)
	}
	return nil
}

// ListContactsCommand lists contacts, optionally filtered.
func ListContactsCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("list-contacts", flag.ExitOnError)
	query := fs.String("query", "", "Search by name or email")
	company := fs.String("company", "", "Filter by company name")
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	contacts := FilterContacts(ctrl.Snapshot().Contacts, *query, *company, *limit)
	if len(contacts) == 0 {
		fmt.Fprintln(out, "No contacts found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tEMAIL\tCOMPANY\tSTATUS\tID")
	_, _ = fmt.Fprintln(w, "----\t-----\t-------\t------\t--")
	for _, c := range contacts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", c.Name, orDash(c.Email), orDash(c.Company), c.Status, c.ID)
	}
	_ = w.Flush()

	fmt.Fprintf(out, "\nTotal: %d contact(s)\n", len(contacts))
	return nil
}

// FilterContacts matches query against name and email and company against
// the normalised company name. limit <= 0 means no limit.
func FilterContacts(contacts []models.Contact, query, company string, limit int) []models.Contact {
	q := strings.ToLower(strings.TrimSpace(query))
	key := crm.NormalizeName(company)

	var result []models.Contact
	for _, c := range contacts {
		if q != "" && !strings.Contains(strings.ToLower(c.Name), q) && !strings.Contains(strings.ToLower(c.Email), q) {
			continue
		}
		if key != "" && crm.NormalizeName(c.Company) != key {
			continue
		}
		result = append(result, c)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

func findContact(ctrl *crm.Controller, id int64) (models.Contact, error) {
	for _, c := range ctrl.Snapshot().Contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Contact{}, fmt.Errorf("contact not found: %d", id)
}

// UpdateContactCommand updates an existing contact. Only flags that are set change.
func UpdateContactCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("update-contact", flag.ExitOnError)
	name := fs.String("name", "", "Contact name")
	email := fs.String("email", "", "Email address")
	phone := fs.String("phone", "", "Phone number")
	company := fs.String("company", "", "Company name")
	status := fs.String("status", "", "Status")
	lifecycle := fs.String("lifecycle", "", "Lifecycle stage")
	notes := fs.String("notes", "", "Notes about the contact")
	_ = fs.Parse(args)

	id, err := parseID(fs.Args(), "contact")
	if err != nil {
		return err
	}
	existing, err := findContact(ctrl, id)
	if err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			existing.Name = *name
		case "email":
			existing.Email = *email
		case "phone":
			existing.Phone = *phone
		case "company":
			existing.Company = *company
		case "status":
			existing.Status = *status
		case "lifecycle":
			existing.Lifecycle = *lifecycle
		case "notes":
			existing.Notes = *notes
		}
	})

	if _, _, err := ctrl.UpdateContact(ctx, existing); err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	fmt.Fprintf(out, "✓ Contact updated: %s (ID: %d)\n", existing.Name, id)
	return nil
}

// DeleteContactCommand deletes a contact and its activities.
func DeleteContactCommand(ctx context.Context, ctrl *crm.Controller, args []string) error {
	fs := flag.NewFlagSet("delete-contact", flag.ExitOnError)
	_ = fs.Parse(args)

	id, err := parseID(fs.Args(), "contact")
	if err != nil {
		return err
	}
	if _, err := ctrl.DeleteContact(ctx, id); err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	fmt.Fprintf(out, "✓ Contact deleted: %d\n", id)
	return nil
}
