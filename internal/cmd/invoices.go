package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/go24so/pkg/resources"
)

func pickInvoices(s *resources.Set) *resources.Service[resources.Invoice, resources.InvoiceUpdate] {
	return s.Invoices.Service
}

func invoiceTable(items []resources.Invoice) (table.Row, []table.Row) {
	rows := make([]table.Row, 0, len(items))
	for _, inv := range items {
		total := ""
		if inv.Totals != nil {
			total = fmt.Sprintf("%.2f %s", inv.Totals.Total, inv.Currency)
		}
		rows = append(rows, table.Row{inv.ID, inv.InvoiceNumber, inv.CustomerID, inv.Status, inv.DueDate, total})
	}
	return table.Row{"ID", "Number", "Customer", "Status", "Due", "Total"}, rows
}

// newInvoicesCommand adds the invoice lifecycle actions to the resource
// commands. Filter lists with --filter status=SENT or --filter customerId=42.
func newInvoicesCommand(a *app) *cobra.Command {
	cmd := newResourceCommand(a, "invoices", "Manage invoices", pickInvoices, invoiceTable)

	action := func(use, short string, run func(cmd *cobra.Command, inv *resources.Invoices, id string) (*resources.Invoice, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " ID",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				set, cleanup, err := a.newResources()
				if err != nil {
					return err
				}
				defer cleanup()

				inv, err := run(cmd, set.Invoices, args[0])
				if err != nil {
					return err
				}
				return renderOne(cmd.OutOrStdout(), a.output, inv, invoiceTable)
			},
		}
	}

	send := action("send", "Send an invoice to its customer", func(cmd *cobra.Command, inv *resources.Invoices, id string) (*resources.Invoice, error) {
		return inv.Send(cmd.Context(), id)
	})

	var paidOn string
	markPaid := action("mark-paid", "Mark an invoice as paid", func(cmd *cobra.Command, inv *resources.Invoices, id string) (*resources.Invoice, error) {
		var date resources.Date
		if paidOn != "" {
			d, err := resources.ParseDate(paidOn)
			if err != nil {
				return nil, fmt.Errorf("--date: %w", err)
			}
			date = d
		}
		return inv.MarkPaid(cmd.Context(), id, date)
	})
	markPaid.Flags().StringVar(&paidOn, "date", "", "payment date (YYYY-MM-DD, default today on the server)")

	credit := action("credit", "Create a credit note for an invoice", func(cmd *cobra.Command, inv *resources.Invoices, id string) (*resources.Invoice, error) {
		return inv.CreditNote(cmd.Context(), id)
	})

	cmd.AddCommand(send, markPaid, credit)
	return cmd
}
