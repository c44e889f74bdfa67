package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/go24so/pkg/resources"
)

func pickCustomers(s *resources.Set) *resources.Customers { return s.Customers }
func pickProducts(s *resources.Set) *resources.Products   { return s.Products }
func pickCategories(s *resources.Set) *resources.ProductCategories {
	return s.ProductCategories
}

func customerTable(items []resources.Customer) (table.Row, []table.Row) {
	rows := make([]table.Row, 0, len(items))
	for _, c := range items {
		rows = append(rows, table.Row{c.ID, c.Name, c.CustomerNumber, c.Email, c.Currency})
	}
	return table.Row{"ID", "Name", "Number", "Email", "Currency"}, rows
}

func productTable(items []resources.Product) (table.Row, []table.Row) {
	rows := make([]table.Row, 0, len(items))
	for _, p := range items {
		price := ""
		if p.PriceInfo != nil {
			price = fmt.Sprintf("%.2f %s", p.PriceInfo.Price, p.PriceInfo.Currency)
		}
		rows = append(rows, table.Row{p.ID, p.Name, p.SKU, p.Category, price})
	}
	return table.Row{"ID", "Name", "SKU", "Category", "Price"}, rows
}

func categoryTable(items []resources.ProductCategory) (table.Row, []table.Row) {
	rows := make([]table.Row, 0, len(items))
	for _, c := range items {
		rows = append(rows, table.Row{c.ID, c.Name, c.ParentID, c.ModifiedAt})
	}
	return table.Row{"ID", "Name", "Parent", "Modified"}, rows
}

// listFlags are shared by every list subcommand.
type listFlags struct {
	page     int
	pageSize int
	search   string
	all      bool
	filters  map[string]string
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.page, "page", resources.DefaultPage, "page to fetch")
	cmd.Flags().IntVar(&f.pageSize, "page-size", resources.DefaultPageSize, "items per page")
	cmd.Flags().StringVar(&f.search, "search", "", "free-text search")
	cmd.Flags().BoolVar(&f.all, "all", false, "fetch every page")
	cmd.Flags().StringToStringVar(&f.filters, "filter", nil, "additional query filters (key=value)")
}

func (f *listFlags) options() resources.ListOptions {
	opts := resources.ListOptions{Page: f.page, PageSize: f.pageSize, Search: f.search}
	if len(f.filters) > 0 {
		opts.Filters = url.Values{}
		for k, v := range f.filters {
			opts.Filters.Set(k, v)
		}
	}
	return opts
}

// newResourceCommand builds list, get, create, update and delete for one
// resource endpoint.
func newResourceCommand[T, U any](a *app, name, short string, pick func(*resources.Set) *resources.Service[T, U], layout tableFunc[T]) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
	}

	var lf listFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List " + name,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, cleanup, err := a.newResources()
			if err != nil {
				return err
			}
			defer cleanup()

			svc := pick(set)
			var items []T
			if lf.all {
				items, err = svc.ListAll(cmd.Context(), lf.options())
			} else {
				items, err = svc.List(cmd.Context(), lf.options())
			}
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.output, items, layout)
		},
	}
	lf.register(list)

	get := &cobra.Command{
		Use:   "get ID [ID...]",
		Short: "Get " + name + " by id; several ids are fetched in one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, cleanup, err := a.newResources()
			if err != nil {
				return err
			}
			defer cleanup()

			svc := pick(set)
			if len(args) == 1 {
				item, err := svc.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return renderOne(cmd.OutOrStdout(), a.output, item, layout)
			}

			found, err := svc.BatchGet(cmd.Context(), args)
			if err != nil {
				return err
			}
			items, missing := inOrder(args, found)
			for _, id := range missing {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s not found\n", name, id)
			}
			return render(cmd.OutOrStdout(), a.output, items, layout)
		},
	}

	var createFile string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create one of " + name + " from a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var item T
			if err := readPayload(cmd, createFile, &item); err != nil {
				return err
			}

			set, cleanup, err := a.newResources()
			if err != nil {
				return err
			}
			defer cleanup()

			created, err := pick(set).Create(cmd.Context(), &item)
			if err != nil {
				return err
			}
			return renderOne(cmd.OutOrStdout(), a.output, created, layout)
		},
	}
	create.Flags().StringVarP(&createFile, "file", "f", "-", "JSON payload file, - for stdin")

	var updateFile string
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Apply a partial JSON update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch U
			if err := readPayload(cmd, updateFile, &patch); err != nil {
				return err
			}

			set, cleanup, err := a.newResources()
			if err != nil {
				return err
			}
			defer cleanup()

			updated, err := pick(set).Update(cmd.Context(), args[0], &patch)
			if err != nil {
				return err
			}
			return renderOne(cmd.OutOrStdout(), a.output, updated, layout)
		},
	}
	update.Flags().StringVarP(&updateFile, "file", "f", "-", "JSON payload file, - for stdin")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, cleanup, err := a.newResources()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := pick(set).Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, get, create, update, del)
	return cmd
}

// inOrder returns the found items in argument order and the ids that
// were not found.
func inOrder[T any](ids []string, found map[string]T) ([]T, []string) {
	items := make([]T, 0, len(found))
	seen := make(map[string]bool, len(ids))
	var missing []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if item, ok := found[id]; ok {
			items = append(items, item)
		} else {
			missing = append(missing, id)
		}
	}
	return items, missing
}

func readPayload(cmd *cobra.Command, path string, v any) error {
	var r io.Reader
	if path == "" || path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
