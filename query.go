package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/dataverse-go/internal/dataverse"
	"github.com/tonimelisma/dataverse-go/internal/odata"
)

func newQueryCmd() *cobra.Command {
	var (
		spec     odata.QuerySpec
		maxPages int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "query <entity-set>",
		Short: "Read a collection, following every page",
		Example: `  dataverse-go query accounts --select name,revenue --filter "revenue gt 1000000" --orderby "name asc"
  dataverse-go query contacts --top 10 -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			var opts []dataverse.QueryOption

			if !cmd.Flags().Changed("max-pages") {
				maxPages = cc.Cfg.MaxPages
			}

			if !cmd.Flags().Changed("page-size") {
				pageSize = cc.Cfg.MaxPageSize
			}

			if maxPages > 0 {
				opts = append(opts, dataverse.WithMaxPages(maxPages))
			}

			if pageSize > 0 {
				opts = append(opts, dataverse.WithMaxPageSize(pageSize))
			}

			return withSession(ctx, cc, func(s *Session) error {
				records, err := s.Client.Query(ctx, args[0], spec, opts...)
				if err != nil {
					if errors.Is(err, dataverse.ErrPageLimit) {
						cc.Logger.Warn("query stopped at page limit", slog.Int("max_pages", maxPages))
					}

					return err
				}

				cc.Logger.Debug("query complete", slog.Int("records", len(records)))

				return writeRecords(cmd.OutOrStdout(), cc.Flags.Output, records, spec.Select)
			})
		},
	}

	cmd.Flags().StringSliceVar(&spec.Select, "select", nil, "columns to return")
	cmd.Flags().StringVar(&spec.Filter, "filter", "", "OData $filter expression")
	cmd.Flags().StringSliceVar(&spec.Expand, "expand", nil, "navigation properties to expand")
	cmd.Flags().StringVar(&spec.OrderBy, "orderby", "", "OData $orderby expression")
	cmd.Flags().IntVar(&spec.Top, "top", 0, "maximum number of records")
	cmd.Flags().IntVar(&spec.Skip, "skip", 0, "number of records to skip")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "fail if more pages than this remain (0 = unbounded)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "preferred records per page (odata.maxpagesize)")

	return cmd
}
