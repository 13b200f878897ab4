package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/dataverse-go/internal/dataverse"
)

func newGetCmd() *cobra.Command {
	var opts dataverse.GetOptions

	cmd := &cobra.Command{
		Use:   "get <entity-set> <id>",
		Short: "Read one record by key",
		Example: `  dataverse-go get accounts 00000000-0000-0000-0000-000000000001
  dataverse-go get contacts 5c1e... --select fullname,emailaddress1 -o json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			return withSession(ctx, cc, func(s *Session) error {
				rec, err := s.Client.Get(ctx, args[0], args[1], opts)
				if err != nil {
					return err
				}

				return writeRecord(cmd.OutOrStdout(), cc.Flags.Output, rec)
			})
		},
	}

	cmd.Flags().StringSliceVar(&opts.Select, "select", nil, "columns to return")
	cmd.Flags().StringSliceVar(&opts.Expand, "expand", nil, "navigation properties to expand")

	return cmd
}

func newCreateCmd() *cobra.Command {
	var data, file string

	cmd := &cobra.Command{
		Use:   "create <entity-set>",
		Short: "Create a record and print its representation",
		Example: `  dataverse-go create accounts --data '{"name":"Contoso"}'
  dataverse-go create contacts --file contact.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			body, err := readPayload(data, file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			return withSession(ctx, cc, func(s *Session) error {
				resp, err := s.Client.Create(ctx, args[0], json.RawMessage(body))
				if err != nil {
					return err
				}

				return writeResponse(cmd.OutOrStdout(), cc, resp)
			})
		},
	}

	addPayloadFlags(cmd, &data, &file)

	return cmd
}

func newUpdateCmd() *cobra.Command {
	var data, file string

	cmd := &cobra.Command{
		Use:   "update <entity-set> <id>",
		Short: "Apply a partial update to a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			body, err := readPayload(data, file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			return withSession(ctx, cc, func(s *Session) error {
				if err := s.Client.Update(ctx, args[0], args[1], json.RawMessage(body)); err != nil {
					return err
				}

				cc.Statusf("Updated %s(%s)\n", args[0], args[1])

				return nil
			})
		},
	}

	addPayloadFlags(cmd, &data, &file)

	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entity-set> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			return withSession(ctx, cc, func(s *Session) error {
				if err := s.Client.Delete(ctx, args[0], args[1]); err != nil {
					return err
				}

				cc.Statusf("Deleted %s(%s)\n", args[0], args[1])

				return nil
			})
		},
	}
}

func addPayloadFlags(cmd *cobra.Command, data, file *string) {
	cmd.Flags().StringVarP(data, "data", "d", "", `JSON body, "@path" to read a file, or "-" for stdin`)
	cmd.Flags().StringVarP(file, "file", "f", "", "JSON or YAML file holding the body")
}

// writeResponse prints a tagged response: JSON bodies as records, raw
// bodies verbatim, and the entity id for empty responses.
func writeResponse(w io.Writer, cc *CLIContext, resp *dataverse.Response) error {
	switch resp.Kind {
	case dataverse.KindJSON:
		rec, err := resp.Record()
		if err != nil {
			return err
		}

		return writeRecord(w, cc.Flags.Output, rec)
	case dataverse.KindRaw:
		_, err := w.Write(resp.Body)
		return err
	default:
		if id := resp.EntityID(); id != "" {
			_, err := fmt.Fprintln(w, id)
			return err
		}

		cc.Statusf("Done (HTTP %d)\n", resp.StatusCode)

		return nil
	}
}
