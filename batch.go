package main

import (
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/dataverse-go/internal/odata"
)

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch <file>",
		Short: "Submit write operations as one atomic changeset",
		Long: `Submit the operations in a JSON or YAML file as a single $batch changeset.
Either every operation is applied or none is. The file holds a list of
operations, or an object with an "operations" list:

  - method: POST
    url: accounts
    body: {name: Contoso}
    content_id: "1"
  - method: PATCH
    url: contacts(00000000-0000-0000-0000-000000000001)
    body: {jobtitle: Buyer}`,
		Args: cobra.ExactArgs(1),
		RunE: runBatch,
	}
}

// batchPartOutput is the structured form of one changeset response.
type batchPartOutput struct {
	ContentID  string `json:"content_id,omitempty" yaml:"content_id,omitempty"`
	StatusCode int    `json:"status" yaml:"status"`
	EntityID   string `json:"entity_id,omitempty" yaml:"entity_id,omitempty"`
	Body       string `json:"body,omitempty" yaml:"body,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	ops, err := readBatchFile(args[0])
	if err != nil {
		return err
	}

	cc.Logger.Debug("submitting batch", slog.Int("operations", len(ops)))

	return withSession(ctx, cc, func(s *Session) error {
		parts, err := s.Client.Batch(ctx, ops)
		if err != nil {
			return err
		}

		return writeBatchParts(cmd.OutOrStdout(), cc.Flags.Output, parts)
	})
}

func writeBatchParts(w io.Writer, format string, parts []odata.BatchPartResponse) error {
	out := make([]batchPartOutput, 0, len(parts))
	for _, p := range parts {
		out = append(out, batchPartOutput{
			ContentID:  p.ContentID,
			StatusCode: p.StatusCode,
			EntityID:   p.Header.Get("OData-EntityId"),
			Body:       string(p.Body),
		})
	}

	if done, err := writeStructured(w, format, out); done {
		return err
	}

	rows := make([][]string, 0, len(out))
	for _, p := range out {
		rows = append(rows, []string{p.ContentID, strconv.Itoa(p.StatusCode), p.EntityID})
	}

	return printTable(w, []string{"CONTENT-ID", "STATUS", "ENTITY-ID"}, rows)
}
