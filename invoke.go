package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

func newInvokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Call OData functions and actions",
	}

	cmd.AddCommand(newInvokeFunctionCmd())
	cmd.AddCommand(newInvokeActionCmd())

	return cmd
}

func newInvokeFunctionCmd() *cobra.Command {
	var (
		params []string
		bound  string
	)

	cmd := &cobra.Command{
		Use:   "function <name>",
		Short: "Call a function (GET) with inline parameters",
		Example: `  dataverse-go invoke function RetrieveVersion
  dataverse-go invoke function RetrieveUserQueues --param IncludePublic=true --bound "systemusers(<id>)"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			p, err := parseParams(params)
			if err != nil {
				return err
			}

			return withSession(ctx, cc, func(s *Session) error {
				resp, err := s.Client.InvokeFunction(ctx, args[0], p, bound)
				if err != nil {
					return err
				}

				return writeResponse(cmd.OutOrStdout(), cc, resp)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "parameter as name=value (repeatable)")
	cmd.Flags().StringVar(&bound, "bound", "", `entity path the function is bound to, e.g. "accounts(<id>)"`)

	return cmd
}

func newInvokeActionCmd() *cobra.Command {
	var data, file, bound string

	cmd := &cobra.Command{
		Use:   "action <name>",
		Short: "Call an action (POST) with a JSON payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			var payload any

			body, err := readPayload(data, file, cmd.InOrStdin())
			switch {
			case errors.Is(err, errNoPayload):
				// Actions without parameters take an empty object.
			case err != nil:
				return err
			default:
				payload = json.RawMessage(body)
			}

			return withSession(ctx, cc, func(s *Session) error {
				resp, err := s.Client.InvokeAction(ctx, args[0], payload, bound)
				if err != nil {
					return err
				}

				return writeResponse(cmd.OutOrStdout(), cc, resp)
			})
		},
	}

	addPayloadFlags(cmd, &data, &file)
	cmd.Flags().StringVar(&bound, "bound", "", `entity path the action is bound to, e.g. "accounts(<id>)"`)

	return cmd
}
