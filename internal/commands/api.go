package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagepass/passctl/internal/appctx"
)

// NewAPICmd creates the api command for raw API access.
func NewAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api <verb> <path>",
		Short: "Raw API access",
		Long:  "Make raw authenticated requests to any StagePass API endpoint.",
	}

	cmd.AddCommand(
		newAPIGetCmd(),
		newAPIPostCmd(),
		newAPIPutCmd(),
		newAPIDeleteCmd(),
	)

	return cmd
}

func newAPIGetCmd() *cobra.Command {
	var jqExpr string
	var paginate bool

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "GET request to API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			path := parsePath(args[0])

			var raw json.RawMessage
			if paginate {
				items, err := app.Client.GetAll(cmd.Context(), path)
				if err != nil {
					return err
				}
				combined, err := json.Marshal(items)
				if err != nil {
					return err
				}
				raw = combined
			} else {
				resp, err := app.Client.Get(cmd.Context(), path)
				if err != nil {
					return err
				}
				raw = resp.Data
			}

			if jqExpr != "" {
				filtered, err := applyJQ(raw, jqExpr)
				if err != nil {
					return err
				}
				return app.OK(filtered)
			}
			return app.OK(raw)
		},
	}

	cmd.Flags().StringVar(&jqExpr, "jq", "", "Filter the response through a jq expression")
	cmd.Flags().BoolVar(&paginate, "paginate", false, "Follow Link headers and fetch all pages")
	return cmd
}

func newAPIPostCmd() *cobra.Command {
	var data string
	var jqExpr string

	cmd := &cobra.Command{
		Use:   "post <path>",
		Short: "POST request to API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			body, err := parseBody(data)
			if err != nil {
				return err
			}

			resp, err := app.Client.Post(cmd.Context(), parsePath(args[0]), body)
			if err != nil {
				return err
			}

			if jqExpr != "" {
				filtered, err := applyJQ(resp.Data, jqExpr)
				if err != nil {
					return err
				}
				return app.OK(filtered)
			}
			return app.OK(resp.Data)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body (required)")
	cmd.Flags().StringVar(&jqExpr, "jq", "", "Filter the response through a jq expression")
	return cmd
}

func newAPIPutCmd() *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "put <path>",
		Short: "PUT request to API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			body, err := parseBody(data)
			if err != nil {
				return err
			}

			resp, err := app.Client.Put(cmd.Context(), parsePath(args[0]), body)
			if err != nil {
				return err
			}
			return app.OK(resp.Data)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body (required)")
	return cmd
}

func newAPIDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "DELETE request to API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			path := parsePath(args[0])
			resp, err := app.Client.Delete(cmd.Context(), path)
			if err != nil {
				return err
			}

			if len(resp.Data) == 0 {
				return app.OKSummary(map[string]bool{"deleted": true}, fmt.Sprintf("Deleted %s", path))
			}
			return app.OK(resp.Data)
		},
	}
}
