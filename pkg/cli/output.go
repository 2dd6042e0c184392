package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

// printJSON writes v as indented JSON to the command's stdout. When query is
// non-empty it is applied as a gjson path first, so scripts can pull a single
// field without piping through jq (e.g. --query "0.version").
func printJSON(cmd *cobra.Command, v interface{}, query string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	if query != "" {
		result := gjson.GetBytes(data, query)
		if !result.Exists() {
			return fmt.Errorf("query %q matched nothing", query)
		}
		cmd.Println(result.String())
		return nil
	}

	var indented interface{}
	if err := json.Unmarshal(data, &indented); err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(indented, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(pretty))
	return nil
}

// addQueryFlag registers the shared --query flag on a JSON-emitting command.
func addQueryFlag(cmd *cobra.Command, query *string) {
	cmd.Flags().StringVarP(query, "query", "q", "", "gjson path applied to the JSON output")
}
