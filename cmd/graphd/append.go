package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/graphd/internal/config"
	"github.com/steveyegge/graphd/internal/eventlog"
)

var (
	appendCategory  string
	appendKey       string
	appendEventType string
	appendPayload   string
)

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Append a single event to the log from the command line",
	Long: `Appends one event to the given (category, key) stream, the same
operation the HTTP POST /events/{category}/{key} endpoint performs,
useful for scripting and operator backfills.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if appendCategory == "" || appendKey == "" || appendEventType == "" {
			return fmt.Errorf("append: --category, --key, and --type are all required")
		}

		var payload json.RawMessage
		if appendPayload != "" {
			if !json.Valid([]byte(appendPayload)) {
				return fmt.Errorf("append: --payload is not valid JSON")
			}
			payload = json.RawMessage(appendPayload)
		} else {
			payload = json.RawMessage("{}")
		}

		ctx, cancel := signalContext()
		defer cancel()

		pctx, err := config.NewContext(ctx, configPath)
		if err != nil {
			return fmt.Errorf("append: %w", err)
		}
		defer pctx.Close()

		evLog := eventlog.New(pctx.Store)
		ev, err := evLog.Append(ctx, eventlog.AppendRequest{
			Category:  appendCategory,
			Key:       appendKey,
			EventType: appendEventType,
			Payload:   payload,
		})
		if err != nil {
			return fmt.Errorf("append: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ev)
	},
}

func init() {
	appendCmd.Flags().StringVar(&appendCategory, "category", "", "stream category (e.g. entity, edge)")
	appendCmd.Flags().StringVar(&appendKey, "key", "", "stream key (e.g. a graph UUID)")
	appendCmd.Flags().StringVar(&appendEventType, "type", "", "event type (e.g. create, update, delete)")
	appendCmd.Flags().StringVar(&appendPayload, "payload", "", "event payload as a JSON object (default: {})")
	rootCmd.AddCommand(appendCmd)
}
