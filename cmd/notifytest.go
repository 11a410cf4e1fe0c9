package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/monitor"
)

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "Send a sample alert through every configured notifier",
	RunE:  runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	d := newDispatcher(cfg, *zerolog.Ctx(cmd.Context()))
	d.SetEnabled(true)

	now := time.Now()
	bucket, err := model.NewBucket(model.Daily, 8.5, 10)
	if err != nil {
		return err
	}
	snap := model.NewSnapshot(now, []model.Reading{{Bucket: bucket, Level: model.Warning}})
	n := monitor.Notification{
		ID:       uuid.NewString(),
		Kind:     model.Daily,
		Level:    model.Warning,
		Bucket:   bucket,
		Snapshot: snap,
		At:       now,
		Title:    "pburn test alert",
		Message:  "If you can read this, notifications work.",
	}

	fmt.Printf("  Sending through: %v\n", d.Notifiers())
	if err := d.Deliver(cmd.Context(), n); err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	fmt.Println("  Sent.")
	return nil
}
