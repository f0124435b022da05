package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/notifications"
)

var errNotificationsDisabled = errors.New("notifications.ntfy_topic is not set; nothing to test")

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
				return errNotificationsDisabled
			}
			host, _ := os.Hostname()
			service := notifications.NewService(cfg)
			err = service.Publish(cmd.Context(), notifications.EventTest, notifications.Payload{
				"message": fmt.Sprintf("Herald test notification from %s at %s", host, time.Now().Format(time.RFC3339)),
			})
			if err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
