/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/jjudge-oj/accounts/config"
	"github.com/jjudge-oj/accounts/internal/notify"
	"github.com/jjudge-oj/accounts/internal/storage"
	"github.com/spf13/cobra"
)

// templateCmd represents the template command
var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage the welcome email template override in object storage",
}

var templatePushCmd = &cobra.Command{
	Use:   "push <file>",
	Short: "Upload an HTML welcome template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if _, err := notify.NewTemplates("subject", string(body)); err != nil {
			return err
		}

		cfg := config.LoadConfig()
		objects, err := openTemplateStorage(cmd, cfg)
		if err != nil {
			return err
		}
		defer objects.Close()

		if err := objects.EnsureBucket(cmd.Context()); err != nil {
			return fmt.Errorf("ensure bucket: %w", err)
		}
		if err := objects.PutBytes(cmd.Context(), cfg.Storage.WelcomeTemplateKey, body, "text/html; charset=utf-8"); err != nil {
			return fmt.Errorf("upload template: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s to %s/%s\n", args[0], objects.Bucket(), cfg.Storage.WelcomeTemplateKey)
		return nil
	},
}

var templateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the template override and fall back to the built-in template",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		objects, err := openTemplateStorage(cmd, cfg)
		if err != nil {
			return err
		}
		defer objects.Close()

		if err := objects.Delete(cmd.Context(), cfg.Storage.WelcomeTemplateKey); err != nil {
			return fmt.Errorf("delete template: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s/%s\n", objects.Bucket(), cfg.Storage.WelcomeTemplateKey)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templatePushCmd)
	templateCmd.AddCommand(templateResetCmd)
}

func openTemplateStorage(cmd *cobra.Command, cfg config.Config) (*storage.Storage, error) {
	objects, err := storage.Open(cmd.Context(), cfg.Storage)
	if err != nil {
		return nil, err
	}
	if objects == nil {
		return nil, errors.New("STORAGE_BACKEND is not configured")
	}
	return objects, nil
}
