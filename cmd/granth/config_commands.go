package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"granth/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigPathCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set the OCR and transliteration API keys (or export SARVAM_API_KEY and GEMINI_API_KEY) before running granth.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Catalog URL:        %s\n", cfg.Catalog.URL)
			fmt.Fprintf(out, "Staging directory:  %s\n", cfg.Paths.StagingDir)
			fmt.Fprintf(out, "Delivery directory: %s\n", cfg.Paths.DeliveryDir)
			fmt.Fprintf(out, "Ledger:             %s\n", cfg.Paths.LedgerPath)
			fmt.Fprintf(out, "Translit cache:     %s\n", cfg.Paths.TranslitCache)
			fmt.Fprintf(out, "Log directory:      %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "OCR language:       %s\n", cfg.OCR.Language)
			fmt.Fprintf(out, "OCR key set:        %s\n", yesNo(strings.TrimSpace(cfg.OCR.APIKey) != ""))
			fmt.Fprintf(out, "Translit model:     %s\n", cfg.Transliteration.Model)
			fmt.Fprintf(out, "Translit key set:   %s\n", yesNo(strings.TrimSpace(cfg.Transliteration.APIKey) != ""))
			fmt.Fprintf(out, "Target script:      %s\n", cfg.Transliteration.TargetScript)
			fmt.Fprintf(out, "Converter:          %s\n", cfg.Converter.Binary)
			fmt.Fprintf(out, "Retry limit:        %d\n", cfg.Workflow.RetryLimit)
			fmt.Fprintf(out, "Overwrite delivery: %s\n", yesNo(cfg.Delivery.Overwrite))
			fmt.Fprintf(out, "Include raw PDFs:   %s\n", yesNo(cfg.Delivery.IncludeRaw))
			return nil
		},
	}
}

func newConfigPathCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the configuration file path in use",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var requested string
			if ctx.configFlag != nil {
				requested = strings.TrimSpace(*ctx.configFlag)
			}

			out := cmd.OutOrStdout()
			if _, path, found, err := config.Load(requested); err == nil {
				fmt.Fprintln(out, path)
				if !found {
					fmt.Fprintln(out, "(file does not exist yet; defaults are in effect)")
				}
				return nil
			}

			// Load fails on validation problems too; still report where the
			// file would live.
			if requested != "" {
				expanded, err := config.ExpandPath(requested)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, expanded)
				return nil
			}
			defaultPath, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, defaultPath)
			return nil
		},
	}
}
