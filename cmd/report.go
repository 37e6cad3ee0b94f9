package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mohammad-safakhou/apilog/config"
	"github.com/mohammad-safakhou/apilog/internal/bundle"
	"github.com/mohammad-safakhou/apilog/internal/insight"
	"github.com/mohammad-safakhou/apilog/internal/report"
	"github.com/mohammad-safakhou/apilog/models"
)

func reportCMD() *cobra.Command {
	var (
		cfgPath    string
		bundlePath string
		format     string
		req        report.Request
	)
	var cmd = &cobra.Command{
		Use:   "report",
		Short: "Generate one report and print it",
		Long: "Generate one report. With --bundle the saved widget bundle is analysed offline " +
			"by the deterministic engine; otherwise widgets are collected from the configured base.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unknown format %q (json or yaml)", format)
			}
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			var doc models.ReportDocument
			if bundlePath != "" {
				b, err := readBundle(bundlePath)
				if err != nil {
					return err
				}
				opts := insight.DefaultOptions()
				opts.TrendThresholdPct = cfg.Report.TrendThresholdPct
				svc := report.NewService(report.Options{Engine: insight.New(opts)})
				doc = svc.FromBundle(cmd.Context(), b, req)
			} else {
				svc, err := buildService(cmd.Context(), cfg, false)
				if err != nil {
					return err
				}
				doc = svc.Generate(cmd.Context(), req)
			}
			return writeReport(cmd.OutOrStdout(), doc, format)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")
	cmd.Flags().StringVar(&bundlePath, "bundle", "", "saved widget bundle (json) to analyse offline")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.Flags().StringVar(&req.Window.From, "from", "", "window start")
	cmd.Flags().StringVar(&req.Window.To, "to", "", "window end")
	cmd.Flags().StringVar(&req.Window.Bucket, "bucket", report.DefaultBucket, "aggregation bucket")
	cmd.Flags().StringVar(&req.Window.SiteID, "site-id", "", "site identifier")
	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "free-form hint for the report")
	cmd.Flags().StringVar(&req.Language, "language", report.DefaultLanguage, "report language")
	cmd.Flags().StringVar(&req.Audience, "audience", report.DefaultAudience, "report audience")
	cmd.Flags().IntVar(&req.WordLimit, "word-limit", report.DefaultWordLimit, "approximate word limit")
	return cmd
}

func readBundle(path string) (*bundle.WidgetBundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var b bundle.WidgetBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode bundle %s: %w", path, err)
	}
	return &b, nil
}

func writeReport(w io.Writer, doc models.ReportDocument, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
