package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"posterpro/ai"
	"posterpro/common"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "posterpro",
		Short:         "Turn research papers into PowerPoint posters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load before reading the environment")
	root.AddCommand(newServeCommand(&envFile), newGenerateCommand(&envFile))
	return root
}

func newServeCommand(envFile *string) *cobra.Command {
	var port string
	var workers int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			a.Workers = workers

			return NewServer(a.Services).Run(ctx, addrFor(cfg.Port))
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default from PORT)")
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "maximum posters generated at once")
	return cmd
}

func newGenerateCommand(envFile *string) *cobra.Command {
	var (
		template    string
		outputDir   string
		provider    string
		dummy       bool
		figures     []string
		descs       []string
		autoFigures bool
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "generate <pdf>",
		Short: "Build one poster from a PDF",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !dummy {
				return fmt.Errorf("a PDF path is required unless --dummy is set")
			}
			if len(figures) > common.MaxFigures {
				return fmt.Errorf("at most %d figures", common.MaxFigures)
			}
			cfg, logger, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			if provider != "" {
				name, ok := ai.NormalizeProvider(provider)
				if !ok {
					return fmt.Errorf("unknown provider %q", provider)
				}
				provider = name
			} else {
				provider = cfg.DefaultProvider
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg.AutoFigures = autoFigures
			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			templatePath := ""
			if template != "" {
				if _, err := os.Stat(template); err == nil {
					templatePath = template
				} else if templatePath, err = a.Library.Resolve(template); err != nil {
					return err
				}
			}
			if outputDir == "" {
				outputDir = "./output/output_" + time.Now().Format("20060102_150405")
			}

			req := common.PosterRequest{
				OutputDir:          outputDir,
				TemplatePath:       templatePath,
				Provider:           provider,
				Figures:            padded(figures),
				FigureDescriptions: padded(descs),
				UseDummy:           dummy || cfg.UseDummyData,
				AutoFigures:        autoFigures,
			}
			if len(args) == 1 {
				req.PDFPath = args[0]
				if _, err := common.ValidatePDF(req.PDFPath); err != nil {
					return err
				}
			} else {
				req.OutputName = common.PosterFileName("dummy_data.pdf", time.Now())
			}

			res, err := a.Pipeline.Run(ctx, req)
			if err != nil {
				return fmt.Errorf("pipeline failed: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			logger.Info().Str("output", res.OutputPath).Str("mode", res.Mode).Msg("pipeline completed successfully")
			fmt.Fprintln(cmd.OutOrStdout(), res.OutputPath)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&template, "template", "", "template file or library name (default template when empty)")
	f.StringVar(&outputDir, "output-dir", "", "output directory")
	f.StringVar(&provider, "provider", "", "AI provider: openai, anthropic or gemini")
	f.BoolVar(&dummy, "dummy", false, "use stored dummy content instead of calling a provider")
	f.StringArrayVar(&figures, "figure", nil, "figure image, repeat for up to four slots")
	f.StringArrayVar(&descs, "desc", nil, "figure caption, in the same order as --figure")
	f.BoolVar(&autoFigures, "auto-figures", false, "detect figures in the PDF to fill empty slots")
	f.BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func padded(vals []string) []string {
	out := make([]string, common.MaxFigures)
	copy(out, vals)
	return out
}
