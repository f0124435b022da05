package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"herald/internal/adaptation"
	"herald/internal/config"
	"herald/internal/media/ffprobe"
	"herald/internal/queue"
)

func newAdaptCommand(ctx *commandContext) *cobra.Command {
	var formatFlag string
	var platformFlag string
	var allFormats bool
	var outDir string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "adapt <file>",
		Short: "Render platform-ready copies of an image or video",
		Long: "Render a source file to one format (--format or --platform), or to every\n" +
			"format with --all. Output defaults to paths.adapted_dir/manual.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			target := strings.TrimSpace(outDir)
			if target == "" {
				target = filepath.Join(cfg.Paths.AdaptedDir, "manual")
			}
			engine, err := newCLIEngine(cfg)
			if err != nil {
				return err
			}

			var renditions []adaptation.Rendition
			if allFormats {
				byFormat, err := engine.AdaptForAllPlatforms(cmd.Context(), source, target)
				if err != nil {
					return err
				}
				for _, format := range adaptation.Formats() {
					renditions = append(renditions, byFormat[format])
				}
			} else {
				format, err := resolveFormat(formatFlag, platformFlag, source)
				if err != nil {
					return err
				}
				rendition, err := engine.Adapt(cmd.Context(), source, format, target)
				if err != nil {
					return err
				}
				renditions = append(renditions, rendition)
			}

			if jsonOutput {
				return writeJSON(cmd, renditions)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Format", "Size", "Bytes", "Path"},
				buildRenditionRows(renditions),
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Target format ("+formatList()+")")
	cmd.Flags().StringVarP(&platformFlag, "platform", "p", "", "Pick the best format for this platform")
	cmd.Flags().BoolVar(&allFormats, "all", false, "Render every format")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagsMutuallyExclusive("format", "platform", "all")

	cmd.AddCommand(newAdaptCheckCommand(ctx))
	cmd.AddCommand(newAdaptFormatsCommand())
	return cmd
}

func newAdaptCheckCommand(ctx *commandContext) *cobra.Command {
	var formatFlag string
	var platformFlag string

	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Report whether a file already satisfies a format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			format, err := resolveFormat(formatFlag, platformFlag, source)
			if err != nil {
				return err
			}
			engine, err := newCLIEngine(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if engine.NeedsAdaptation(source, format) {
				fmt.Fprintf(out, "%s needs adaptation for %s\n", filepath.Base(source), format)
			} else {
				fmt.Fprintf(out, "%s already matches %s\n", filepath.Base(source), format)
			}
			if !adaptation.IsVideo(source) {
				return nil
			}
			// Videos are always re-encoded; show what the source holds.
			probe, err := ffprobe.Inspect(cmd.Context(), cfg.Adaptation.FFprobeBinary, source)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Could not probe source: %v\n", err)
				return nil
			}
			fmt.Fprintf(out, "Source: %s\n", describeProbe(probe))
			return nil
		},
	}
	cmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Target format ("+formatList()+")")
	cmd.Flags().StringVarP(&platformFlag, "platform", "p", "", "Pick the best format for this platform")
	cmd.MarkFlagsMutuallyExclusive("format", "platform")
	return cmd
}

func newAdaptFormatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "formats",
		Short:       "List rendition formats",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(adaptation.Formats()))
			for _, format := range adaptation.Formats() {
				spec, _ := adaptation.SpecFor(format)
				rows = append(rows, []string{
					string(format),
					fmt.Sprintf("%dx%d", spec.Width, spec.Height),
					spec.AspectRatio,
					spec.Container,
					fmt.Sprintf("%d MB", spec.MaxSizeMB),
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Format", "Size", "Aspect", "Container", "Max"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newCLIEngine(cfg *config.Config) (*adaptation.Engine, error) {
	logger, err := cliLogger(cfg)
	if err != nil {
		return nil, err
	}
	return adaptation.NewEngine(adaptation.OptionsFromConfig(cfg), adaptation.WithLogger(logger)), nil
}

// resolveFormat honors --format, then --platform with the source's media kind.
func resolveFormat(formatFlag, platformFlag, source string) (adaptation.Format, error) {
	if strings.TrimSpace(formatFlag) != "" {
		return adaptation.ParseFormat(formatFlag)
	}
	if strings.TrimSpace(platformFlag) != "" {
		platform, err := queue.ParsePlatform(platformFlag)
		if err != nil {
			return "", err
		}
		return adaptation.BestFormat(platform, adaptation.IsVideo(source)), nil
	}
	return "", errors.New("one of --format, --platform, or --all is required")
}

func buildRenditionRows(renditions []adaptation.Rendition) [][]string {
	rows := make([][]string, 0, len(renditions))
	for _, r := range renditions {
		rows = append(rows, []string{
			string(r.Format),
			fmt.Sprintf("%dx%d", r.Width, r.Height),
			fmt.Sprint(r.SizeBytes),
			r.Path,
		})
	}
	return rows
}

func formatList() string {
	formats := adaptation.Formats()
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

func describeProbe(probe ffprobe.Result) string {
	parts := []string{}
	if codec := probe.VideoCodec(); codec != "" {
		parts = append(parts, codec)
	}
	if w, h, ok := probe.Dimensions(); ok {
		parts = append(parts, fmt.Sprintf("%dx%d", w, h))
	}
	if d := probe.DurationSeconds(); d > 0 {
		parts = append(parts, fmt.Sprintf("%.1fs", d))
	}
	parts = append(parts, fmt.Sprintf("%d audio stream(s)", probe.AudioStreamCount()))
	if size := probe.SizeBytes(); size > 0 {
		parts = append(parts, humanBytes(size))
	}
	return strings.Join(parts, ", ")
}
