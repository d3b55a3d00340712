package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/PhotoShrink/internal/pkg/compressor"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/env"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/upload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env.SetupEnvFile()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "compress: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	output    string
	maxWidth  int
	maxHeight int
	targetKB  float64
	maxKB     float64
	verbose   bool
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "compress [flags] input",
		Short: "Compress a photo to a bounded JPEG",
		Long: `compress downsamples a photo to fit the maximum dimensions and re-encodes it as JPEG,
lowering the quality step by step until the result is small enough.
Defaults come from the COMPRESS_* environment variables.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := compressor.LoadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("max-width") {
				cfg.MaxWidth = opts.maxWidth
			}
			if flags.Changed("max-height") {
				cfg.MaxHeight = opts.maxHeight
			}
			if flags.Changed("target-kb") {
				cfg.TargetSizeKB = opts.targetKB
			}
			if flags.Changed("max-kb") {
				cfg.MaxSizeKB = opts.maxKB
			}
			return run(cmd.Context(), cfg, args[0], opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (default: <input>.min.jpg next to the input)")
	cmd.Flags().IntVar(&opts.maxWidth, "max-width", compressor.DefaultMaxWidth, "Maximum output width in pixels")
	cmd.Flags().IntVar(&opts.maxHeight, "max-height", compressor.DefaultMaxHeight, "Maximum output height in pixels")
	cmd.Flags().Float64Var(&opts.targetKB, "target-kb", compressor.DefaultTargetSizeKB, "Size accepted at any quality")
	cmd.Flags().Float64Var(&opts.maxKB, "max-kb", compressor.DefaultMaxSizeKB, "Size accepted once quality drops below the secondary ceiling")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print every encode attempt")
	return cmd
}

func run(ctx context.Context, cfg compressor.Config, input string, opts options, out io.Writer) error {
	c, err := compressor.New(cfg)
	if err != nil {
		return err
	}

	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := c.Compress(f)
	if err != nil {
		return err
	}

	output := opts.output
	if output == "" {
		output = defaultOutput(input)
	}
	if err := os.WriteFile(output, res.Data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	fmt.Fprintf(out, "%s: %s %dx%d -> %dx%d\n", input, res.SourceFormat, res.SourceWidth, res.SourceHeight, res.Width, res.Height)
	fmt.Fprintf(out, "size: %.0fKB -> %.0fKB (quality %.2f, %d attempts)\n",
		float64(res.SourceSize)/1024, res.SizeKB(), res.Quality, len(res.Attempts))
	if opts.verbose {
		for i, a := range res.Attempts {
			fmt.Fprintf(out, "  #%d quality %.2f: %.0fKB\n", i+1, a.Quality, float64(a.Size)/1024)
		}
	}
	fmt.Fprintf(out, "written to %s\n", output)
	return nil
}

// defaultOutput places <name>.min.jpg next to input.
func defaultOutput(input string) string {
	name := strings.TrimSuffix(upload.JPEGFileName(input), ".jpg")
	return filepath.Join(filepath.Dir(input), name+".min.jpg")
}
