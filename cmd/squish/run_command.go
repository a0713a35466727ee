package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"squish/internal/codec"
	"squish/internal/config"
	"squish/internal/engine"
	"squish/internal/items"
	"squish/internal/pool"
	"squish/internal/preflight"
)

type runOptions struct {
	outputDir     string
	format        string
	quality       int
	lossless      bool
	targetSize    string
	resizePercent float64
	maxWidth      int
	maxHeight     int
	workers       int
	skipPreflight bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Compress image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runCompression(cmd, cfg, ctx, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.outputDir, "out", "o", "", "Output directory (defaults to paths.output_dir)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format: jpeg, png, gif, webp, or svg")
	cmd.Flags().IntVarP(&opts.quality, "quality", "q", 0, "Encode quality 1-100 (defaults to compression.quality)")
	cmd.Flags().BoolVar(&opts.lossless, "lossless", false, "Lossless encoding where the format supports it")
	cmd.Flags().StringVar(&opts.targetSize, "target-size", "", "Byte budget per file, e.g. 500KB or 2MiB")
	cmd.Flags().Float64Var(&opts.resizePercent, "resize", 0, "Scale both axes by this percentage before encoding")
	cmd.Flags().IntVar(&opts.maxWidth, "max-width", 0, "Shrink to fit this width, preserving aspect ratio")
	cmd.Flags().IntVar(&opts.maxHeight, "max-height", 0, "Shrink to fit this height, preserving aspect ratio")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Worker count (defaults to pool.workers or host CPUs)")
	cmd.Flags().BoolVar(&opts.skipPreflight, "skip-preflight", false, "Skip environment checks")

	return cmd
}

func runCompression(cmd *cobra.Command, cfg *config.Config, cmdCtx *commandContext, opts runOptions, files []string) error {
	logger, err := cmdCtx.newLogger()
	if err != nil {
		return err
	}

	outputDir := strings.TrimSpace(opts.outputDir)
	if outputDir == "" {
		outputDir = cfg.Paths.OutputDir
	} else if outputDir, err = config.ExpandPath(outputDir); err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	std := codec.NewStdCodec()
	std.GIFColors = cfg.Compression.GIFColors

	if !opts.skipPreflight {
		results := preflight.Run(cfg, std)
		for _, result := range results {
			if !result.Passed {
				return fmt.Errorf("preflight: %s: %s", result.Name, result.Detail)
			}
		}
	}

	outputFormat, err := resolveFormat(opts.format, cfg.Compression.Format)
	if err != nil {
		return err
	}
	quality := opts.quality
	if quality == 0 {
		quality = cfg.Compression.Quality
	}
	if quality < 1 || quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", quality)
	}

	var targetBytes int64
	if opts.targetSize != "" {
		parsed, err := humanize.ParseBytes(opts.targetSize)
		if err != nil {
			return fmt.Errorf("parse target size %q: %w", opts.targetSize, err)
		}
		targetBytes = int64(parsed)
	}

	resize, err := resolveResize(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cmdCtx.withStore(func(store *items.SQLiteStore) error {
		ids := make([]int64, 0, len(files))
		for _, path := range files {
			item, err := ingestFile(ctx, store, path, outputDir, outputFormat, quality, opts.lossless, targetBytes, cfg.Compression.MaxProbes, resize)
			if err != nil {
				return err
			}
			ids = append(ids, item.ID)
		}

		size := opts.workers
		if size == 0 {
			size = cfg.Pool.Workers
		}
		if size == 0 {
			size = pool.DefaultSize(cfg.Pool.MinWorkers, cfg.Pool.MaxWorkers)
		}

		encodePool := pool.New(size, pool.NewEncoderUnits(std), logger,
			pool.WithInitTimeout(time.Duration(cfg.Pool.InitTimeoutSeconds)*time.Second))
		defer encodePool.Terminate()

		orch := engine.New(items.FileBackedStore{Store: store}, encodePool, engine.Capabilities{
			Rasterizer: std,
			Container:  std,
			Minifier:   codec.NewSVGMinifier(),
		}, logger)

		started := time.Now()
		if err := orch.Process(ctx, ids); err != nil {
			return err
		}
		// An interrupt cancels the batch cooperatively: queued items revert
		// to pending while in-flight encodes run to completion.
		stopCancelWatch := context.AfterFunc(ctx, orch.Cancel)
		defer stopCancelWatch()
		trackProgress(ctx, store, ids)
		if err := orch.Wait(context.Background()); err != nil {
			return err
		}

		return writeResults(cmd, store, ids, time.Since(started))
	})
}

func resolveFormat(flag, fallback string) (codec.Format, error) {
	value := strings.TrimSpace(flag)
	if value == "" {
		value = fallback
	}
	format, ok := codec.ParseFormat(value)
	if !ok {
		return "", fmt.Errorf("unknown output format %q", value)
	}
	return format, nil
}

func resolveResize(opts runOptions) (items.ResizeConfig, error) {
	if opts.resizePercent != 0 && (opts.maxWidth != 0 || opts.maxHeight != 0) {
		return items.ResizeConfig{}, fmt.Errorf("--resize cannot be combined with --max-width/--max-height")
	}
	if opts.resizePercent != 0 {
		if opts.resizePercent <= 0 || opts.resizePercent > 100 {
			return items.ResizeConfig{}, fmt.Errorf("--resize must be in (0, 100], got %v", opts.resizePercent)
		}
		return items.ResizeConfig{Mode: items.ResizePercent, Percent: opts.resizePercent}, nil
	}
	if opts.maxWidth < 0 || opts.maxHeight < 0 {
		return items.ResizeConfig{}, fmt.Errorf("--max-width and --max-height must be >= 0")
	}
	if opts.maxWidth > 0 || opts.maxHeight > 0 {
		return items.ResizeConfig{Mode: items.ResizeFit, MaxWidth: opts.maxWidth, MaxHeight: opts.maxHeight}, nil
	}
	return items.ResizeConfig{}, nil
}

func ingestFile(ctx context.Context, store *items.SQLiteStore, path, outputDir string, format codec.Format, quality int, lossless bool, targetBytes int64, maxProbes int, resize items.ResizeConfig) (*items.WorkItem, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(expanded); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	inputFormat, ok := codec.ParseFormat(filepath.Ext(expanded))
	if !ok {
		return nil, fmt.Errorf("%s: unrecognized file extension", path)
	}

	name := filepath.Base(expanded)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	outputPath := filepath.Join(outputDir, stem+"."+codec.Extension(format))

	return store.Insert(ctx, items.WorkItem{
		Name:         name,
		SourcePath:   expanded,
		OutputPath:   outputPath,
		InputFormat:  inputFormat,
		OutputFormat: format,
		Quality:      quality,
		Lossless:     lossless,
		Resize:       resize,
		TargetSize:   items.TargetSize{Bytes: targetBytes, MaxProbes: maxProbes},
	})
}

// trackProgress renders a progress bar over the batch until every tracked
// item reaches a terminal state or the context is cancelled.
func trackProgress(ctx context.Context, store *items.SQLiteStore, ids []int64) {
	bar := progressbar.NewOptions64(int64(len(ids)*100),
		progressbar.OptionSetDescription("compressing"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWriter(os.Stderr),
	)
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()

	for {
		total := 0
		settled := 0
		for _, id := range ids {
			item, err := store.GetByID(context.Background(), id)
			if err != nil || item == nil {
				settled++
				continue
			}
			total += item.Progress
			switch item.Status {
			case items.StatusCompleted, items.StatusError, items.StatusPending:
				if item.Status == items.StatusPending && item.Progress == 0 && ctx.Err() == nil {
					// Not yet started.
					continue
				}
				settled++
			}
		}
		_ = bar.Set64(int64(total))
		if settled == len(ids) {
			_ = bar.Finish()
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			// One last pass happens via Wait; the bar stops here.
			_ = bar.Finish()
			return
		}
	}
}

func writeResults(cmd *cobra.Command, store *items.SQLiteStore, ids []int64, elapsed time.Duration) error {
	rows := make([][]string, 0, len(ids))
	failures := 0
	completed := 0
	var savedBytes int64
	for _, id := range ids {
		item, err := store.GetByID(context.Background(), id)
		if err != nil {
			return err
		}
		if item == nil {
			continue
		}

		switch item.Status {
		case items.StatusCompleted:
			completed++
			if info, err := os.Stat(item.SourcePath); err == nil {
				savedBytes += info.Size() - item.ResultBytes()
			}
			rows = append(rows, completedRow(item))
		case items.StatusError:
			failures++
			rows = append(rows, []string{item.Name, statusLabel(string(item.Status)), "", "", item.ErrorKind})
		default:
			rows = append(rows, []string{item.Name, statusLabel(string(item.Status)), "", "", ""})
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(
		[]string{"File", "Status", "In", "Out", "Note"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	if completed > 0 && savedBytes > 0 {
		fmt.Fprintf(out, "%d file(s) compressed in %s, %s saved\n",
			completed, elapsed.Round(time.Millisecond), humanize.Bytes(uint64(savedBytes)))
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d files failed", failures, len(ids))
	}
	return nil
}

func completedRow(item *items.WorkItem) []string {
	inSize := uint64(0)
	if info, err := os.Stat(item.SourcePath); err == nil {
		inSize = uint64(info.Size())
	}
	note := ""
	if item.TargetSize.Warning != "" {
		note = item.TargetSize.Warning
	} else if item.TargetSize.AchievedQuality > 0 {
		note = fmt.Sprintf("quality %d", item.TargetSize.AchievedQuality)
	}
	return []string{
		item.Name,
		statusLabel(string(item.Status)),
		humanize.Bytes(inSize),
		humanize.Bytes(uint64(item.ResultBytes())),
		note,
	}
}
