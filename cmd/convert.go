// cmd/convert.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/conversion"
	"github.com/Akashdeep-Patra/gif-pipeline/internal/pipeline"
	"github.com/Akashdeep-Patra/gif-pipeline/internal/probe"
	"github.com/Akashdeep-Patra/gif-pipeline/internal/progress"
	"github.com/Akashdeep-Patra/gif-pipeline/internal/tools"
)

type ConvertOptions struct {
	Input       string
	Output      string
	FPS         int
	Start       string
	Duration    string
	Width       int
	Height      int
	Quality     string
	Interactive bool
	NoProgress  bool
	NoOptimize  bool
}

var opts ConvertOptions

var convertCmd = &cobra.Command{
	Use:   "convert [video file]",
	Short: "Convert a video clip to a GIF",
	Long: `Convert a clip of a video file to an optimized GIF.
You can either provide options via flags or use interactive mode.
If no arguments are provided, interactive mode is enabled by default.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 && opts.Input == "" {
			opts.Input = args[0]
		}
		applyConfigDefaults(cmd)

		// Enable interactive mode automatically if no input is provided
		if opts.Input == "" && !opts.Interactive {
			if len(args) == 0 && cmd.Flags().NFlag() == 0 {
				opts.Interactive = true
			} else {
				return fmt.Errorf("input file is required (use --input or -i)")
			}
		}

		if opts.Interactive {
			if err := promptForOptions(); err != nil {
				return fmt.Errorf("error in interactive mode: %w", err)
			}
		}

		// Set default output if not provided
		if opts.Output == "" {
			inputBase := filepath.Base(opts.Input)
			opts.Output = strings.TrimSuffix(inputBase, filepath.Ext(inputBase)) + ".gif"
		}

		return convertVideo(cmd.Context())
	},
}

func init() {
	convertCmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Input video file (required unless using interactive mode)")
	convertCmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output GIF file (default: input_name.gif)")
	convertCmd.Flags().IntVarP(&opts.FPS, "fps", "f", 10, "Frames per second (1-60)")
	convertCmd.Flags().StringVar(&opts.Start, "start", "", "Start time (HH:MM:SS[.ms], MM:SS or seconds)")
	convertCmd.Flags().StringVar(&opts.Duration, "duration", "", "Duration (HH:MM:SS[.ms], MM:SS or seconds; default: until the end)")
	convertCmd.Flags().IntVarP(&opts.Width, "width", "w", 0, "Output width in pixels (default: same as input)")
	convertCmd.Flags().IntVar(&opts.Height, "height", 0, "Output height in pixels (default: keep aspect ratio)")
	convertCmd.Flags().StringVarP(&opts.Quality, "quality", "q", "medium", "Output quality: low, medium, high or 1-100")
	convertCmd.Flags().BoolVarP(&opts.Interactive, "interactive", "I", false, "Use interactive mode (default if no arguments provided)")
	convertCmd.Flags().BoolVar(&opts.NoProgress, "no-progress", false, "Disable progress bar")
	convertCmd.Flags().BoolVar(&opts.NoOptimize, "no-optimize", false, "Skip gifsicle optimization")

	rootCmd.AddCommand(convertCmd)
}

// applyConfigDefaults fills options the user did not pass on the command line.
func applyConfigDefaults(cmd *cobra.Command) {
	flags := cmd.Flags()
	if !flags.Changed("fps") {
		opts.FPS = cfg.Defaults.FPS
	}
	if !flags.Changed("quality") {
		opts.Quality = cfg.DefaultQuality().String()
	}
	if !flags.Changed("width") {
		opts.Width = cfg.Defaults.Width
	}
	if !flags.Changed("height") {
		opts.Height = cfg.Defaults.Height
	}
}

func promptForOptions() error {
	var inputQuestion = &survey.Input{
		Message: "Input video file path:",
		Help:    "Path to the video file you want to convert to a GIF",
		Default: opts.Input,
	}
	if err := survey.AskOne(inputQuestion, &opts.Input, survey.WithValidator(survey.Required), survey.WithValidator(fileExists)); err != nil {
		return err
	}

	defaultOutput := strings.TrimSuffix(opts.Input, filepath.Ext(opts.Input)) + ".gif"
	var outputQuestion = &survey.Input{
		Message: "Output GIF file path:",
		Default: defaultOutput,
	}
	if err := survey.AskOne(outputQuestion, &opts.Output); err != nil {
		return err
	}
	if !strings.HasSuffix(strings.ToLower(opts.Output), ".gif") {
		opts.Output += ".gif"
	}

	// FPS prompt
	var fpsStr string
	var fpsQuestion = &survey.Input{
		Message: "Frames per second (higher = smoother but larger file):",
		Default: strconv.Itoa(opts.FPS),
	}
	if err := survey.AskOne(fpsQuestion, &fpsStr, survey.WithValidator(intInRange(conversion.MinFPS, conversion.MaxFPS))); err != nil {
		return err
	}
	opts.FPS, _ = strconv.Atoi(fpsStr)

	var startQuestion = &survey.Input{
		Message: "Start time (format: 00:00:00, leave empty for beginning):",
	}
	if err := survey.AskOne(startQuestion, &opts.Start, survey.WithValidator(timestamp)); err != nil {
		return err
	}

	var durationQuestion = &survey.Input{
		Message: "Duration (format: 00:00:00, leave empty for the rest of the video):",
	}
	if err := survey.AskOne(durationQuestion, &opts.Duration, survey.WithValidator(timestamp)); err != nil {
		return err
	}

	var widthStr string
	var widthQuestion = &survey.Input{
		Message: "Width in pixels (leave empty to keep original size):",
	}
	if err := survey.AskOne(widthQuestion, &widthStr, survey.WithValidator(optionalPositive)); err != nil {
		return err
	}
	if widthStr != "" {
		opts.Width, _ = strconv.Atoi(widthStr)
	}

	// Quality prompt
	qualityOptions := []string{"Low (smaller file)", "Medium", "High (larger file)"}
	qualityValues := []string{"low", "medium", "high"}
	var qualityIndex int
	var qualityQuestion = &survey.Select{
		Message: "Select quality:",
		Options: qualityOptions,
		Default: 1,
	}
	if err := survey.AskOne(qualityQuestion, &qualityIndex); err != nil {
		return err
	}
	opts.Quality = qualityValues[qualityIndex]

	optimize := !opts.NoOptimize
	optimizeQuestion := &survey.Confirm{
		Message: "Optimize the GIF with gifsicle?",
		Default: optimize,
	}
	if err := survey.AskOne(optimizeQuestion, &optimize); err != nil {
		return err
	}
	opts.NoOptimize = !optimize
	return nil
}

func fileExists(ans interface{}) error {
	path, _ := ans.(string)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return fmt.Errorf("input file does not exist: %s", path)
	}
	return nil
}

func timestamp(ans interface{}) error {
	value, _ := ans.(string)
	if value == "" {
		return nil
	}
	if _, ok := progress.ParseTimestamp(value); !ok {
		return fmt.Errorf("invalid time %q (use HH:MM:SS, MM:SS or seconds)", value)
	}
	return nil
}

func optionalPositive(ans interface{}) error {
	value, _ := ans.(string)
	if value == "" {
		return nil
	}
	if n, err := strconv.Atoi(value); err != nil || n < 1 {
		return fmt.Errorf("invalid value: %s", value)
	}
	return nil
}

func intInRange(lo, hi int) survey.Validator {
	return func(ans interface{}) error {
		value, _ := ans.(string)
		n, err := strconv.Atoi(value)
		if err != nil || n < lo || n > hi {
			return fmt.Errorf("must be a number between %d and %d", lo, hi)
		}
		return nil
	}
}

// buildRequest turns the command-line options into a conversion request.
// A missing duration means "until the end", which needs ffprobe.
func buildRequest(ctx context.Context) (conversion.Request, error) {
	req := conversion.Request{
		Source:       opts.Input,
		Destination:  opts.Output,
		FPS:          opts.FPS,
		Width:        dimension(opts.Width),
		Height:       dimension(opts.Height),
		SkipOptimize: opts.NoOptimize,
	}

	quality, err := conversion.ParseQuality(opts.Quality)
	if err != nil {
		return req, err
	}
	req.Quality = quality

	if opts.Start != "" {
		start, ok := progress.ParseTimestamp(opts.Start)
		if !ok {
			return req, fmt.Errorf("invalid start time %q", opts.Start)
		}
		req.Start = start
	}

	if opts.Duration != "" {
		duration, ok := progress.ParseTimestamp(opts.Duration)
		if !ok {
			return req, fmt.Errorf("invalid duration %q", opts.Duration)
		}
		req.Duration = duration
		return req, nil
	}

	info, err := probeSource(ctx, opts.Input)
	if err != nil {
		return req, fmt.Errorf("--duration is required when the source cannot be probed: %w", err)
	}
	req.Duration = info.Duration - req.Start
	if req.Duration <= 0 {
		return req, fmt.Errorf("start time %s is beyond the end of the video (%s)",
			progress.FormatTimestamp(req.Start), progress.FormatTimestamp(info.Duration))
	}
	return req, nil
}

func dimension(pixels int) conversion.Dimension {
	if pixels == 0 {
		return conversion.Auto
	}
	return conversion.Pixels(pixels)
}

func probeSource(ctx context.Context, path string) (probe.Info, error) {
	ffprobe, err := getLocator().Resolve(ctx, tools.Prober)
	if err != nil {
		return probe.Info{}, err
	}
	return probe.FFprobe{}.Inspect(ctx, ffprobe, path)
}

func convertVideo(ctx context.Context) error {
	logger := GetLogger()
	logger.Infof("Starting conversion: %s -> %s", opts.Input, opts.Output)

	req, err := buildRequest(ctx)
	if err != nil {
		return err
	}

	p := newPipeline()
	if removed, err := pipeline.SweepScratch(p.ScratchDir(), logger); err != nil {
		logger.WithError(err).Warn("Could not sweep scratch directory")
	} else if removed > 0 {
		logger.Infof("Removed %d stale run directories", removed)
	}

	startTime := time.Now()
	handle := p.Submit(ctx, req)
	logger.WithField("run_id", handle.ID()).Debug("Run submitted")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		select {
		case <-signals:
			fmt.Fprintln(os.Stderr, color.YellowString("\nCancelling..."))
			handle.Cancel()
		case <-handle.Done():
		}
	}()

	display := newProgressDisplay(!opts.NoProgress, isTerminal(os.Stderr))
	handle.Subscribe(display.Update, display.Finish)
	outcome, err := handle.Wait(context.Background())
	if err != nil {
		return err
	}
	display.Wait()

	switch o := outcome.(type) {
	case conversion.Succeeded:
		printSummary(req, o, time.Since(startTime))
		return nil
	case conversion.Cancelled:
		color.Yellow("Conversion cancelled during %s; no output was written.", o.Stage)
		return errCancelled
	case conversion.Failed:
		if errors.Is(o.Err, conversion.ErrToolNotFound) {
			logger.WithError(o.Err).Error("Required tool missing")
		}
		return fmt.Errorf("conversion failed during %s: %s", o.Stage, o.Diagnostic())
	}
	return fmt.Errorf("unexpected outcome %v", outcome)
}

func printSummary(req conversion.Request, o conversion.Succeeded, elapsed time.Duration) {
	dimensions := "source size"
	if !req.Width.IsAuto() || !req.Height.IsAuto() {
		dimensions = fmt.Sprintf("%sx%s", req.Width, req.Height)
	}
	frames := int(req.Duration.Seconds() * float64(req.FPS))
	optimized := "yes (" + req.Quality.String() + ")"
	if req.SkipOptimize {
		optimized = "no"
	} else if o.IntermediateSize > 0 {
		optimized = fmt.Sprintf("%s, %.0f%% smaller", req.Quality, o.Reduction())
	}

	fmt.Println()
	color.New(color.FgHiGreen, color.Bold).Println("✅ GIF created successfully!")

	fmt.Println()
	fmt.Println("┌─" + strings.Repeat("─", 50) + "┐")
	fmt.Printf("│ %-20s %-28s │\n", color.New(color.FgHiCyan).Sprint(" Output:"), o.OutputPath)
	fmt.Printf("│ %-20s %-28s │\n", color.New(color.FgHiCyan).Sprint(" Size:"), HumanizeBytes(o.OutputSize))
	fmt.Printf("│ %-20s %-28s │\n", color.New(color.FgHiCyan).Sprint(" Dimensions:"), dimensions)
	fmt.Printf("│ %-20s %-28s │\n", color.New(color.FgHiCyan).Sprint(" Frames:"), fmt.Sprintf("~%d frames at %d fps", frames, req.FPS))
	if !req.SkipOptimize && o.IntermediateSize > 0 {
		fmt.Printf("│ %-20s %-28s │\n", color.New(color.FgHiCyan).Sprint(" Before optimizing:"), HumanizeBytes(o.IntermediateSize))
	}
	fmt.Printf("│ %-20s %-28s │\n", color.New(color.FgHiCyan).Sprint(" Optimized:"), optimized)
	fmt.Printf("│ %-20s %-28s │\n", color.New(color.FgHiCyan).Sprint(" Conversion time:"), fmt.Sprintf("%.1f seconds", elapsed.Seconds()))
	fmt.Println("└─" + strings.Repeat("─", 50) + "┘")

	GetLogger().Infof("Conversion completed: %s (%s) in %.1f seconds", o.OutputPath, HumanizeBytes(o.OutputSize), elapsed.Seconds())
}
