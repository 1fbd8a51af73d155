// main package for kani-tts, the batch command-line runner: it synthesises a
// text, or every line of a text file, to WAV files.
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/book-expert/kani-tts-service/internal/cache"
	"github.com/book-expert/kani-tts-service/internal/config"
	"github.com/book-expert/kani-tts-service/internal/fileutil"
	"github.com/book-expert/kani-tts-service/internal/speaker"
	"github.com/book-expert/kani-tts-service/internal/tts"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
)

// Flag names.
const (
	flagText        = "text"
	flagFile        = "file"
	flagWhole       = "whole"
	flagSpeaker     = "speaker"
	flagOutput      = "output"
	flagNoNormalize = "no-normalize"
	flagConfig      = "config"
	flagHealth      = "health"
	flagSpeakers    = "speakers"
	flagVerbose     = "verbose"
)

// Flag descriptions.
const (
	flagTextDesc        = "Text to convert to speech"
	flagFileDesc        = "Text file with one utterance per non-empty line"
	flagWholeDesc       = "Read --file as a single utterance instead of one per line"
	flagSpeakerDesc     = "Speaker ID or label (see --speakers); defaults to " + speaker.DefaultID
	flagOutputDesc      = "Output .wav file for a single utterance, or output directory"
	flagNoNormalizeDesc = "Send text to the model without Vietnamese normalisation"
	flagConfigDesc      = "Path to project.toml (defaults to the configurator search)"
	flagHealthDesc      = "Check backend health and exit"
	flagSpeakersDesc    = "List available speakers and exit"
	flagVerboseDesc     = "Print progress messages"
)

// Messages.
const (
	msgServiceHealthy  = "TTS backend is healthy"
	msgFmtUnhealthy    = "TTS backend is not healthy: %v\n"
	msgFmtSpeaker      = "%-14s %s\n"
	msgFmtGenerated    = "[%d/%d] %s | %s audio in %s | %s\n"
	msgFmtBatchSummary = "Generated %d file(s) in %s\n"
	msgUnspecifiedID   = "(none)"
)

const (
	logFileNameDefault = "kani-tts.log"
	logFileNameVerbose = "kani-tts-verbose.log"
	defaultOutputFile  = "output.wav"
	wavExtension       = ".wav"
)

var (
	// ErrNoInput is returned when neither --text nor --file is given.
	ErrNoInput = errors.New("either --text or --file must be provided")
	// ErrBothInputs is returned when both --text and --file are given.
	ErrBothInputs = errors.New("cannot specify both --text and --file")
	// ErrWholeWithoutFile is returned when --whole is used without --file.
	ErrWholeWithoutFile = errors.New("--whole requires --file")
	// ErrNotTextFile is returned for input files that are not plain text.
	ErrNotTextFile = errors.New("input is not a text file")
	// ErrNoUtterances is returned when the input holds no text.
	ErrNoUtterances = errors.New("no utterances found in input")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text         string
	file         string
	speaker      string
	output       string
	config       string
	whole        bool
	noNormalize  bool
	health       bool
	listSpeakers bool
	verbose      bool
}

func main() {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err = run(ctx, os.Args[1:], os.Stdout)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application entry point, returning an error on failure.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	if flags.listSpeakers {
		printSpeakers(stdout)

		return nil
	}

	if !flags.health {
		err = validateFlags(flags)
		if err != nil {
			return err
		}
	}

	cfg, log, err := setup(flags.config, flags.verbose)
	if err != nil {
		return err
	}

	defer func() { _ = log.Close() }()

	pipeline, err := newPipeline(cfg, log)
	if err != nil {
		return err
	}

	if flags.health {
		return handleHealthCheck(ctx, pipeline, log, stdout)
	}

	return handleExecution(ctx, pipeline, cfg, flags, stdout)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("kani-tts", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.file, flagFile, "", flagFileDesc)
	flagSet.BoolVar(&flags.whole, flagWhole, false, flagWholeDesc)
	flagSet.StringVar(&flags.speaker, flagSpeaker, "", flagSpeakerDesc)
	flagSet.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flagSet.BoolVar(&flags.noNormalize, flagNoNormalize, false, flagNoNormalizeDesc)
	flagSet.StringVar(&flags.config, flagConfig, "", flagConfigDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flagSet.BoolVar(&flags.listSpeakers, flagSpeakers, false, flagSpeakersDesc)
	flagSet.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// validateFlags checks required and conflicting input flags.
func validateFlags(flags appFlags) error {
	switch {
	case flags.text == "" && flags.file == "":
		return ErrNoInput
	case flags.text != "" && flags.file != "":
		return ErrBothInputs
	case flags.whole && flags.file == "":
		return ErrWholeWithoutFile
	}

	_, err := speaker.Resolve(flags.speaker)
	if err != nil {
		return fmt.Errorf("invalid --%s: %w", flagSpeaker, err)
	}

	return nil
}

// setup loads the configuration and opens the log file.
func setup(configPath string, verbose bool) (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := logger.New(os.TempDir(), "kani-tts-bootstrap.log")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	defer func() { _ = bootstrapLog.Close() }()

	cfg, err := loadConfig(configPath, bootstrapLog)
	if err != nil {
		return nil, nil, err
	}

	logFileName := logFileNameDefault
	if verbose {
		logFileName = logFileNameVerbose
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, log, nil
}

// loadConfig reads configPath when given. Otherwise it uses the configurator
// search and falls back to defaults when no project file is found.
func loadConfig(configPath string, log *logger.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}

		return cfg, nil
	}

	cfg, err := config.Load(log)
	if err == nil {
		return cfg, nil
	}

	log.Warn("No project configuration loaded, using defaults: %v", err)

	cfg, err = config.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load default configuration: %w", err)
	}

	return cfg, nil
}

func newPipeline(cfg *config.Config, log *logger.Logger) (*tts.Pipeline, error) {
	synthesizer, err := tts.NewSynthesizer(cfg.TTS, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}

	chunkCache, err := cache.New(cfg.Cache.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk cache: %w", err)
	}

	return tts.NewPipeline(synthesizer, chunkCache, log, tts.SettingsFromConfig(cfg)), nil
}

func printSpeakers(stdout io.Writer) {
	for _, voice := range speaker.All() {
		id := voice.ID
		if voice.Unspecified() {
			id = msgUnspecifiedID
		}

		fmt.Fprintf(stdout, msgFmtSpeaker, id, voice.Label)
	}
}

// handleHealthCheck performs a backend health check and prints the result.
func handleHealthCheck(ctx context.Context, pipeline *tts.Pipeline, log *logger.Logger, stdout io.Writer) error {
	err := pipeline.HealthCheck(ctx)
	if err != nil {
		log.Error("Health check failed: %v", err)
		fmt.Fprintf(stdout, msgFmtUnhealthy, err)

		return err
	}

	fmt.Fprintln(stdout, msgServiceHealthy)

	return nil
}

// handleExecution reads the utterances and synthesises each to its own file.
func handleExecution(
	ctx context.Context,
	pipeline *tts.Pipeline,
	cfg *config.Config,
	flags appFlags,
	stdout io.Writer,
) error {
	utterances := []string{strings.TrimSpace(flags.text)}

	if flags.file != "" {
		var err error

		utterances, err = readUtterances(flags.file, flags.whole)
		if err != nil {
			return err
		}
	}

	voice, err := speaker.Resolve(flags.speaker)
	if err != nil {
		return err
	}

	if flags.speaker == "" {
		voice = speaker.Default()
	}

	template := tts.Request{SpeakerID: voice.ID, Normalize: !flags.noNormalize && !cfg.Text.DisableNormalize}
	if flags.verbose {
		template.Progress = func(progress tts.Progress) {
			fmt.Fprintln(stdout, progress.Message)
		}
	}

	paths := outputPaths(flags.output, cfg.Paths.OutputDir, utterances)

	return synthesizeAll(ctx, pipeline, template, utterances, paths, stdout)
}

// readUtterances returns the trimmed non-empty lines of path, or its whole
// trimmed content when whole is set.
func readUtterances(path string, whole bool) ([]string, error) {
	if !fileutil.IsTextFile(path) {
		return nil, fmt.Errorf("%w: %s", ErrNotTextFile, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	if whole {
		content := strings.TrimSpace(string(data))
		if content == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoUtterances, path)
		}

		return []string{content}, nil
	}

	var utterances []string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), len(data)+1)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			utterances = append(utterances, line)
		}
	}

	err = scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	if len(utterances) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoUtterances, path)
	}

	return utterances, nil
}

// outputPaths decides where each utterance is written. A single utterance
// goes to output when it names a .wav file; otherwise output (or the default
// directory) holds one numbered file per utterance.
func outputPaths(output, defaultDir string, utterances []string) []string {
	if len(utterances) == 1 && strings.EqualFold(filepath.Ext(output), wavExtension) {
		return []string{output}
	}

	dir := output
	if dir == "" {
		dir = defaultDir
	}

	if len(utterances) == 1 && output == "" {
		return []string{filepath.Join(dir, defaultOutputFile)}
	}

	paths := make([]string, len(utterances))
	for index, utterance := range utterances {
		paths[index] = filepath.Join(dir, fileutil.OutputName(index+1, utterance))
	}

	return paths
}

func synthesizeAll(
	ctx context.Context,
	pipeline *tts.Pipeline,
	template tts.Request,
	utterances []string,
	paths []string,
	stdout io.Writer,
) error {
	var totalElapsed float64

	for index, utterance := range utterances {
		req := template
		req.Text = utterance

		result, err := pipeline.SynthesizeToFile(ctx, req, paths[index])
		if err != nil {
			return fmt.Errorf("utterance %d: %w", index+1, err)
		}

		size := "?"
		if info, statErr := os.Stat(paths[index]); statErr == nil {
			size = fileutil.FormatFileSize(info.Size())
		}

		totalElapsed += result.Elapsed.Seconds()

		fmt.Fprintf(stdout, msgFmtGenerated, index+1, len(utterances), paths[index],
			fileutil.FormatDuration(result.Duration.Seconds()),
			fileutil.FormatDuration(result.Elapsed.Seconds()), size)
	}

	fmt.Fprintf(stdout, msgFmtBatchSummary, len(utterances), fileutil.FormatDuration(totalElapsed))

	return nil
}
