package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"media-relay/internal/dispatch"
	"media-relay/internal/filesystem"
	"media-relay/internal/logging"
	"media-relay/internal/mediatypes"
	"media-relay/internal/normalizer"
	"media-relay/internal/tempfiles"
	"media-relay/internal/transcoder"
)

// options are the flags shared by every subcommand.
type options struct {
	ffmpeg   string
	ffprobe  string
	scratch  string
	timeout  time.Duration
	logLevel string
}

// env is the set of components a subcommand runs against.
type env struct {
	trans *transcoder.Transcoder
	temp  *tempfiles.Manager
}

func (o *options) env() *env {
	return &env{
		trans: transcoder.New(transcoder.Config{
			FFmpegPath:  o.ffmpeg,
			FFprobePath: o.ffprobe,
			JobTimeout:  o.timeout,
		}),
		temp: tempfiles.New(o.scratch),
	}
}

func (e *env) close() {
	e.trans.Cleanup()
	e.temp.Flush()
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "relayctl",
		Short:         "Inspect and convert media the way the relay server does",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logging.ParseLevel(opts.logLevel)
			if !ok {
				return fmt.Errorf("invalid log level %q", opts.logLevel)
			}
			logging.SetLevel(level)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ffmpeg, "ffmpeg", envOr("FFMPEG_PATH", "ffmpeg"), "ffmpeg executable")
	flags.StringVar(&opts.ffprobe, "ffprobe", envOr("FFPROBE_PATH", "ffprobe"), "ffprobe executable")
	flags.StringVar(&opts.scratch, "scratch", envOr("SCRATCH_DIR", filepath.Join(os.TempDir(), "relayctl")), "scratch directory for intermediate files")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "per-job transcode timeout")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newResolveCommand(),
		newProbeCommand(opts),
		newOptimizeCommand(opts),
		newCompressCommand(opts),
		newDispatchCommand(opts),
	)
	return cmd
}

func newResolveCommand() *cobra.Command {
	var declared string
	cmd := &cobra.Command{
		Use:   "resolve <file>",
		Short: "Show how a file would be classified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			head, err := readHead(args[0])
			if err != nil {
				return err
			}
			resolved := mediatypes.Resolve(filepath.Base(args[0]), declared, head)
			return printJSON(cmd.OutOrStdout(), resolved)
		},
	}
	cmd.Flags().StringVar(&declared, "content-type", "", "declared content type to resolve against")
	return cmd
}

func newProbeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Print the duration of a media file in seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			e := opts.env()
			defer e.close()

			seconds, err := e.trans.ProbeDuration(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%.3f\n", seconds)
			return err
		},
	}
}

func newOptimizeCommand(opts *options) *cobra.Command {
	var enhance normalizer.Options
	cmd := &cobra.Command{
		Use:   "optimize <in> <out>",
		Short: "Apply the recorder quality pass and write an mp3",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudio(cmd, opts, args[0], args[1], func(ctx context.Context, svc *normalizer.Service, data []byte, ext string) (*normalizer.Result, error) {
				return svc.Optimize(ctx, data, ext, enhance)
			})
		},
	}
	cmd.Flags().BoolVar(&enhance.Normalize, "normalize", false, "apply loudness normalization and voice EQ")
	cmd.Flags().BoolVar(&enhance.RemoveNoise, "remove-noise", false, "apply FFT denoise and compression")
	return cmd
}

func newCompressCommand(opts *options) *cobra.Command {
	var (
		targetKB int
		enhance  normalizer.Options
	)
	cmd := &cobra.Command{
		Use:   "compress <in> <out>",
		Short: "Encode an mp3 sized to fit a target in kilobytes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if targetKB <= 0 {
				return errors.New("--target-kb must be positive")
			}
			return runAudio(cmd, opts, args[0], args[1], func(ctx context.Context, svc *normalizer.Service, data []byte, ext string) (*normalizer.Result, error) {
				return svc.CompressToSize(ctx, data, ext, targetKB, enhance)
			})
		},
	}
	cmd.Flags().IntVar(&targetKB, "target-kb", 0, "target output size in kilobytes")
	cmd.Flags().BoolVar(&enhance.Normalize, "normalize", false, "apply loudness normalization and voice EQ")
	cmd.Flags().BoolVar(&enhance.RemoveNoise, "remove-noise", false, "apply FFT denoise and compression")
	_ = cmd.MarkFlagRequired("target-kb")
	return cmd
}

type audioFunc func(ctx context.Context, svc *normalizer.Service, data []byte, ext string) (*normalizer.Result, error)

func runAudio(cmd *cobra.Command, opts *options, in, out string, fn audioFunc) error {
	ctx, cancel := signalContext()
	defer cancel()

	data, err := filesystem.ReadFileWithRetry(in, filesystem.DefaultRetryConfig())
	if err != nil {
		return err
	}

	e := opts.env()
	defer e.close()

	result, err := fn(ctx, normalizer.New(e.trans, e.temp), data, strings.ToLower(filepath.Ext(in)))
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, result.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes, %d kbps\n", out, len(result.Data), result.BitrateKbps)
	return err
}

// dispatchOutput is what the dispatch command prints.
type dispatchOutput struct {
	Payload *dispatch.Payload `json:"payload"`
	Output  string            `json:"output"`
}

func newDispatchCommand(opts *options) *cobra.Command {
	var (
		record      bool
		contentType string
		caption     string
	)
	cmd := &cobra.Command{
		Use:   "dispatch <file>",
		Short: "Dry-run a dispatch and write the payload next to the input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			e := opts.env()
			defer e.close()

			in := args[0]
			d := dispatch.New(e.trans, e.temp, nil, nil, dispatch.Config{})
			payload, err := d.Dispatch(ctx, dispatch.Request{
				Input: dispatch.Input{
					Path:        in,
					ContentType: contentType,
					Filename:    filepath.Base(in),
				},
				IsRecord: record,
				Caption:  caption,
			})
			if err != nil {
				return err
			}

			out := payloadPath(in, payload.Filename)
			if err := os.WriteFile(out, payload.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			return printJSON(cmd.OutOrStdout(), dispatchOutput{Payload: payload, Output: out})
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "treat audio as a recorded voice note")
	cmd.Flags().StringVar(&contentType, "content-type", "", "declared content type")
	cmd.Flags().StringVar(&caption, "caption", "", "caption to attach")
	return cmd
}

// payloadPath places the payload beside the input as <base>.relay<ext>.
func payloadPath(in, payloadName string) string {
	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	return filepath.Join(filepath.Dir(in), base+".relay"+filepath.Ext(payloadName))
}

func readHead(path string) ([]byte, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, mediatypes.SniffLength)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return head[:n], nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
