// Package main provides the CLI entrypoint for face-capture.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	facecapture "github.com/menta2k/face-capture"
	"github.com/menta2k/face-capture/internal/config"
	"github.com/menta2k/face-capture/internal/utils"
	"github.com/menta2k/face-capture/pkg/log"
	"github.com/menta2k/face-capture/pkg/processing"
	"github.com/menta2k/face-capture/pkg/stream"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	configPath string
	envFile    string
	logLevel   string
	noColor    bool

	backend   string
	serverURL string
	model     string

	framesDir string
	outDir    string
	quota     int

	input      string
	debugOut   string
	debugFmt   string
	debugQual  int
	initFormat string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "face-capture",
		Short:         "Guided five-pose face capture",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (json|yaml|toml), default "+config.GetConfigPath())
	pf.StringVar(&envFile, "env", ".env", "dotenv file with credentials")
	pf.StringVar(&logLevel, "log-level", "", "log level: trace|debug|info|warn|error")
	pf.BoolVar(&noColor, "no-color", false, "disable colored log output")
	pf.StringVar(&backend, "backend", "", "landmark backend: ollama|llamacpp|websocket")
	pf.StringVar(&serverURL, "url", "", "landmark server URL")
	pf.StringVar(&model, "model", "", "model name")

	rootCmd.AddCommand(newCaptureCmd())
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig reads the config file, applies flag overrides and sets up logging
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}

	path := configPath
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	cfg := config.Default()
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Detector.Backend = backend
	}
	if flags.Changed("url") {
		cfg.Detector.URL = serverURL
	}
	if flags.Changed("model") {
		cfg.Detector.Model = model
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Lookup("out") != nil && flags.Changed("out") {
		cfg.Sink.Type = "dir"
		cfg.Sink.Dir = outDir
	}
	if flags.Lookup("quota") != nil && flags.Changed("quota") {
		cfg.Capture.Quota = quota
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := log.Init(log.Options{Level: cfg.Log.Level, File: cfg.Log.File, NoColor: noColor}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Run a capture session over a directory of frames",
		Args:  cobra.NoArgs,
		RunE:  runCaptureCmd,
	}
	cmd.Flags().StringVar(&framesDir, "frames", "", "directory of frames, replayed in name order")
	cmd.Flags().StringVar(&outDir, "out", "./pics", "directory for accepted crops")
	cmd.Flags().IntVar(&quota, "quota", 50, "captures per pose")
	_ = cmd.MarkFlagRequired("frames")
	return cmd
}

func runCaptureCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := facecapture.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	src, err := stream.NewDirSource(framesDir)
	if err != nil {
		return err
	}
	sess, err := app.NewSession(ctx, src)
	if err != nil {
		return err
	}

	summary, runErr := sess.Run(ctx)
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	if !summary.Complete {
		log.Warn(log.Fields{"captured": summary.Captured, "target": summary.Target}, "frames exhausted before the sequence completed")
	}
	return nil
}

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Detect faces in one image and print the head direction",
		Args:  cobra.NoArgs,
		RunE:  runClassifyCmd,
	}
	cmd.Flags().StringVar(&input, "in", "", "input image path or URL (jpg/png/webp)")
	cmd.Flags().StringVar(&debugOut, "debug", "", "write a debug overlay to this directory")
	cmd.Flags().StringVar(&debugFmt, "dbgext", "png", "debug overlay format: png|jpg|webp")
	cmd.Flags().IntVar(&debugQual, "dbgquality", 92, "debug overlay quality (for jpg/webp)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func runClassifyCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := facecapture.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	processor := processing.NewProcessor()
	img, err := processor.LoadImageSmart(input)
	if err != nil {
		return err
	}

	result, err := app.Classify(ctx, img)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if debugOut == "" {
		return nil
	}
	if err := utils.EnsureDir(debugOut); err != nil {
		return err
	}
	overlay := processor.CreateDebugOverlay(img, result.Faces, result.Pose, result.Message)
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	path := filepath.Join(debugOut, utils.SanitizeFilename(name)+"_overlay."+strings.ToLower(debugFmt))
	if err := processor.SaveImage(overlay, path, debugFmt, debugQual, false); err != nil {
		return fmt.Errorf("debug overlay save failed: %w", err)
	}
	log.Info(log.Fields{"path": path}, "debug overlay written")
	return nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := cfg.Marshal("yaml")
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.GetConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			if utils.FileExists(path) {
				return fmt.Errorf("config already exists: %s", path)
			}
			if err := config.Default().SaveToFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.AddCommand(initCmd)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "face-capture %s\n", facecapture.GetVersion())
		},
	}
}
