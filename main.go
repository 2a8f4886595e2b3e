package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
)

var version = "0.1.0"

var (
	configPath string
	flagCfg    = DefaultConfig()
	sendJSON   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sirenctl",
	Short: "Live OSC-controlled siren voice",
	Long: `sirenctl listens for parameter updates on /osc/<name> and triggers an
echo-wrapped sine voice once per beat using the latest values.

Channels: /osc/pitch /osc/rate /osc/mode /osc/delay_time
          /osc/delay_feedback /osc/echo_phase /osc/echo_decay`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Listen for control messages and play",
	Long: `Start the control listener and the playback scheduler.

Examples:
  sirenctl run
  sirenctl run --engine midi --midi-port blofeld --http :8080`,
	RunE: runRun,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the controller and serve MCP tools on stdio",
	RunE:  runMCP,
}

var sendCmd = &cobra.Command{
	Use:   "send [param value]",
	Short: "Send a parameter update to a running controller",
	Long: `Send one parameter update, or a JSON object of updates read from stdin.

Examples:
  sirenctl send pitch 67
  sirenctl send pitch G4
  echo '{"mode": 0}' | sirenctl send --json`,
	RunE: runSend,
}

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Keyboard front panel that sends parameter updates",
	RunE:  runPanelCmd,
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Trigger one voice with the default parameters",
	RunE:  runPlay,
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Print the parameter defaults as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printDefaults(cmd.OutOrStdout())
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI output ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Println("Available MIDI outputs:")
		log.Print(midi.GetOutPorts().String())
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&flagCfg.Listen, "listen", flagCfg.Listen, "UDP address of the OSC control channel")
	pf.DurationVar(&flagCfg.Wait, "wait", flagCfg.Wait, "Per-channel wait of the listener")
	pf.Float64Var(&flagCfg.BPM, "bpm", flagCfg.BPM, "Tempo; one cycle lasts one beat")
	pf.StringVarP(&flagCfg.Engine, "engine", "e", flagCfg.Engine, "Sound engine (audio, midi, log)")
	pf.IntVar(&flagCfg.SampleRate, "sample-rate", flagCfg.SampleRate, "Audio engine sample rate")
	pf.StringVar(&flagCfg.MIDI.Port, "midi-port", flagCfg.MIDI.Port, "MIDI output port name fragment")
	pf.IntVar(&flagCfg.MIDI.Channel, "midi-channel", flagCfg.MIDI.Channel, "MIDI channel (1-16)")
	pf.StringVar(&flagCfg.HTTP, "http", flagCfg.HTTP, "Status HTTP address (empty disables)")
	pf.StringVar(&flagCfg.LogLevel, "log-level", flagCfg.LogLevel, "Log level (debug, info, warn, error)")

	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Read a JSON object of updates from stdin")

	rootCmd.AddCommand(runCmd, mcpCmd, sendCmd, panelCmd, playCmd, paramsCmd, portsCmd)
}

// loadConfig merges the config file with any flags given on the command line.
func loadConfig(cmd *cobra.Command) (Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	overrides := map[string]func(){
		"listen":       func() { cfg.Listen = flagCfg.Listen },
		"wait":         func() { cfg.Wait = flagCfg.Wait },
		"bpm":          func() { cfg.BPM = flagCfg.BPM },
		"engine":       func() { cfg.Engine = flagCfg.Engine },
		"sample-rate":  func() { cfg.SampleRate = flagCfg.SampleRate },
		"midi-port":    func() { cfg.MIDI.Port = flagCfg.MIDI.Port },
		"midi-channel": func() { cfg.MIDI.Channel = flagCfg.MIDI.Channel },
		"http":         func() { cfg.HTTP = flagCfg.HTTP },
		"log-level":    func() { cfg.LogLevel = flagCfg.LogLevel },
	}
	for name, apply := range overrides {
		if flags.Changed(name) {
			apply()
		}
	}
	return cfg, cfg.Validate()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func setup(cmd *cobra.Command) (*controller, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return newController(cfg, logger)
}

func runRun(cmd *cobra.Command, args []string) error {
	c, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	return c.Run(ctx)
}

func runMCP(cmd *cobra.Command, args []string) error {
	c, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	s := newMCPServer(c.params, c.sched, c.log)
	c.log.Info("starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		c.log.Error("MCP server error", "err", err)
	}
	cancel()
	return <-done
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sender, err := NewSender(cfg.Listen)
	if err != nil {
		return err
	}

	if sendJSON {
		updates, err := readUpdates(cmd.InOrStdin())
		if err != nil {
			return err
		}
		return sendUpdates(sender, updates)
	}

	if len(args) != 2 {
		return errors.New("send needs a parameter and a value, or --json")
	}
	p, err := ParamByName(args[0])
	if err != nil {
		return err
	}
	v, err := parseValue(p, args[1])
	if err != nil {
		return err
	}
	return sendUpdates(sender, []paramValue{{Name: p.String(), Value: v}})
}

func runPanelCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sender, err := NewSender(cfg.Listen)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	return runPanel(ctx, sender)
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signalContext()
	defer stop()
	return playOnce(ctx, engine, DefaultFrame(), beatDuration(cfg.BPM))
}
