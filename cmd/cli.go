// SPDX-License-Identifier: MIT
//
// Package cmd is the bbbtune command line: "server" runs on the device,
// "client" tunes it from another machine, "params" and "devices" are
// one-off commands.
package cmd

import (
	"bbbtune/internal/app"
	"bbbtune/internal/audio"
	"bbbtune/internal/config"
	"bbbtune/internal/log"
	"bbbtune/internal/params"
	"bbbtune/internal/render"
	"bbbtune/internal/tui"
	"bbbtune/pkg/build"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type rootOptions struct {
	configPath string
	verbose    bool
	cfg        *config.Config
}

// load reads the config once for the command being run.
func (o *rootOptions) load() error {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.verbose {
		cfg.Debug = true
	}
	log.SetLevel(cfg.Level())
	o.cfg = cfg
	return nil
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	buildInfo := build.Get()
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Discover, monitor and tune a singing fish over the LAN",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Path to the YAML config file (default: ./config.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.AddCommand(
		newServerCommand(opts),
		newClientCommand(opts),
		newParamsCommand(),
		newDevicesCommand(),
	)
	return rootCmd
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServerCommand(opts *rootOptions) *cobra.Command {
	var (
		address     string
		source      string
		file        string
		device      int
		sampleRate  float64
		frames      int
		noMotor     bool
		noAdvertise bool
	)
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Stream audio, drive the motors and serve the parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(); err != nil {
				return err
			}
			cfg := opts.cfg
			flags := cmd.Flags()
			if flags.Changed("address") {
				cfg.Server.Address = address
			}
			if flags.Changed("source") {
				cfg.Audio.Source = source
			}
			if flags.Changed("file") {
				cfg.Audio.File = file
				if !flags.Changed("source") {
					cfg.Audio.Source = config.SourceWAV
				}
			}
			if flags.Changed("device") {
				cfg.Audio.InputDevice = device
			}
			if flags.Changed("sample-rate") {
				cfg.Audio.SampleRate = sampleRate
			}
			if flags.Changed("frames-per-buffer") {
				cfg.Audio.FramesPerBuffer = frames
			}
			cfg.Server.Motor = cfg.Server.Motor && !noMotor
			cfg.Server.Advertise = cfg.Server.Advertise && !noAdvertise
			if err := cfg.Validate(); err != nil {
				return err
			}

			src, err := app.OpenSource(cfg.Audio)
			if err != nil {
				return fmt.Errorf("open %s source: %w", cfg.Audio.Source, err)
			}
			srv, err := app.NewServer(cfg, src)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return srv.Run(ctx)
		},
	}

	// Audio Device Configuration
	cmd.Flags().StringVarP(&address, "address", "a", "", "Listen address (default from config, :3000)")
	cmd.Flags().StringVar(&source, "source", "", "Audio source: tone, wav or capture")
	cmd.Flags().StringVarP(&file, "file", "f", "", "WAV file to loop (implies --source wav)")
	cmd.Flags().IntVarP(&device, "device", "d", audio.DefaultDeviceID,
		"Specify input device ID. Use 'devices' command to see available devices.")
	cmd.Flags().Float64VarP(&sampleRate, "sample-rate", "s", 0, "Sample rate, measured in Hertz (Hz)")
	cmd.Flags().IntVarP(&frames, "frames-per-buffer", "b", 0, "Samples per streamed chunk")
	cmd.Flags().BoolVar(&noMotor, "no-motor", false, "Do not run the motor trigger pipeline")
	cmd.Flags().BoolVar(&noAdvertise, "no-advertise", false, "Do not send discovery beacons")
	return cmd
}

func newClientCommand(opts *rootOptions) *cobra.Command {
	var (
		server     string
		sets       []string
		feed       string
		record     string
		noDiscover bool
	)
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Find the server, mirror its parameters and render the spectrum",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			intents := make([]app.Intent, 0, len(sets))
			for _, s := range sets {
				in, err := app.ParseIntent(s)
				if err != nil {
					return err
				}
				intents = append(intents, in)
			}

			if err := opts.load(); err != nil {
				return err
			}
			cfg := opts.cfg
			flags := cmd.Flags()
			if flags.Changed("server") {
				cfg.Client.ServerAddress = server
			}
			if flags.Changed("feed") {
				cfg.Client.FeedAddress = feed
			}
			if flags.Changed("record") {
				cfg.Client.RecordFile = record
			}
			cfg.Client.Discover = cfg.Client.Discover && !noDiscover
			if err := cfg.Validate(); err != nil {
				return err
			}

			c, err := app.NewClient(cfg, nil, intents)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return c.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "Server host:port; skips waiting for a beacon")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Parameter change Key=percent sent once connected (repeatable)")
	cmd.Flags().StringVar(&feed, "feed", "", "Serve the spectrum on ws://ADDR/spectrum")
	cmd.Flags().StringVarP(&record, "record", "r", "", "Record the received stream to a WAV file")
	cmd.Flags().BoolVar(&noDiscover, "no-discover", false, "Do not listen for discovery beacons")
	return cmd
}

func newParamsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Print the default parameter set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := params.NewDefaultModel()
			if asJSON {
				data, err := m.MarshalJSON()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return writeParams(cmd.OutOrStdout(), m)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the GET /params wire format")
	return cmd
}

func writeParams(w io.Writer, m *params.Model) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tDEFAULT\tMIN\tMAX\tSCALE")
	for _, e := range m.Entries() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Key,
			render.FormatValue(e.Param),
			render.FormatValue(params.Param{Value: e.Min, Units: e.Units}),
			render.FormatValue(params.Param{Value: e.Max, Units: e.Units}),
			e.Scale)
	}
	return tw.Flush()
}

func newDevicesCommand() *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices (requires a portaudio build)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := audio.HostDevices()
			if err != nil {
				return err
			}
			if !interactive {
				audio.WriteDevices(cmd.OutOrStdout(), devices)
				return nil
			}
			sel, ok, err := tui.Run(devices)
			if err != nil || !ok {
				return err
			}
			return writeAudioSection(cmd.OutOrStdout(), sel)
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false,
		"Pick a device and rate, then print the matching config section")
	return cmd
}

// writeAudioSection prints the audio config for a picker selection.
func writeAudioSection(w io.Writer, sel tui.Selection) error {
	section := struct {
		Audio struct {
			Source      string  `yaml:"source"`
			InputDevice int     `yaml:"input_device"`
			SampleRate  float64 `yaml:"sample_rate"`
		} `yaml:"audio"`
	}{}
	section.Audio.Source = config.SourceCapture
	section.Audio.InputDevice = sel.DeviceID
	section.Audio.SampleRate = sel.SampleRate

	fmt.Fprintf(w, "# %s\n", sel.Name)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(section); err != nil {
		return err
	}
	return enc.Close()
}
