package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nvsettings/nvsettings/internal/config"
	"github.com/nvsettings/nvsettings/internal/settings"
	"github.com/nvsettings/nvsettings/internal/webcodec"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// withRuntime loads configuration and the stored registry, runs fn and
// closes the store again.
func withRuntime(cmd *cobra.Command, fn func(rt *runtime) error) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	rt, err := openRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	return fn(rt)
}

func newPrintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Print every setting with its current value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(rt *runtime) error {
				rt.pack.SyncDateTimes()

				t := table.NewWriter()
				t.SetOutputMirror(cmd.OutOrStdout())
				t.SetStyle(table.StyleRounded)
				t.AppendHeader(table.Row{"KEY", "TYPE", "VALUE", "STATE"})
				rt.pack.ForEach(func(g *settings.Group, s *settings.Setting) {
					state := ""
					if s.Disabled {
						state = "disabled"
					}
					t.AppendRow(table.Row{s.Key(), s.Type(), s.Display(), state})
				})
				t.Render()
				return nil
			})
		},
	}
}

func newExportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the settings document to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(rt *runtime) error {
				doc := webcodec.Project(rt.pack)
				out := cmd.OutOrStdout()

				switch strings.ToLower(format) {
				case "json":
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(doc)
				case "yaml":
					enc := yaml.NewEncoder(out)
					enc.SetIndent(2)
					defer enc.Close()
					return enc.Encode(doc)
				case "cbor":
					return cbor.NewEncoder(out).Encode(doc)
				default:
					return fmt.Errorf("unknown export format %q (want json, yaml or cbor)", format)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json, yaml, cbor)")
	return cmd
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set group:setting=value...",
		Short: "Change settings and save them",
		Example: `  nvsettings set net:port=8080 disp:accent=#ff8000
  nvsettings set net:dhcp=on time:alarm=06:30`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := url.Values{}
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("argument %q is not group:setting=value", arg)
				}
				values.Set(key, value)
			}

			return withRuntime(cmd, func(rt *runtime) error {
				result, err := webcodec.ApplyValues(rt.pack, values)
				if err != nil {
					return err
				}
				if result.Changed == 0 {
					return fmt.Errorf("no setting accepted (%d rejected, %d malformed)", result.Rejected, result.Malformed)
				}
				if err := rt.codec.Save(cmd.Context(), rt.pack); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d changed, %d rejected, %d malformed\n",
					result.Changed, result.Rejected, result.Malformed)
				return nil
			})
		},
	}
}

func newEraseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "erase",
		Short: "Erase the stored settings, restoring defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(rt *runtime) error {
				if err := rt.codec.Erase(cmd.Context(), rt.pack); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "settings erased")
				return nil
			})
		},
	}
}
