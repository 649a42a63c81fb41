package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/nctmon/pkg/agent"
	"github.com/mscrnt/nctmon/pkg/cert"
)

func agentCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Remote sensor agent",
		Long:  "Serve sensor readings over mTLS, or query a remote agent",
	}

	cmd.AddCommand(agentServeCmd(opts))
	cmd.AddCommand(agentConnectCmd())
	cmd.AddCommand(agentCertsCmd())
	cmd.AddCommand(agentVerifyCmd())

	return cmd
}

// envPort reads a port from the environment unless the flag was set
func envPort(cmd *cobra.Command, name string, port *int) {
	v := os.Getenv(name)
	if v == "" || cmd.Flags().Changed("port") {
		return
	}
	if p, err := strconv.Atoi(v); err == nil {
		*port = p
	}
}

func envString(value *string, name string) {
	if *value == "" {
		*value = os.Getenv(name)
	}
}

func agentServeCmd(opts *globalOptions) *cobra.Command {
	var config agent.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sensor agent server",
		Long: `Start the sensor agent server with mTLS authentication.

The agent exposes the following endpoints:
  /sensors  - All sensor readings (optional ?kind=temperature|voltage|fan)
  /chip     - Chip id, expected id and monitor base address
  /sysinfo  - Host information (CPU, memory, disk, network)
  /logs     - Agent log (when --log is set, optional ?tail=N)
  /health   - Health check endpoint

Examples:
  # Generate credentials, then serve
  nctmon agent certs --out ./certs --host bench-01.local
  sudo nctmon agent serve --cert certs/server.crt --key certs/server.key --ca certs/ca.crt

  # Using environment variables
  export NCTMON_AGENT_CERT=certs/server.crt
  export NCTMON_AGENT_KEY=certs/server.key
  export NCTMON_AGENT_CA=certs/ca.crt
  sudo nctmon agent serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			envString(&config.CertFile, "NCTMON_AGENT_CERT")
			envString(&config.KeyFile, "NCTMON_AGENT_KEY")
			envString(&config.CAFile, "NCTMON_AGENT_CA")
			envPort(cmd, "NCTMON_AGENT_PORT", &config.Port)

			hw, err := opts.open()
			if err != nil {
				return err
			}
			defer func() { _ = hw.Close() }()

			if err := hw.init(cmd.ErrOrStderr(), opts.requireChip); err != nil {
				return err
			}

			server, err := agent.NewServer(config, agent.NewDecoderSource(hw.dec))
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errChan := make(chan error, 1)
			go func() {
				errChan <- server.Start()
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Agent server started on %s with mTLS\n", config.Addr())
			fmt.Fprintf(out, "Profile: %s\n", hw.profile.Name)
			fmt.Fprintln(out, "\nPress Ctrl+C to stop...")

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown error: %w", err)
				}
				fmt.Fprintln(out, "Server stopped gracefully")
				return nil

			case err := <-errChan:
				return fmt.Errorf("server error: %w", err)
			}
		},
	}

	cmd.Flags().StringVar(&config.Bind, "bind", "", "Address to listen on (default all interfaces)")
	cmd.Flags().IntVar(&config.Port, "port", agent.DefaultPort, "Port to listen on")
	cmd.Flags().StringVar(&config.CertFile, "cert", "", "Server certificate file (required)")
	cmd.Flags().StringVar(&config.KeyFile, "key", "", "Server private key file (required)")
	cmd.Flags().StringVar(&config.CAFile, "ca", "", "CA certificate file for client verification (required)")
	cmd.Flags().StringVar(&config.LogFile, "log", "", "Log file path (optional)")

	return cmd
}

func agentConnectCmd() *cobra.Command {
	var (
		config agent.ClientConfig
		pretty bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a remote agent",
		Long: `Connect to a sensor agent and retrieve information.

Examples:
  # Get all sensors
  nctmon agent connect --host bench-01.local \
    --cert certs/client.crt --key certs/client.key --ca certs/ca.crt

  # Fans only, pretty printed
  nctmon agent connect --host bench-01.local --endpoint "sensors?kind=fan" --pretty \
    --cert certs/client.crt --key certs/client.key --ca certs/ca.crt`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			envString(&config.CertFile, "NCTMON_CLIENT_CERT")
			envString(&config.KeyFile, "NCTMON_CLIENT_KEY")
			envString(&config.CAFile, "NCTMON_CLIENT_CA")
			envPort(cmd, "NCTMON_AGENT_PORT", &config.Port)

			client, err := agent.NewClient(config)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			data, err := client.Connect()
			if err != nil {
				return fmt.Errorf("connection failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if pretty && strings.HasPrefix(string(data), "{") {
				var formatted interface{}
				if err := json.Unmarshal(data, &formatted); err == nil {
					if prettyData, err := json.MarshalIndent(formatted, "", "  "); err == nil {
						fmt.Fprintln(out, string(prettyData))
						return nil
					}
				}
			}

			fmt.Fprint(out, string(data))
			return nil
		},
	}

	defaults := agent.DefaultClientConfig()
	cmd.Flags().StringVar(&config.Host, "host", defaults.Host, "Target host")
	cmd.Flags().IntVar(&config.Port, "port", defaults.Port, "Target port")
	cmd.Flags().StringVar(&config.CertFile, "cert", "", "Client certificate file (required)")
	cmd.Flags().StringVar(&config.KeyFile, "key", "", "Client private key file (required)")
	cmd.Flags().StringVar(&config.CAFile, "ca", "", "CA certificate file for server verification (required)")
	cmd.Flags().StringVar(&config.Endpoint, "endpoint", defaults.Endpoint, "Endpoint to fetch")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty print JSON output")

	return cmd
}

func agentCertsCmd() *cobra.Command {
	var (
		outDir string
		hosts  []string
		client string
		days   int
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Generate agent credentials",
		Long: `Generate a CA, a server certificate and a client certificate for the
agent's mutual TLS.

Examples:
  nctmon agent certs --out ./certs --host bench-01.local --host 10.0.0.5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if _, err := os.Stat(outDir + "/ca.crt"); err == nil {
					return fmt.Errorf("credentials already exist in %s (use --force to overwrite)", outDir)
				}
			}

			b, err := cert.GenerateBundle(outDir, hosts, client, time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Agent credentials generated")
			fmt.Fprintf(out, "CA:     %s\n", b.CAFile)
			fmt.Fprintf(out, "Server: %s, %s\n", b.ServerCertFile, b.ServerKeyFile)
			fmt.Fprintf(out, "Client: %s, %s\n", b.ClientCertFile, b.ClientKeyFile)
			fmt.Fprintf(out, "\nIMPORTANT: Keep %s secure; it can issue new clients.\n", b.CAKeyFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "certs", "Output directory")
	cmd.Flags().StringSliceVar(&hosts, "host", []string{"localhost", "127.0.0.1"}, "Server host names or IPs")
	cmd.Flags().StringVar(&client, "client", "nctmon-client", "Client certificate common name")
	cmd.Flags().IntVar(&days, "days", 365, "Validity in days")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing credentials")

	return cmd
}

func agentVerifyCmd() *cobra.Command {
	var caFile string

	cmd := &cobra.Command{
		Use:   "verify <cert>",
		Short: "Verify a certificate against the agent CA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := cert.VerifyCertificateFile(args[0], caFile)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cert.FormatVerifyResult(result))
			if !result.Valid {
				return fmt.Errorf("certificate is not valid")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&caFile, "ca", "certs/ca.crt", "CA certificate file")

	return cmd
}
