package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/editor"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/relaywire/gatewayd/pkg/environment"
)

var titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6495ED")).Bold(true)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the gateway's .env configuration",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigEditCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively scaffold a .env file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(path)
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "destination path (defaults to the XDG config location)")
	return cmd
}

func runConfigInit(path string) error {
	if path == "" {
		var err error
		if path, err = environment.DefaultConfigPath(); err != nil {
			return fmt.Errorf("resolving default config path: %w", err)
		}
	}

	answers := struct {
		brokerAddress string
		listenAddr    string
		apiKey        string
		rps           string
		trustedCIDRs  string
	}{
		brokerAddress: "127.0.0.1:8090",
		listenAddr:    ":8080",
		rps:           "100",
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Broker address (host:port)").Value(&answers.brokerAddress),
			huh.NewInput().Title("Gateway listen address").Value(&answers.listenAddr),
			huh.NewInput().Title("API key (blank disables auth)").Value(&answers.apiKey),
			huh.NewInput().Title("Rate limit, requests per second (0 disables)").Value(&answers.rps),
			huh.NewInput().Title("Trusted proxy CIDRs, comma-separated (blank trusts all)").Value(&answers.trustedCIDRs),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("configuration wizard cancelled: %w", err)
	}

	content := fmt.Sprintf(`BROKER_ADDRESS=%s
LISTEN_ADDR=%s
API_KEY=%s
RATE_LIMIT_RPS=%s
TRUSTED_PROXIES=%s
`, answers.brokerAddress, answers.listenAddr, answers.apiKey, answers.rps, answers.trustedCIDRs)

	fs := afero.NewOsFs()
	if err := afero.WriteFile(fs, path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	fmt.Println(titleStyle.Render("Wrote configuration to " + path))
	return nil
}

func newConfigEditCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Open the .env configuration in $EDITOR",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigEdit(path)
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "path to edit (defaults to the XDG config location)")
	return cmd
}

func runConfigEdit(path string) error {
	if path == "" {
		var err error
		if path, err = environment.DefaultConfigPath(); err != nil {
			return fmt.Errorf("resolving default config path: %w", err)
		}
	}

	editorName := os.Getenv("EDITOR")
	if editorName == "" {
		editorName = "vi"
	}

	cmd, err := editor.Cmd(editorName, path)
	if err != nil {
		return fmt.Errorf("building editor command: %w", err)
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	return cmd.Run()
}
