// Package wizard provides the interactive setup of a nettest server
// configuration and the interactive speedtest server picker.
package wizard

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/12101111/nettest/internal/config"
	"github.com/12101111/nettest/internal/speedtest"
	"github.com/12101111/nettest/internal/transport"
	"github.com/12101111/nettest/internal/units"
)

// TLS choices offered for the QUIC listener.
const (
	tlsEphemeral = "ephemeral"
	tlsGenerate  = "generate"
	tlsExisting  = "existing"
)

// Result contains the wizard output.
type Result struct {
	Config     *config.Config
	ConfigPath string
}

// Wizard manages the interactive setup process.
type Wizard struct {
	theme *huh.Theme
}

// New creates a new setup wizard.
func New() *Wizard {
	return &Wizard{
		theme: huh.ThemeDracula(),
	}
}

// answers collects everything the forms ask for.
type answers struct {
	configPath     string
	tcpAddress     string
	quicEnabled    bool
	quicAddress    string
	tls            config.TLSConfig
	idleTimeout    string
	rateLimit      string
	maxConnections string
	logLevel       string
	healthEnabled  bool
	healthAddress  string
}

func defaultAnswers() answers {
	def := config.Default()
	return answers{
		configPath:     "./nettest.yaml",
		tcpAddress:     def.Server.TCPAddress,
		quicAddress:    ":8080",
		idleTimeout:    def.Server.IdleTimeout.String(),
		maxConnections: "0",
		logLevel:       def.Log.Level,
		healthEnabled:  true,
		healthAddress:  def.Health.Address,
	}
}

// Run executes the interactive setup wizard and writes the configuration.
func (w *Wizard) Run() (*Result, error) {
	w.printBanner()

	a := defaultAnswers()
	steps := []func(*answers) error{
		w.askBasicSetup,
		w.askListeners,
		w.askTLSSetup,
		w.askLimits,
		w.askAdvancedOptions,
	}
	for _, step := range steps {
		if err := step(&a); err != nil {
			return nil, err
		}
	}

	cfg, err := buildConfig(a)
	if err != nil {
		return nil, err
	}
	if err := writeConfig(cfg, a.configPath); err != nil {
		return nil, err
	}

	w.printSummary(a.configPath, cfg)

	return &Result{Config: cfg, ConfigPath: a.configPath}, nil
}

func (w *Wizard) printBanner() {
	banner := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("212")).
		Render(`
             _   _            _
  _ __   ___| |_| |_ ___  ___| |_
 | '_ \ / _ \ __| __/ _ \/ __| __|
 | | | |  __/ |_| ||  __/\__ \ |_
 |_| |_|\___|\__|\__\___||___/\__|
`)

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("  Speed Test Server - Setup Wizard\n")

	fmt.Println(banner)
	fmt.Println(subtitle)
}

func (w *Wizard) askBasicSetup(a *answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Config File").
				Description("Where to write the configuration").
				Placeholder(a.configPath).
				Value(&a.configPath).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("config path is required")
					}
					return nil
				}),
		),
	).WithTheme(w.theme)

	return form.Run()
}

func (w *Wizard) askListeners(a *answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Listeners").
				Description("The line protocol is served over TCP and optionally over QUIC."),

			huh.NewInput().
				Title("TCP Address").
				Description("Address and port for the TCP listener").
				Placeholder(a.tcpAddress).
				Value(&a.tcpAddress).
				Validate(validateAddress),

			huh.NewConfirm().
				Title("Serve QUIC as well?").
				Description("Needed by quicupload and quicdownload clients").
				Value(&a.quicEnabled),
		),
	).WithTheme(w.theme)

	if err := form.Run(); err != nil {
		return err
	}
	if !a.quicEnabled {
		return nil
	}

	quicForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("QUIC Address").
				Description("UDP address and port for the QUIC listener").
				Placeholder(a.quicAddress).
				Value(&a.quicAddress).
				Validate(validateAddress),
		),
	).WithTheme(w.theme)

	return quicForm.Run()
}

func (w *Wizard) askTLSSetup(a *answers) error {
	if !a.quicEnabled {
		return nil
	}

	choice := tlsEphemeral
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("TLS Configuration").
				Description("QUIC requires a certificate. Clients skip verification by default."),

			huh.NewSelect[string]().
				Title("Certificate Setup").
				Options(
					huh.NewOption("Generate a throwaway certificate at every start", tlsEphemeral),
					huh.NewOption("Generate a self-signed certificate now and keep it", tlsGenerate),
					huh.NewOption("Use existing certificate files", tlsExisting),
				).
				Value(&choice),
		),
	).WithTheme(w.theme)

	if err := form.Run(); err != nil {
		return err
	}

	switch choice {
	case tlsGenerate:
		return w.generateCertificate(a)
	case tlsExisting:
		return w.useExistingCertificate(a)
	}
	return nil
}

func (w *Wizard) generateCertificate(a *answers) error {
	certsDir := filepath.Join(filepath.Dir(a.configPath), "certs")
	commonName := "nettest"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Certificates Directory").
				Placeholder(certsDir).
				Value(&certsDir),

			huh.NewInput().
				Title("Common Name").
				Description("Name for the certificate (e.g., hostname)").
				Placeholder(commonName).
				Value(&commonName),
		),
	).WithTheme(w.theme)

	if err := form.Run(); err != nil {
		return err
	}

	if err := os.MkdirAll(certsDir, 0700); err != nil {
		return fmt.Errorf("failed to create certs directory: %w", err)
	}
	certPath := filepath.Join(certsDir, "server.crt")
	keyPath := filepath.Join(certsDir, "server.key")
	if err := transport.GenerateAndSaveCert(certPath, keyPath, commonName, transport.DefaultCertValidity); err != nil {
		return fmt.Errorf("failed to generate certificate: %w", err)
	}

	fmt.Printf("\n✓ Generated certificate: %s\n", certPath)
	fmt.Printf("✓ Generated private key: %s\n\n", keyPath)

	a.tls = config.TLSConfig{Cert: certPath, Key: keyPath}
	return nil
}

func (w *Wizard) useExistingCertificate(a *answers) error {
	var certPath, keyPath string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Certificate File").
				Value(&certPath).
				Validate(validateFile),

			huh.NewInput().
				Title("Private Key File").
				Value(&keyPath).
				Validate(validateFile),
		),
	).WithTheme(w.theme)

	if err := form.Run(); err != nil {
		return err
	}

	if _, err := transport.LoadTLSConfig(certPath, keyPath); err != nil {
		return err
	}
	a.tls = config.TLSConfig{Cert: certPath, Key: keyPath}
	return nil
}

func (w *Wizard) askLimits(a *answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Limits").
				Description("Protect the server from idle or greedy clients."),

			huh.NewInput().
				Title("Idle Timeout").
				Description("Close connections idle for this long (0 = never)").
				Placeholder(a.idleTimeout).
				Value(&a.idleTimeout).
				Validate(validateDuration),

			huh.NewInput().
				Title("Rate Limit").
				Description("Per connection and direction, e.g. 100MB (empty = unlimited)").
				Value(&a.rateLimit).
				Validate(validateRate),

			huh.NewInput().
				Title("Max Connections").
				Description("Concurrent sessions (0 = unlimited)").
				Placeholder(a.maxConnections).
				Value(&a.maxConnections).
				Validate(validateCount),
		),
	).WithTheme(w.theme)

	return form.Run()
}

func (w *Wizard) askAdvancedOptions(a *answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Advanced Options").
				Description("Configure monitoring and logging."),

			huh.NewSelect[string]().
				Title("Log Level").
				Options(
					huh.NewOption("Debug (verbose)", "debug"),
					huh.NewOption("Info (recommended)", "info"),
					huh.NewOption("Warning", "warn"),
					huh.NewOption("Error (quiet)", "error"),
				).
				Value(&a.logLevel),

			huh.NewConfirm().
				Title("Enable health check endpoint?").
				Description("HTTP endpoint for monitoring (/health, /healthz, /metrics)").
				Value(&a.healthEnabled),
		),
	).WithTheme(w.theme)

	if err := form.Run(); err != nil {
		return err
	}
	if !a.healthEnabled {
		return nil
	}

	healthForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Health Address").
				Placeholder(a.healthAddress).
				Value(&a.healthAddress).
				Validate(validateAddress),
		),
	).WithTheme(w.theme)

	return healthForm.Run()
}

// buildConfig turns the answers into a validated configuration.
func buildConfig(a answers) (*config.Config, error) {
	cfg := config.Default()

	cfg.Log.Level = a.logLevel
	cfg.Log.Format = "text"

	cfg.Server.TCPAddress = a.tcpAddress
	if a.quicEnabled {
		cfg.Server.QUICAddress = a.quicAddress
		cfg.Server.TLS = a.tls
	}
	cfg.Server.RateLimit = strings.TrimSpace(a.rateLimit)

	if a.idleTimeout != "" {
		d, err := time.ParseDuration(a.idleTimeout)
		if err != nil {
			return nil, fmt.Errorf("idle timeout: %w", err)
		}
		cfg.Server.IdleTimeout = d
	}
	if a.maxConnections != "" {
		n, err := strconv.Atoi(a.maxConnections)
		if err != nil {
			return nil, fmt.Errorf("max connections: %w", err)
		}
		cfg.Server.MaxConnections = n
	}

	cfg.Health.Enabled = a.healthEnabled
	if a.healthEnabled {
		cfg.Health.Address = a.healthAddress
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeConfig(cfg *config.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# nettest configuration
# Generated by setup wizard

`
	if err := os.WriteFile(path, []byte(header+string(data)), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (w *Wizard) printSummary(configPath string, cfg *config.Config) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))

	divider := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("─────────────────────────────────────────────────")

	fmt.Println()
	fmt.Println(divider)
	fmt.Println(style.Render("✓ Setup Complete!"))
	fmt.Println(divider)
	fmt.Println()

	fmt.Printf("  Config file:  %s\n", configPath)
	fmt.Printf("  TCP:          %s\n", cfg.Server.TCPAddress)
	if cfg.Server.QUICAddress != "" {
		fmt.Printf("  QUIC:         %s\n", cfg.Server.QUICAddress)
	}
	if cfg.Health.Enabled {
		fmt.Printf("  Health:       http://%s/health\n", cfg.Health.Address)
	}

	fmt.Println()
	fmt.Println("  To start the server:")
	fmt.Printf("    nettest-server serve -c %s\n", configPath)
	fmt.Println()
}

// PickServer lets the user choose one of servers, preselecting the first.
func (w *Wizard) PickServer(servers []speedtest.Server) (speedtest.Server, error) {
	if len(servers) == 0 {
		return speedtest.Server{}, speedtest.ErrNoServers
	}

	options := make([]huh.Option[int], len(servers))
	for i, s := range servers {
		options[i] = huh.NewOption(serverLabel(s), i)
	}

	var choice int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Speedtest Server").
				Description("Nearest servers first").
				Options(options...).
				Value(&choice),
		),
	).WithTheme(w.theme)

	if err := form.Run(); err != nil {
		return speedtest.Server{}, err
	}
	return servers[choice], nil
}

// serverLabel renders a server on a single line.
func serverLabel(s speedtest.Server) string {
	label := fmt.Sprintf("%s (%s, %s) %dKm", s.Sponsor, s.Name, s.CC, s.Distance)
	if s.Latency > 0 {
		label += fmt.Sprintf(" %.1fms", units.Millis(s.Latency))
	}
	return label
}

func validateAddress(s string) error {
	if s == "" {
		return errors.New("address is required")
	}
	if _, _, err := net.SplitHostPort(s); err != nil {
		return errors.New("invalid address format (use host:port)")
	}
	return nil
}

func validateFile(s string) error {
	if _, err := os.Stat(s); err != nil {
		return fmt.Errorf("file not found: %s", s)
	}
	return nil
}

func validateDuration(s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return errors.New("must be a duration such as 30s or 5m")
	}
	return nil
}

func validateRate(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := units.ParseSize(s); err != nil {
		return errors.New("must be a size such as 10MB or 1GiB")
	}
	return nil
}

func validateCount(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return errors.New("must be zero or a positive number")
	}
	return nil
}
