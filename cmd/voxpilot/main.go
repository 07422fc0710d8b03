package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillworks/voxpilot/internal/config"
	"github.com/quillworks/voxpilot/internal/gateway"
	"github.com/quillworks/voxpilot/internal/llm"
	"github.com/quillworks/voxpilot/internal/persona"
)

// GeneratorFactory creates the generation client (allows mocking in tests)
type GeneratorFactory func(cfg *config.Config) llm.Generator

// DefaultGeneratorFactory creates the configured backend client
func DefaultGeneratorFactory(cfg *config.Config) llm.Generator {
	return llm.New(cfg.Provider)
}

// ReplyOptions for running a one-shot reply with custom dependencies
type ReplyOptions struct {
	GeneratorFactory GeneratorFactory
	Stdout           io.Writer
	Stderr           io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "voxpilot",
	Short: "voxpilot - conversation autopilot for web messaging",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the daemon (extension bridge + reply engine)",
	RunE:  runServe,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directories",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show voxpilot status",
	RunE:  runStatus,
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List available reply personas",
	RunE:  runPersonas,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models loaded on the generation backend",
	RunE:  runModels,
}

var replyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Generate a one-shot reply for a message (for trying out personas)",
	RunE:  runReply,
}

var (
	messageFlag string
	personaFlag string
)

func init() {
	replyCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Message to reply to")
	replyCmd.Flags().StringVarP(&personaFlag, "persona", "p", "", "Persona id (default: first persona)")
	rootCmd.AddCommand(serveCmd, onboardCmd, statusCmd, personasCmd, modelsCmd, replyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Choices.DBPath), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Make sure Ollama is running (%s)\n", cfg.Provider.BaseURL)
	fmt.Println("  2. Run 'voxpilot serve' to start the daemon")
	fmt.Printf("  3. Point the browser extension at ws://%s:%d/ws\n", cfg.Gateway.Host, cfg.Gateway.Port)

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	return runStatusWithWriter(os.Stdout)
}

func runStatusWithWriter(stdout io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(stdout, "Config: error (%v)\n", err)
		return nil
	}

	fmt.Fprintf(stdout, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(stdout, "Provider: %s\n", providerDisplay(cfg.Provider.Type))
	fmt.Fprintf(stdout, "Backend: %s\n", cfg.Provider.BaseURL)
	fmt.Fprintf(stdout, "Model: %s\n", cfg.Provider.Model)
	fmt.Fprintf(stdout, "Choices DB: %s\n", cfg.Choices.DBPath)
	fmt.Fprintf(stdout, "Telegram alerts: enabled=%v\n", cfg.Notify.Telegram.Enabled)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s:%d/status", cfg.Gateway.Host, cfg.Gateway.Port))
	if err != nil {
		fmt.Fprintln(stdout, "Daemon: not running (start with 'voxpilot serve')")
		return nil
	}
	defer resp.Body.Close()

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintln(stdout, "Daemon: running (status unreadable)")
		return nil
	}
	fmt.Fprintf(stdout, "Daemon: running on %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	if v, ok := status["active_conversations"]; ok {
		fmt.Fprintf(stdout, "Active conversations: %v\n", v)
	}
	if v, ok := status["models"]; ok {
		fmt.Fprintf(stdout, "Models: %v\n", v)
	}
	return nil
}

func runPersonas(cmd *cobra.Command, args []string) error {
	return runPersonasWithWriter(os.Stdout)
}

func runPersonasWithWriter(stdout io.Writer) error {
	def := persona.Default()
	for _, p := range persona.Personas {
		marker := ""
		if p.ID == def.ID {
			marker = " (default)"
		}
		fmt.Fprintf(stdout, "%s %s [%s]%s\n", p.Avatar, p.Name, p.ID, marker)
	}
	return nil
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gen := DefaultGeneratorFactory(cfg)
	lister, ok := gen.(llm.ModelLister)
	if !ok {
		fmt.Printf("Backend %q does not expose a model listing\n", cfg.Provider.Type)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	models, err := lister.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	if len(models) == 0 {
		fmt.Println("No models loaded. Pull one with 'ollama pull <model>'.")
		return nil
	}
	for _, m := range models {
		fmt.Println(m)
	}
	return nil
}

// runReply is the command handler that uses default options
func runReply(cmd *cobra.Command, args []string) error {
	return runReplyWithOptions(ReplyOptions{})
}

// runReplyWithOptions generates a reply with injectable dependencies for testing
func runReplyWithOptions(opts ReplyOptions) error {
	if messageFlag == "" {
		return fmt.Errorf("no message. Use -m \"text\"")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	factory := opts.GeneratorFactory
	if factory == nil {
		factory = DefaultGeneratorFactory
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	p := persona.ByID(personaFlag)
	prompt := fmt.Sprintf("%s\n\nNew message: %q\n\nRespond as %s would - just the text message content, no name prefix or labels. Keep it natural and brief like a real text message.",
		p.Prompt, messageFlag, p.Name)

	gen := factory(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Provider.TimeoutSeconds)*time.Second)
	defer cancel()

	reply, err := gen.Generate(ctx, cfg.Provider.Model, prompt)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	fmt.Fprintln(stdout, reply)
	return nil
}

func providerDisplay(t string) string {
	if t == "" {
		return "ollama (default)"
	}
	return t
}
