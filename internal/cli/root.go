package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"trivia-board-service/internal/buildinfo"
	"trivia-board-service/internal/config"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	// an optional .env next to the binary feeds the TRIVIA_* variables below
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded .env")
	}

	v := viper.New()
	v.SetEnvPrefix("TRIVIA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:     "trivia-board",
		Short:   "Trivia board game server with CSV question upload and live scoring",
		Version: buildinfo.Version,
	}

	flags := cmd.PersistentFlags()
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	flags.StringVar(&port, "port", "", "port to listen on (env: TRIVIA_PORT)")
	flags.StringVar(&configPath, "config", "config/config.yaml", "path to YAML config (env: TRIVIA_CONFIG)")

	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = flags.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewVersionCmd())
	cmd.SetVersionTemplate("trivia-board-service v{{.Version}}\n")
	cmd.SilenceUsage = true
	return cmd
}

// loadConfig reads the YAML file, falling back to defaults when it does not exist,
// then applies TRIVIA_* environment overrides.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("config %s not found, using defaults", path)
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
