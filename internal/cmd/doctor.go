package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agritutor/agritutor/internal/config"
	"github.com/agritutor/agritutor/internal/tutor"
)

type checkStatus string

const (
	checkOK   checkStatus = "ok"
	checkWarn checkStatus = "warn"
	checkFail checkStatus = "fail"
)

type doctorCheck struct {
	Name   string
	Status checkStatus
	Detail string
}

var (
	doctorInitForce     bool
	doctorInitGeminiKey string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Check configuration, the prompt catalog, the response cache and model provider routing.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logger()

		name := "agritutor"
		if identity := GetAppIdentity(); identity != nil && identity.BinaryName != "" {
			name = identity.BinaryName
		}
		log.Info("=== " + name + " doctor ===")

		cfg, cfgErr := config.Load(ctx)
		checks := runDoctorChecks(ctx, cfg, cfgErr)

		failed := 0
		for i, check := range checks {
			line := fmt.Sprintf("[%d/%d] %s... %s", i+1, len(checks), check.Name, check.Detail)
			fields := []zap.Field{zap.String("check", check.Name), zap.String("status", string(check.Status))}
			switch check.Status {
			case checkOK:
				log.Info(line, fields...)
			case checkWarn:
				log.Warn(line, fields...)
			default:
				failed++
				log.Error(line, fields...)
			}
		}

		if failed > 0 {
			log.Warn("Some checks failed. Review the output above for details.")
			return fmt.Errorf("%d doctor check(s) failed", failed)
		}
		log.Info(fmt.Sprintf("All checks passed! Your %s installation is healthy.", name))
		return nil
	},
}

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigPath()
		if cfgFile != "" {
			path = cfgFile
		}
		if err := writeInitConfig(path, doctorInitGeminiKey, doctorInitForce); err != nil {
			return err
		}
		logger().Info("Config initialized", zap.String("path", path))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite an existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitGeminiKey, "gemini-key", "", "Gemini API key to store in the config")
}

func runDoctorChecks(ctx context.Context, cfg *config.Config, cfgErr error) []doctorCheck {
	checks := []doctorCheck{
		{Name: "Go version", Status: checkOK, Detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)},
		fulmenCheck(),
		configFileCheck(config.DefaultConfigPath()),
	}

	if cfgErr != nil || cfg == nil {
		detail := "config not loaded"
		if cfgErr != nil {
			detail = cfgErr.Error()
		}
		return append(checks, doctorCheck{Name: "Configuration", Status: checkFail, Detail: detail})
	}
	checks = append(checks, doctorCheck{Name: "Configuration", Status: checkOK, Detail: "valid"})
	checks = append(checks, catalogCheck(cfg))
	checks = append(checks, storeCheck(ctx, cfg))
	checks = append(checks, providerChecks(cfg.Tutor)...)
	return checks
}

func fulmenCheck() doctorCheck {
	version := crucible.GetVersion()
	if version.Gofulmen == "" || version.Crucible == "" {
		return doctorCheck{Name: "Gofulmen/Crucible", Status: checkFail, Detail: "version metadata unavailable"}
	}
	return doctorCheck{Name: "Gofulmen/Crucible", Status: checkOK, Detail: fmt.Sprintf("gofulmen %s, crucible %s", version.Gofulmen, version.Crucible)}
}

func configFileCheck(path string) doctorCheck {
	check := doctorCheck{Name: "Config file"}
	if path == "" {
		check.Status, check.Detail = checkWarn, "config directory not resolved"
		return check
	}
	if _, err := os.Stat(path); err != nil {
		check.Status, check.Detail = checkWarn, path+" (not found; defaults and environment in use)"
		return check
	}
	check.Status, check.Detail = checkOK, path
	return check
}

func catalogCheck(cfg *config.Config) doctorCheck {
	check := doctorCheck{Name: "Prompt catalog"}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		check.Status, check.Detail = checkFail, err.Error()
		return check
	}
	detail := fmt.Sprintf("%s (%d categories, %d templates)", catalog.Source(), len(catalog.Categories()), catalog.Len())
	if issues := catalog.Lint(); len(issues) > 0 {
		check.Status, check.Detail = checkWarn, fmt.Sprintf("%s, %d lint issue(s)", detail, len(issues))
		return check
	}
	check.Status, check.Detail = checkOK, detail
	return check
}

func storeCheck(ctx context.Context, cfg *config.Config) doctorCheck {
	check := doctorCheck{Name: "Response cache"}
	if cfg.Cache.TTL <= 0 {
		check.Status, check.Detail = checkOK, "disabled (cache.ttl is 0)"
		return check
	}

	location := cfg.Store.URL
	if location == "" {
		location, _ = filepath.Abs(cfg.Store.Path)
	}
	db, err := openStore(ctx, cfg)
	if err != nil {
		check.Status, check.Detail = checkWarn, fmt.Sprintf("%s: %v", location, err)
		return check
	}
	defer db.Close() //nolint:errcheck

	stats, err := db.CacheStats(ctx)
	if err != nil {
		check.Status, check.Detail = checkWarn, fmt.Sprintf("%s: %v", location, err)
		return check
	}
	check.Status = checkOK
	check.Detail = fmt.Sprintf("%s (%d entries, %d expired, ttl %s)", location, stats.Entries, stats.Expired, cfg.Cache.TTL)
	return check
}

// providerChecks resolves each tutor role the way a request would.
func providerChecks(cfg tutor.Config) []doctorCheck {
	registry := tutor.NewRegistry(cfg)
	roles := []string{tutor.RoleChat, tutor.RoleTemplate, tutor.RoleLesson, tutor.RoleVision}
	out := make([]doctorCheck, 0, len(roles))
	for _, role := range roles {
		check := doctorCheck{Name: "Provider for " + role}
		resolved, err := registry.Resolve(role, "")
		if err != nil {
			check.Status, check.Detail = checkWarn, err.Error()
		} else {
			check.Status, check.Detail = checkOK, resolved.ProviderID+"/"+resolved.Model
		}
		out = append(out, check)
	}
	return out
}

func writeInitConfig(path, geminiKey string, force bool) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path not resolved")
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	geminiKey = strings.TrimSpace(geminiKey)
	mode := os.FileMode(0o644)
	if geminiKey != "" {
		mode = 0o600
	}
	if err := os.WriteFile(path, []byte(buildInitConfig(geminiKey)), mode); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func buildInitConfig(geminiKey string) string {
	var b strings.Builder
	b.WriteString("# AgriTutor configuration\n")
	b.WriteString("server:\n  host: localhost\n  port: 8080\n\n")
	b.WriteString("logging:\n  level: info\n  profile: structured\n\n")
	b.WriteString("cache:\n  ttl: 1h\n\n")
	b.WriteString("tutor:\n  default_provider: gemini\n  default_timeout: 60s\n  providers:\n    gemini:\n")
	b.WriteString("      enabled: true\n      ai_provider: gemini\n      models:\n        default: " + config.DefaultGeminiModel + "\n")
	if geminiKey != "" {
		b.WriteString("      credentials:\n        - label: default\n          enabled: true\n          api_key: " + geminiKey + "\n")
	} else {
		b.WriteString("      # api_key is read from AGRITUTOR_GEMINI_API_KEY when unset\n")
	}
	return b.String()
}
