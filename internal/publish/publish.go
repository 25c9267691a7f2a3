package publish

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

//go:embed garbageman.yaml
var defaultConfig []byte

// ErrExists is returned when the destination exists and Force is unset.
var ErrExists = errors.New("config file already exists")

// Options control config publishing.
type Options struct {
	Path   string
	Force  bool
	DryRun bool
}

// Template returns the commented default configuration.
func Template() []byte {
	return append([]byte(nil), defaultConfig...)
}

// Publish writes the default configuration to opts.Path and appends a line
// to the audit log next to it.
func Publish(logger *log.Logger, opts Options) error {
	if strings.TrimSpace(opts.Path) == "" {
		return errors.New("config path is required")
	}

	_, err := os.Stat(opts.Path)
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", opts.Path, err)
	}
	if exists && !opts.Force {
		return fmt.Errorf("%s: %w (use --force to overwrite)", opts.Path, ErrExists)
	}

	logger.Info("publish config", "path", opts.Path, "overwrite", exists, "dry_run", opts.DryRun)
	if opts.DryRun {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(opts.Path, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	auditPath := filepath.Join(filepath.Dir(opts.Path), ".garbageman-publish.log")
	f, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		// the config itself is in place; the audit line is best effort.
		logger.Debug("skipping publish audit", "error", err)
		return nil
	}
	defer f.Close()
	fmt.Fprintf(f, "%s published %s overwrite=%t\n", time.Now().UTC().Format(time.RFC3339), opts.Path, exists)

	logger.Info("publish complete", "path", opts.Path, "audit_log", auditPath)
	return nil
}
