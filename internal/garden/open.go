package garden

import (
	"errors"
	"fmt"
	"strings"

	logx "plantcare/pkg/logx"
)

// Open initializes the configured garden store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("garden.path is required")
	}
	switch d := strings.ToLower(strings.TrimSpace(cfg.Driver)); d {
	case "", "file":
		return OpenFile(cfg.Path, log)
	case "sqlite", "sqlite3":
		return OpenSQLite(cfg.Path, cfg.BusyTimeout)
	default:
		return nil, fmt.Errorf("unknown garden driver: %s", d)
	}
}
