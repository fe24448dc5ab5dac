package migrate

import (
	"fmt"
	"os"
	"strings"

	"github.com/pressly/goose/v3"
)

// CreateSQLMigration creates a timestamped goose SQL migration in dir.
func CreateSQLMigration(dir string, name string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %q: %w", dir, err)
	}
	goose.SetSequential(false)
	if err := goose.Create(nil, dir, name, "sql"); err != nil {
		return fmt.Errorf("create migration %q: %w", name, err)
	}
	return nil
}
