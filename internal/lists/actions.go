package lists

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/blocklist-curator/models"
)

// ListsAction validates the config file and prints one row per descriptor.
// It never touches the network, so it doubles as a dry-run config check.
func ListsAction(c *cli.Context) error {
	path := c.String("config")
	cfg, err := models.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Printf("Config:  %s\n", path)
	fmt.Printf("Output:  %s documents in %s\n", cfg.OutFormat, cfg.OutDir)
	fmt.Printf("Cache:   %s\n", cfg.TmpDir)
	fmt.Println()

	fmt.Printf("%-20s %-12s %-28s %s\n", "ID", "Compression", "Tags", "Source")
	fmt.Println(strings.Repeat("-", 110))
	for _, l := range cfg.Lists {
		comp := "none"
		if l.Compression != nil {
			comp = l.Compression.Kind.String()
		}
		fmt.Printf("%-20s %-12s %-28s %s\n", l.ID, comp, strings.Join(l.Tags, ","), l.Source)
	}

	fmt.Printf("\nTotal: %d lists across %d tags\n", len(cfg.Lists), len(cfg.Tags()))
	fmt.Printf("\nTip: Use 'blocklist-curator run --config %s' to build the output documents\n", path)

	return nil
}
