// Command tfsmkfs formats a fresh TFS diskfile.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/tinyfs/tfs/fsops"
)

func main() {
	app := cli.App{
		Name:      "tfsmkfs",
		Usage:     "Format a TFS diskfile",
		ArgsUsage: "[DISKFILE]",
		Action:    formatDiskfile,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func formatDiskfile(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		path = filepath.Join(cwd, "DISKFILE")
	}

	fsys := fsops.New()
	if err := fsys.Mkfs(path); err != nil {
		return fmt.Errorf("mkfs %s: %w", path, err)
	}
	fmt.Printf("formatted %s\n", path)
	return nil
}
