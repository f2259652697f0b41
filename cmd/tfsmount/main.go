// Command tfsmount mounts a TFS diskfile as a real FUSE filesystem.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/urfave/cli/v2"

	"github.com/tinyfs/tfs/fsops"
	"github.com/tinyfs/tfs/fuseadapter"
)

func main() {
	app := cli.App{
		Name:      "tfsmount",
		Usage:     "Mount a TFS diskfile at a directory",
		ArgsUsage: "DISKFILE MOUNTPOINT",
		Action:    mount,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func mount(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("usage: tfsmount DISKFILE MOUNTPOINT")
	}
	diskfile := c.Args().Get(0)
	mountpoint := c.Args().Get(1)

	fsys := fsops.New()
	if err := fsys.Mount(diskfile); err != nil {
		return fmt.Errorf("mount %s: %w", diskfile, err)
	}
	defer fsys.Unmount()

	root := fuseadapter.Root(fsys)
	server, err := fs.Mount(mountpoint, root, &fs.Options{})
	if err != nil {
		return fmt.Errorf("fuse mount %s: %w", mountpoint, err)
	}

	log.Printf("tfs mounted: diskfile=%s mountpoint=%s", diskfile, mountpoint)
	server.Wait()
	return nil
}
