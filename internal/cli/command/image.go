package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/infra/buildinfo"
	"github.com/yndnr/heapsight-go/internal/storage/image"
)

// ImageCommand returns the image subcommand group.
func ImageCommand() *cli.Command {
	return &cli.Command{
		Name:  "image",
		Usage: "Save and inspect offline heap images",
		Subcommands: []*cli.Command{
			{
				Name:  "save",
				Usage: "Capture a process and save its memory as an image",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "pid",
						Aliases:  []string{"p"},
						Usage:    "Process ID of the target",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"d"},
						Usage:   "Image directory (default from image.dir)",
					},
				},
				Action: imageSave,
			},
			{
				Name:  "info",
				Usage: "Show the metadata of a saved image",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"d"},
						Usage:   "Image directory (default from image.dir)",
					},
					&cli.BoolFlag{
						Name:  "regions",
						Usage: "List the stored regions",
					},
				},
				Action: imageInfo,
			},
		},
	}
}

func imageDir(c *cli.Context, env *Env) string {
	if dir := c.String("dir"); dir != "" {
		return dir
	}
	return env.Config.Image.Dir
}

func imageSave(c *cli.Context) error {
	env, err := GetEnv(c)
	if err != nil {
		return err
	}

	t, err := openTarget(c, env)
	if err != nil {
		return err
	}
	defer t.close()

	s := newSession(c, env, t)
	defer s.Drop()
	snap, err := s.Capture(c.Context)
	if err != nil {
		return err
	}

	store, err := image.Open(imageDir(c, env), image.WithLogger(env.Logger))
	if err != nil {
		return err
	}
	defer store.Close()

	meta, err := store.Save(snap, image.Meta{
		PID:     c.Int("pid"),
		Version: buildinfo.Version,
	})
	if err != nil {
		return err
	}
	return env.Print(c, meta)
}

func imageInfo(c *cli.Context) error {
	env, err := GetEnv(c)
	if err != nil {
		return err
	}

	store, err := image.Open(imageDir(c, env), image.WithLogger(env.Logger))
	if err != nil {
		return err
	}
	defer store.Close()

	if c.Bool("regions") {
		infos, err := store.Regions()
		if err != nil {
			return err
		}
		return env.Print(c, regionRows(infos))
	}

	meta, err := store.Info()
	if err != nil {
		return err
	}
	return env.Print(c, meta)
}

// regionRow is one region in command output.
type regionRow struct {
	Base domain.Addr `json:"base" yaml:"base"`
	End  domain.Addr `json:"end" yaml:"end"`
	Size uint64      `json:"size" yaml:"size"`
}

func regionRows(infos []domain.RegionInfo) []regionRow {
	rows := make([]regionRow, len(infos))
	for i, r := range infos {
		rows[i] = regionRow{Base: r.Base, End: r.Base + domain.Addr(r.Size), Size: r.Size}
	}
	return rows
}
