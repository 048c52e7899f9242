// Package cli holds the corridorctl maintenance commands.
package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"corridor-platform/internal/models"
	"corridor-platform/internal/services"
)

// Shapefiles runs the shapefile pipeline steps
type Shapefiles interface {
	LoadInfo(ctx context.Context, site *models.Site, id int64) (*models.ShapefileInfo, error)
	Convert(ctx context.Context, site *models.Site, id int64) (*services.ConvertResult, error)
	Clip(ctx context.Context, site *models.Site, id, boundaryID int64) (*services.ClipResult, error)
	CreatePlot(ctx context.Context, site *models.Site, id int64) (*services.PlotResult, error)
}

// Priority rebuilds the priority map layers
type Priority interface {
	MarkPoorQualityRivers(ctx context.Context) (int, error)
	RebuildBuffers(ctx context.Context) ([]string, error)
	CalculateDifference(ctx context.Context) error
}

// Migrator applies the database schema
type Migrator interface {
	Migrate(ctx context.Context) ([]string, error)
}

// Deps are the services the commands run against
type Deps struct {
	Shapefiles Shapefiles
	Priority   Priority
	Migrator   Migrator
}

// Opener connects the services. The returned func releases them.
type Opener func(ctx context.Context) (*Deps, func(), error)

// NewRootCmd creates the corridorctl command tree. Connections are only
// opened when a command runs.
func NewRootCmd(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "corridorctl",
		Short:         "Maintenance commands for the corridor platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(open))
	root.AddCommand(newShapefileCmds(open)...)
	root.AddCommand(newPriorityCmds(open))
	return root
}

// run opens the services, calls fn and releases them
func run(cmd *cobra.Command, open Opener, fn func(ctx context.Context, d *Deps) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, d)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid document id %q", arg)
	}
	return id, nil
}

func newMigrateCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, open, func(ctx context.Context, d *Deps) error {
				applied, err := d.Migrator.Migrate(ctx)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					cmd.Println("Database is up to date.")
					return nil
				}
				cmd.Printf("Applied %s\n", strings.Join(applied, ", "))
				return nil
			})
		},
	}
}

func newShapefileCmds(open Opener) []*cobra.Command {
	info := &cobra.Command{
		Use:   "load-info <document-id>",
		Short: "Read the fields, count and type of a shapefile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, open, func(ctx context.Context, d *Deps) error {
				info, err := d.Shapefiles.LoadInfo(ctx, nil, id)
				if err != nil {
					return err
				}
				cmd.Printf("%d %s features; fields: %s\n", info.Count, info.Type, strings.Join(info.Fields, ", "))
				return nil
			})
		},
	}

	convert := &cobra.Command{
		Use:   "convert <document-id>",
		Short: "Convert the shapefile features into reference spaces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, open, func(ctx context.Context, d *Deps) error {
				res, err := d.Shapefiles.Convert(ctx, nil, id)
				if err != nil {
					return err
				}
				if res.Error != "" {
					return fmt.Errorf("conversion rejected: %s", res.Error)
				}
				cmd.Printf("Created %d spaces.\n", res.Spaces)
				return nil
			})
		},
	}

	clip := &cobra.Command{
		Use:   "clip <document-id> <boundary-space-id>",
		Short: "Clip the spaces of a shapefile to a boundary space",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			boundary, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || boundary <= 0 {
				return fmt.Errorf("invalid boundary space id %q", args[1])
			}
			return run(cmd, open, func(ctx context.Context, d *Deps) error {
				res, err := d.Shapefiles.Clip(ctx, nil, id, boundary)
				if err != nil {
					return err
				}
				cmd.Println(res.Message)
				return nil
			})
		},
	}

	plot := &cobra.Command{
		Use:   "plot <document-id>",
		Short: "Render a preview image of a shapefile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, open, func(ctx context.Context, d *Deps) error {
				res, err := d.Shapefiles.CreatePlot(ctx, nil, id)
				if err != nil {
					return err
				}
				if res.Error != "" {
					return fmt.Errorf("plot failed: %s", res.Error)
				}
				cmd.Printf("Plot written to %s\n", res.Path)
				return nil
			})
		},
	}

	return []*cobra.Command{info, convert, clip, plot}
}

func newPriorityCmds(open Opener) *cobra.Command {
	priorityCmd := &cobra.Command{
		Use:   "priority-map",
		Short: "Rebuild the layers of the priority map",
	}

	priorityCmd.AddCommand(
		&cobra.Command{
			Use:   "mark-rivers",
			Short: "Flag the rivers of poor quality",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, open, func(ctx context.Context, d *Deps) error {
					n, err := d.Priority.MarkPoorQualityRivers(ctx)
					if err != nil {
						return err
					}
					cmd.Printf("Marked %d river segments.\n", n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "rebuild",
			Short: "Regenerate the river and bionet buffers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, open, func(ctx context.Context, d *Deps) error {
					messages, err := d.Priority.RebuildBuffers(ctx)
					if err != nil {
						return err
					}
					for _, m := range messages {
						cmd.Println(m)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "difference",
			Short: "Subtract the river buffer from the bionet buffer",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, open, func(ctx context.Context, d *Deps) error {
					if err := d.Priority.CalculateDifference(ctx); err != nil {
						return err
					}
					cmd.Println("The priority map was updated.")
					return nil
				})
			},
		},
	)
	return priorityCmd
}
