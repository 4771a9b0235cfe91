package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rileyhilliard/sshmux/internal/docker"
	"github.com/rileyhilliard/sshmux/internal/logger"
	"github.com/rileyhilliard/sshmux/internal/ui"
	"github.com/spf13/cobra"
)

var dockerCmd = &cobra.Command{
	Use:   "docker",
	Short: "List and control containers on a host",
	Long: `List and control containers on a host through the docker CLI over SSH.

Nothing talks to the docker socket directly, so the remote user needs to be
allowed to run docker.`,
}

var dockerPsCmd = &cobra.Command{
	Use:     "ps <profile>",
	Short:   "List containers with live stats",
	Example: `  sshmux docker ps web`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDocker(cmd, args[0], func(ctx context.Context, c *docker.Client) error {
			containers, err := c.Containers(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(containers) == 0 {
				fmt.Fprintln(out, ui.Muted("No containers (or docker is not available on "+args[0]+")"))
				return nil
			}
			fmt.Fprintln(out, ui.Table(containerHeaders, containerRows(containers)))
			return nil
		})
	},
}

func dockerActionCmd(verb, short string, run func(*docker.Client, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:     verb + " <profile> <container>",
		Short:   short,
		Example: fmt.Sprintf("  sshmux docker %s web nginx", verb),
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocker(cmd, args[0], func(ctx context.Context, c *docker.Client) error {
				if err := run(c, ctx, args[1]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("docker %s %s on %s", verb, args[1], args[0])))
				return nil
			})
		},
	}
}

func init() {
	dockerCmd.AddCommand(
		dockerPsCmd,
		dockerActionCmd("start", "Start a container", (*docker.Client).Start),
		dockerActionCmd("stop", "Stop a container", (*docker.Client).Stop),
		dockerActionCmd("restart", "Restart a container", (*docker.Client).Restart),
	)
	rootCmd.AddCommand(dockerCmd)
}

// withDocker connects id and runs fn with a docker client for it.
func withDocker(cmd *cobra.Command, id string, fn func(context.Context, *docker.Client) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if err := a.connect(ctx, id); err != nil {
		return err
	}
	c := docker.New(a.reg, id)
	c.SetLogger(logger.NewEnvLogger("[docker]"))
	return fn(ctx, c)
}

var containerHeaders = []string{"ID", "NAME", "IMAGE", "STATUS", "CPU", "MEMORY", "NET I/O", "PIDS"}

// containerRows renders containers; stopped ones show dashes for stats.
func containerRows(containers []docker.Container) [][]string {
	rows := make([][]string, 0, len(containers))
	for _, c := range containers {
		cpu, mem, net, pids := "-", "-", "-", "-"
		if c.Running() {
			cpu = fmt.Sprintf("%.1f%%", c.CPUPercent)
			mem = usedOfTotal(c.MemUsed, c.MemLimit)
			net = fmt.Sprintf("%s / %s", humanize.Bytes(uint64(max(c.NetRx, 0))), humanize.Bytes(uint64(max(c.NetTx, 0))))
			pids = fmt.Sprintf("%d", c.PIDs)
		}
		rows = append(rows, []string{c.ShortID(), c.Name, c.Image, c.Status, cpu, mem, net, pids})
	}
	return rows
}
