package cli

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rileyhilliard/sshmux/internal/remotefs"
	"github.com/rileyhilliard/sshmux/internal/ui"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls <profile> [path]",
	Short: "List a remote directory",
	Example: `  sshmux ls web
  sshmux ls web /var/log`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 2 {
			dir = args[1]
		}
		return withRemoteFS(cmd, args[0], func(fs *remotefs.FS) error {
			entries, err := fs.List(dir)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), ui.Muted("(empty)"))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Table(entryHeaders, entryRows(entries)))
			return nil
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <profile> <remote-path> [local-path]",
	Short: "Download a file from a host",
	Long: `Download one remote file. The local path defaults to the remote file's
name in the current directory; an existing local directory receives the file
under its remote name.`,
	Example: `  sshmux get web /var/log/nginx/access.log
  sshmux get web /etc/hosts ./hosts.web`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote := args[1]
		local := path.Base(remote)
		if len(args) == 3 {
			local = args[2]
		}
		if info, err := os.Stat(local); err == nil && info.IsDir() {
			local = filepath.Join(local, path.Base(remote))
		}

		return withRemoteFS(cmd, args[0], func(fs *remotefs.FS) error {
			src, err := fs.OpenReader(remote)
			if err != nil {
				return err
			}
			defer src.Close()

			dst, err := os.Create(local)
			if err != nil {
				return err
			}
			n, copyErr := io.Copy(dst, src)
			if err := dst.Close(); copyErr == nil {
				copyErr = err
			}
			if copyErr != nil {
				return fmt.Errorf("download %s: %w", remote, copyErr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Success(transferSummary("Downloaded", remote, local, n)))
			return nil
		})
	},
}

var putCmd = &cobra.Command{
	Use:   "put <profile> <local-path> [remote-path]",
	Short: "Upload a file to a host",
	Long: `Upload one local file. The remote path defaults to the file's name in the
remote home directory; an existing remote directory receives the file under
its local name. An existing remote file is replaced.`,
	Example: `  sshmux put web ./nginx.conf /etc/nginx/nginx.conf
  sshmux put web ./release.tar.gz /srv/releases`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		local := args[1]
		remote := filepath.Base(local)
		if len(args) == 3 {
			remote = args[2]
		}

		return withRemoteFS(cmd, args[0], func(fs *remotefs.FS) error {
			if entry, err := fs.Stat(remote); err == nil && entry.IsDir() {
				remote = path.Join(remote, filepath.Base(local))
			}

			src, err := os.Open(local)
			if err != nil {
				return err
			}
			defer src.Close()

			dst, err := fs.OpenWriter(remote)
			if err != nil {
				return err
			}
			n, copyErr := io.Copy(dst, src)
			if err := dst.Close(); copyErr == nil {
				copyErr = err
			}
			if copyErr != nil {
				return fmt.Errorf("upload %s: %w", local, copyErr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Success(transferSummary("Uploaded", local, remote, n)))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(lsCmd, getCmd, putCmd)
}

// withRemoteFS connects id, opens an SFTP channel and runs fn on it.
func withRemoteFS(cmd *cobra.Command, id string, fn func(*remotefs.FS) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connect(cmd.Context(), id); err != nil {
		return err
	}
	client, err := a.reg.OpenSFTP(id)
	if err != nil {
		return err
	}
	fs := remotefs.New(client)
	defer fs.Close()
	return fn(fs)
}

var entryHeaders = []string{"MODE", "SIZE", "MODIFIED", "NAME"}

// entryRows renders a directory listing. Directories show no size and get a
// trailing slash.
func entryRows(entries []remotefs.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		size, name := humanize.IBytes(uint64(max(e.Size, 0))), e.Name
		if e.IsDir() {
			size, name = "-", name+"/"
		}
		rows = append(rows, []string{e.Permissions(), size, formatModTime(e.ModTime), name})
	}
	return rows
}

func formatModTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

func transferSummary(verb, from, to string, n int64) string {
	return fmt.Sprintf("%s %s to %s (%s)", verb, from, to, humanize.IBytes(uint64(max(n, 0))))
}
