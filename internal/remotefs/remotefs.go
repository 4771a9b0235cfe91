// Package remotefs is the file surface over one SFTP channel: stat, list,
// mkdir, streaming read and write, remove and rename. Modes are reported as
// raw POSIX bits the way the server sent them.
package remotefs

import (
	"io"
	"os"
	"path"
	"sort"
	"time"

	"github.com/pkg/sftp"
	"github.com/rileyhilliard/sshmux/internal/errors"
)

// S_IFDIR is the POSIX directory type bit.
const S_IFDIR = 0o40000 //nolint:revive,stylecheck // POSIX name

// IsDir reports whether mode has the S_IFDIR bit set.
func IsDir(mode uint32) bool {
	return mode&S_IFDIR != 0
}

// FormatPermissions renders mode as an ls-style string such as "drwxr-xr-x".
// Only the directory bit and the nine permission bits are shown.
func FormatPermissions(mode uint32) string {
	const rwx = "rwxrwxrwx"
	b := []byte("----------")
	if IsDir(mode) {
		b[0] = 'd'
	}
	for i := 0; i < 9; i++ {
		if mode&(1<<uint(8-i)) != 0 {
			b[i+1] = rwx[i]
		}
	}
	return string(b)
}

// Entry describes one remote file or directory.
type Entry struct {
	Name    string
	Path    string
	Size    int64
	Mode    uint32
	ModTime time.Time
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return IsDir(e.Mode)
}

// Permissions returns the ls-style mode string.
func (e Entry) Permissions() string {
	return FormatPermissions(e.Mode)
}

// FS wraps an SFTP client. Calls may run concurrently; the SFTP client
// pipelines them over its channel.
type FS struct {
	client *sftp.Client
}

// New returns an FS over client. Closing the FS closes the client.
func New(client *sftp.Client) *FS {
	return &FS{client: client}
}

// Stat returns the entry at p, following symlinks.
func (f *FS) Stat(p string) (Entry, error) {
	fi, err := f.client.Stat(p)
	if err != nil {
		return Entry{}, wrap(err, "stat", p)
	}
	return entryFrom(p, fi), nil
}

// List returns the entries of dir, directories first, then by name.
func (f *FS) List(dir string) ([]Entry, error) {
	infos, err := f.client.ReadDir(dir)
	if err != nil {
		return nil, wrap(err, "list", dir)
	}

	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, entryFrom(path.Join(dir, fi.Name()), fi))
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Mkdir creates one directory. The parent must exist.
func (f *FS) Mkdir(p string) error {
	if err := f.client.Mkdir(p); err != nil {
		return wrap(err, "create directory", p)
	}
	return nil
}

// OpenReader opens p for streaming reads.
func (f *FS) OpenReader(p string) (io.ReadCloser, error) {
	file, err := f.client.Open(p)
	if err != nil {
		return nil, wrap(err, "open", p)
	}
	return file, nil
}

// OpenWriter creates or truncates p for streaming writes. The data is only
// durable once the writer is closed without error.
func (f *FS) OpenWriter(p string) (io.WriteCloser, error) {
	file, err := f.client.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, wrap(err, "create", p)
	}
	return file, nil
}

// Remove deletes a file or an empty directory.
func (f *FS) Remove(p string) error {
	if err := f.client.Remove(p); err != nil {
		return wrap(err, "delete", p)
	}
	return nil
}

// Rename moves oldPath to newPath.
func (f *FS) Rename(oldPath, newPath string) error {
	if err := f.client.Rename(oldPath, newPath); err != nil {
		return wrap(err, "rename", oldPath)
	}
	return nil
}

// Close ends the SFTP session. The transport stays up.
func (f *FS) Close() error {
	return f.client.Close()
}

func entryFrom(p string, fi os.FileInfo) Entry {
	return Entry{
		Name:    fi.Name(),
		Path:    p,
		Size:    fi.Size(),
		Mode:    rawMode(fi),
		ModTime: fi.ModTime(),
	}
}

// rawMode returns the POSIX mode bits the server sent, rebuilding them from
// the Go FileMode when the attributes aren't available.
func rawMode(fi os.FileInfo) uint32 {
	if st, ok := fi.Sys().(*sftp.FileStat); ok {
		return st.Mode
	}
	mode := uint32(fi.Mode().Perm())
	if fi.IsDir() {
		mode |= S_IFDIR
	}
	return mode
}

func wrap(err error, op, p string) error {
	suggestion := ""
	if os.IsNotExist(err) {
		suggestion = "Check the path exists on the remote host."
	} else if os.IsPermission(err) {
		suggestion = "The remote user lacks permission for this path."
	}
	return errors.WrapWithCode(err, errors.ErrSSH, "Can't "+op+" "+p, suggestion)
}
