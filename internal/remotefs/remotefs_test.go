package remotefs

import (
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/pkg/sftp"
	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDir(t *testing.T) {
	tests := []struct {
		mode uint32
		want bool
	}{
		{0o40755, true},
		{0o40000, true},
		{0o100644, false},
		{0o120777, false},
		{0o755, false},
		{0, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsDir(tt.mode), "mode %o", tt.mode)
	}
}

func TestFormatPermissions(t *testing.T) {
	tests := []struct {
		mode uint32
		want string
	}{
		{0o40755, "drwxr-xr-x"},
		{0o100644, "-rw-r--r--"},
		{0o100600, "-rw-------"},
		{0o100777, "-rwxrwxrwx"},
		{0o40700, "drwx------"},
		{0o104755, "-rwxr-xr-x"},
		{0, "----------"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPermissions(tt.mode))
		})
	}
}

type pipeConn struct {
	io.Reader
	io.WriteCloser
}

// newTestFS serves an in-memory SFTP filesystem over pipes.
func newTestFS(t *testing.T) *FS {
	t.Helper()
	clientRead, serverWrite := io.Pipe()
	serverRead, clientWrite := io.Pipe()

	server := sftp.NewRequestServer(pipeConn{serverRead, serverWrite}, sftp.InMemHandler())
	go server.Serve()

	client, err := sftp.NewClientPipe(clientRead, clientWrite)
	require.NoError(t, err)

	f := New(client)
	t.Cleanup(func() {
		server.Close()
		f.Close()
	})
	return f
}

func writeFile(t *testing.T, f *FS, p, content string) {
	t.Helper()
	w, err := f.OpenWriter(p)
	require.NoError(t, err)
	_, err = io.Copy(w, strings.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readFile(t *testing.T, f *FS, p string) string {
	t.Helper()
	r, err := f.OpenReader(p)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestFS_ReadWrite(t *testing.T) {
	f := newTestFS(t)

	require.NoError(t, f.Mkdir("/srv"))
	writeFile(t, f, "/srv/app.conf", "port=8080\n")
	assert.Equal(t, "port=8080\n", readFile(t, f, "/srv/app.conf"))

	e, err := f.Stat("/srv/app.conf")
	require.NoError(t, err)
	assert.Equal(t, "app.conf", e.Name)
	assert.Equal(t, "/srv/app.conf", e.Path)
	assert.Equal(t, int64(10), e.Size)
	assert.False(t, e.IsDir())
	assert.True(t, strings.HasPrefix(e.Permissions(), "-rw"))

	d, err := f.Stat("/srv")
	require.NoError(t, err)
	assert.True(t, d.IsDir())
	assert.Equal(t, "drwxr-xr-x", d.Permissions())
}

func TestFS_ListSortsDirectoriesFirst(t *testing.T) {
	f := newTestFS(t)

	require.NoError(t, f.Mkdir("/w"))
	writeFile(t, f, "/w/b.txt", "b")
	writeFile(t, f, "/w/a.txt", "a")
	require.NoError(t, f.Mkdir("/w/zdir"))
	require.NoError(t, f.Mkdir("/w/cdir"))

	entries, err := f.List("/w")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"cdir", "zdir", "a.txt", "b.txt"}, names)
	assert.Equal(t, "/w/cdir", entries[0].Path)
}

func TestFS_RenameAndRemove(t *testing.T) {
	f := newTestFS(t)

	writeFile(t, f, "/old.txt", "data")
	require.NoError(t, f.Rename("/old.txt", "/new.txt"))

	_, err := f.Stat("/old.txt")
	require.Error(t, err)
	assert.Equal(t, "data", readFile(t, f, "/new.txt"))

	require.NoError(t, f.Remove("/new.txt"))
	_, err = f.Stat("/new.txt")
	require.Error(t, err)
}

func TestFS_Errors(t *testing.T) {
	f := newTestFS(t)

	_, err := f.Stat("/missing")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "Can't stat /missing")

	_, err = f.OpenReader("/missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = f.List("/missing")
	assert.Error(t, err)
}
