package docker

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/rileyhilliard/sshmux/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildProbeCommand(t *testing.T) {
	cmd := BuildProbeCommand()

	assert.Contains(t, cmd, "echo '=DOCKER='")
	assert.Contains(t, cmd, "|| echo MISSING")
	assert.Contains(t, cmd, "echo '=PS='")
	assert.Contains(t, cmd, "docker ps -a --no-trunc --format '{{.ID}}|{{.Names}}|{{.Image}}|{{.Status}}|{{.State}}'")
	assert.Contains(t, cmd, "echo '=STATS='")
	assert.Contains(t, cmd, "docker stats --no-stream")
	assert.Contains(t, cmd, "{{.ID}}|{{.CPUPerc}}|{{.MemUsage}}|{{.MemPerc}}|{{.NetIO}}|{{.BlockIO}}|{{.PIDs}}")
	assert.True(t, strings.HasSuffix(cmd, "exit 0"))
}

func TestParseContainers_JoinOnShortID(t *testing.T) {
	output := strings.Join([]string{
		"=DOCKER=",
		"24.0.7",
		"=PS=",
		"abcdef123456789|web|nginx:1.25|Up 3 hours|running",
		"=STATS=",
		"abcdef123456|12.50%|1.50GiB / 7.7GiB|19.48%|1.2kB / 648B|0B / 4MB|5",
	}, "\n")

	got := ParseContainers(output)

	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, "abcdef123456789", c.ID)
	assert.Equal(t, "abcdef123456", c.ShortID())
	assert.Equal(t, "web", c.Name)
	assert.Equal(t, "nginx:1.25", c.Image)
	assert.Equal(t, "Up 3 hours", c.Status)
	assert.True(t, c.Running())
	assert.Equal(t, 12.5, c.CPUPercent)
	assert.Equal(t, int64(1610612736), c.MemUsed)
	assert.Equal(t, 19.48, c.MemPercent)
	assert.Equal(t, int64(1200), c.NetRx)
	assert.Equal(t, int64(648), c.NetTx)
	assert.Equal(t, int64(0), c.BlockRead)
	assert.Equal(t, int64(4000000), c.BlockWrite)
	assert.Equal(t, 5, c.PIDs)
}

func TestParseContainers(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []Container
	}{
		{
			name:   "docker missing",
			output: "=DOCKER=\nMISSING\n=PS=\n=STATS=\n",
			want:   []Container{},
		},
		{
			name:   "no docker section",
			output: "",
			want:   []Container{},
		},
		{
			name: "full id in stats",
			output: "=DOCKER=\n24.0\n=PS=\n" +
				"aaaaaaaaaaaa1111|api|app:2|Up 1 minute|running\n" +
				"=STATS=\naaaaaaaaaaaa1111|1.00%|200MB / 1GB|20.00%|0B / 0B|0B / 0B|3\n",
			want: []Container{{
				ID: "aaaaaaaaaaaa1111", Name: "api", Image: "app:2", Status: "Up 1 minute", State: "running",
				CPUPercent: 1, MemUsed: 200000000, MemLimit: 1000000000, MemPercent: 20, PIDs: 3,
			}},
		},
		{
			name: "stopped container keeps zero stats",
			output: "=DOCKER=\n24.0\n=PS=\n" +
				"bbbbbbbbbbbb2222|old|busybox|Exited (0) 2 days ago|exited\n" +
				"=STATS=\n",
			want: []Container{{
				ID: "bbbbbbbbbbbb2222", Name: "old", Image: "busybox", Status: "Exited (0) 2 days ago", State: "exited",
			}},
		},
		{
			name: "malformed lines are skipped",
			output: "=DOCKER=\n24.0\n=PS=\n" +
				"garbage\n" +
				"cccccccccccc3333|db|postgres:16|Up 5 hours|running\n" +
				"=STATS=\ncccccccccccc|oops\n",
			want: []Container{{
				ID: "cccccccccccc3333", Name: "db", Image: "postgres:16", Status: "Up 5 hours", State: "running",
			}},
		},
		{
			name: "non-numeric stats fall back to zero",
			output: "=DOCKER=\n24.0\n=PS=\n" +
				"dddddddddddd4444|job|worker|Up 2 seconds|running\n" +
				"=STATS=\ndddddddddddd|--|-- / --|--|--|--|--\n",
			want: []Container{{
				ID: "dddddddddddd4444", Name: "job", Image: "worker", Status: "Up 2 seconds", State: "running",
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseContainers(tt.output))
		})
	}
}

type fakeExec struct {
	mu       sync.Mutex
	out      string
	err      error
	commands []string
}

func (f *fakeExec) ExecCommand(_ context.Context, id, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, id+": "+command)
	return f.out, f.err
}

func TestClient_Containers(t *testing.T) {
	exec := &fakeExec{out: "=DOCKER=\n24.0\n=PS=\nx\neeeeeeeeeeee5555|a|b|Up|running\n"}
	log := logger.NewBufferLogger()
	c := New(exec, "web")
	c.SetLogger(log)

	got, err := c.Containers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "web: "+BuildProbeCommand(), exec.commands[0])
	assert.True(t, log.Contains("debug", "web: skipped 1 malformed docker line(s)"))

	exec.err = errors.NewNotConnected("web")
	_, err = c.Containers(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrNotConnected))
}

func TestClient_Actions(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		err     error
		wantErr bool
	}{
		{name: "success echoes the id", out: "web\n"},
		{name: "error in stdout", out: "Error response from daemon: No such container: web", wantErr: true},
		{
			name:    "error in stderr",
			err:     errors.NewCommandError("docker start 'web'", 1, "Error: No such container: web"),
			wantErr: true,
		},
		{
			name: "nonzero exit without the word error reads as success",
			err:  errors.NewCommandError("docker start 'web'", 1, "permission denied"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExec{out: tt.out, err: tt.err}
			c := New(exec, "host1")

			err := c.Start(context.Background(), "web")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrCommand))
				assert.Contains(t, err.Error(), "No such container")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClient_ActionCommands(t *testing.T) {
	exec := &fakeExec{out: "ok"}
	c := New(exec, "host1")
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, "web"))
	require.NoError(t, c.Stop(ctx, "my app"))
	require.NoError(t, c.Restart(ctx, "abcdef123456"))

	assert.Equal(t, []string{
		"host1: docker start 'web'",
		"host1: docker stop 'my app'",
		"host1: docker restart 'abcdef123456'",
	}, exec.commands)
}

func TestClient_ActionTransportError(t *testing.T) {
	exec := &fakeExec{err: errors.NewNotConnected("host1")}
	err := New(exec, "host1").Restart(context.Background(), "web")
	assert.True(t, errors.IsCode(err, errors.ErrNotConnected))
}
