package monitor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMetricsCommand(t *testing.T) {
	cmd := BuildMetricsCommand()

	for _, name := range []string{SectionCPU, SectionLoad, SectionMem, SectionSwap, SectionDisk, SectionNet, SectionUptime, SectionHost} {
		assert.Contains(t, cmd, "echo '"+Marker(name)+"'")
	}
	assert.Contains(t, cmd, "/proc/stat")
	assert.Contains(t, cmd, "free -b")
	assert.Contains(t, cmd, "df -B1 -P")
	assert.Contains(t, cmd, "/proc/net/dev")
	assert.True(t, strings.HasSuffix(cmd, "; exit 0"))

	// Sections come out in a fixed order.
	assert.Less(t, strings.Index(cmd, "=CPU="), strings.Index(cmd, "=MEM="))
	assert.Less(t, strings.Index(cmd, "=MEM="), strings.Index(cmd, "=SWAP="))
}

func TestParseSections(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   map[string][]string
	}{
		{
			name:   "consecutive sections",
			output: "=A=\na1\na2\n=B=\nb1\n",
			want:   map[string][]string{"A": {"a1", "a2"}, "B": {"b1"}},
		},
		{
			name:   "blank line ends a section",
			output: "=A=\na1\n\nstray\n=B=\nb1",
			want:   map[string][]string{"A": {"a1"}, "B": {"b1"}},
		},
		{
			name:   "empty section",
			output: "=A=\n=B=\nb1",
			want:   map[string][]string{"A": {}, "B": {"b1"}},
		},
		{
			name:   "lines before the first marker are ignored",
			output: "motd\n=A=\na1",
			want:   map[string][]string{"A": {"a1"}},
		},
		{
			name:   "markers must match the whole line",
			output: "=A=\n x =B=\n=C= \n==\n",
			want:   map[string][]string{"A": {" x =B=", "=C= ", "=="}},
		},
		{
			name:   "crlf line endings",
			output: "=A=\r\na1\r\n",
			want:   map[string][]string{"A": {"a1"}},
		},
		{
			name:   "repeated marker keeps the first block",
			output: "=A=\nfirst\n=A=\nsecond",
			want:   map[string][]string{"A": {"first"}},
		},
		{
			name:   "no markers",
			output: "nothing here",
			want:   map[string][]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSections(tt.output))
		})
	}
}
