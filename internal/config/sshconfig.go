package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
	"github.com/rileyhilliard/sshmux/internal/errors"
)

// ImportResult holds profiles derived from an OpenSSH client config.
type ImportResult struct {
	Profiles []Profile
	// Skipped maps host aliases that could not be imported to the reason.
	Skipped map[string]string
}

// ImportSSHConfig turns the concrete Host entries of an OpenSSH config into
// profiles. Wildcard patterns are ignored. Hosts with an IdentityFile use key
// auth, everything else uses password auth. A single-hop ProxyJump becomes
// the profile's proxy; multi-hop chains are skipped. A missing file yields an
// empty result.
func ImportSSHConfig(path string) (*ImportResult, error) {
	res := &ImportResult{Skipped: make(map[string]string)}

	content, matchLine, err := preprocessSSHConfig(ExpandTilde(path))
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Can't read SSH config "+path,
			"Check the file permissions")
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Can't parse SSH config "+path,
			"Check the file with 'ssh -G <host>'")
	}

	seen := make(map[string]bool)
	for _, host := range cfg.Hosts {
		for _, pattern := range host.Patterns {
			alias := pattern.String()
			if strings.ContainsAny(alias, "*?!") || seen[alias] {
				continue
			}
			seen[alias] = true

			p, err := profileFromSSHConfig(cfg, alias)
			if err != nil {
				res.Skipped[alias] = err.Error()
				continue
			}
			res.Profiles = append(res.Profiles, p)
		}
	}

	if matchLine > 0 {
		res.Skipped["Match"] = fmt.Sprintf("entries after the Match block at line %d are not read", matchLine)
	}

	sort.Slice(res.Profiles, func(i, j int) bool {
		return res.Profiles[i].ID < res.Profiles[j].ID
	})
	return res, nil
}

func profileFromSSHConfig(cfg *ssh_config.Config, alias string) (Profile, error) {
	ep, err := endpointFromSSHConfig(cfg, alias)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{
		ID:             alias,
		Host:           ep.Host,
		Port:           ep.Port,
		Username:       ep.Username,
		AuthType:       ep.AuthType,
		PrivateKeyPath: ep.PrivateKeyPath,
	}

	jump, _ := cfg.Get(alias, "ProxyJump")
	jump = strings.TrimSpace(jump)
	if jump == "" || strings.EqualFold(jump, "none") {
		return p, nil
	}
	if strings.Contains(jump, ",") {
		return Profile{}, fmt.Errorf("ProxyJump %q has more than one hop", jump)
	}

	user, hostPort := "", jump
	if at := strings.LastIndex(jump, "@"); at >= 0 {
		user, hostPort = jump[:at], jump[at+1:]
	}
	jumpHost, jumpPort := hostPort, 0
	if i := strings.LastIndex(hostPort, ":"); i >= 0 {
		n, err := strconv.Atoi(hostPort[i+1:])
		if err != nil {
			return Profile{}, fmt.Errorf("ProxyJump %q has a bad port", jump)
		}
		jumpHost, jumpPort = hostPort[:i], n
	}

	// The jump host may itself be an alias in the same file.
	proxy, err := endpointFromSSHConfig(cfg, jumpHost)
	if err != nil {
		return Profile{}, err
	}
	if user != "" {
		proxy.Username = user
	}
	if jumpPort != 0 {
		proxy.Port = jumpPort
	}
	p.Proxy = &proxy
	return p, nil
}

func endpointFromSSHConfig(cfg *ssh_config.Config, alias string) (ProxyProfile, error) {
	ep := ProxyProfile{
		Host:     alias,
		Port:     DefaultPort,
		AuthType: AuthPassword,
	}
	if hostname, _ := cfg.Get(alias, "HostName"); hostname != "" {
		ep.Host = hostname
	}
	if port, _ := cfg.Get(alias, "Port"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return ProxyProfile{}, fmt.Errorf("port %q is not a number", port)
		}
		ep.Port = n
	}
	if user, _ := cfg.Get(alias, "User"); user != "" {
		ep.Username = user
	} else {
		ep.Username = os.Getenv("USER")
	}
	if identity, _ := cfg.Get(alias, "IdentityFile"); identity != "" {
		ep.AuthType = AuthPrivateKey
		ep.PrivateKeyPath = ExpandTilde(identity)
	}
	return ep, nil
}

// preprocessSSHConfig reads the SSH config and returns content up to the first
// Match directive, which the decoder does not understand. Also returns the
// 1-indexed line where Match was found (0 if not found).
func preprocessSSHConfig(configPath string) ([]byte, int, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(content), "\n")
	var result []string
	matchLine := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "match ") {
			matchLine = i + 1
			break
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\n")), matchLine, nil
}
