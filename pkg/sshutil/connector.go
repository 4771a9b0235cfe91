package sshutil

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/sshmux/internal/config"
	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/rileyhilliard/sshmux/internal/logger"
	"github.com/rileyhilliard/sshmux/internal/prompt"
	"github.com/rileyhilliard/sshmux/internal/secret"
	"golang.org/x/crypto/ssh"
)

// Options tunes every transport a Connector establishes.
type Options struct {
	HandshakeTimeout      time.Duration
	KeepaliveInterval     time.Duration
	KeepaliveMaxMissed    int
	StrictHostKeyChecking bool
	KnownHosts            string
}

// OptionsFromConfig maps the transport config section to Options.
func OptionsFromConfig(t config.TransportConfig) Options {
	return Options{
		HandshakeTimeout:      t.HandshakeTimeout,
		KeepaliveInterval:     t.KeepaliveInterval,
		KeepaliveMaxMissed:    t.KeepaliveMaxMissed,
		StrictHostKeyChecking: t.StrictHostKeyChecking,
		KnownHosts:            t.KnownHosts,
	}
}

// DefaultOptions returns the transport defaults.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig().Transport)
}

// Connector establishes transports for profiles, directly or through a
// single jump host, resolving credentials from the secret store and the
// prompter.
type Connector struct {
	Secrets  secret.Store
	Prompter prompt.Prompter
	Options  Options
	Logger   logger.Logger

	// HostKeyCallback overrides the known_hosts handling when set.
	HostKeyCallback ssh.HostKeyCallback

	// promptMu serializes prompts across concurrent establishes.
	promptMu sync.Mutex
}

// NewConnector returns a Connector. A nil store keeps secrets in memory and a
// nil prompter never prompts.
func NewConnector(secrets secret.Store, prompter prompt.Prompter, opts Options) *Connector {
	if secrets == nil {
		secrets = secret.NewMemoryStore()
	}
	if prompter == nil {
		prompter = prompt.None
	}
	return &Connector{
		Secrets:  secrets,
		Prompter: prompter,
		Options:  opts,
		Logger:   logger.NewEnvLogger("[ssh]"),
	}
}

// Connect establishes a transport for p. It lets a Connector serve as the
// registry's transport factory.
func (c *Connector) Connect(ctx context.Context, p config.Profile) (Transport, error) {
	client, err := c.Establish(ctx, p, false)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Establish opens an authenticated transport for p. When p has a proxy and
// isProxyHop is false, the proxy is established first and the target
// handshake runs over a direct-tcpip channel through it. isProxyHop marks p
// as the jump host leg itself, which changes where its password is looked up.
func (c *Connector) Establish(ctx context.Context, p config.Profile, isProxyHop bool) (*Client, error) {
	if p.Proxy != nil && !isProxyHop {
		return c.establishViaProxy(ctx, p)
	}

	auth, err := c.authMethods(ctx, p, isProxyHop)
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout())
	defer cancel()

	addr := p.Address()
	c.log().Debug("dialing %s for %s", addr, p.ID)

	var d net.Dialer
	conn, err := d.DialContext(hctx, "tcp", addr)
	if err != nil {
		return nil, c.dialError(hctx, err, addr)
	}

	sshConn, err := c.handshake(hctx, conn, addr, p.Username, auth)
	if err != nil {
		return nil, err
	}
	return newClient(sshConn, p.ID, addr, nil, c.keepalive(), c.log()), nil
}

func (c *Connector) establishViaProxy(ctx context.Context, p config.Profile) (*Client, error) {
	hop := p.ProxyHop()
	proxy, err := c.Establish(ctx, hop, true)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.Code(err),
			fmt.Sprintf("Can't connect to jump host %s for '%s'", hop.Address(), p.ID),
			"Check the proxy settings of this profile.")
	}

	success := false
	defer func() {
		if !success {
			proxy.Close()
		}
	}()

	auth, err := c.authMethods(ctx, p, false)
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout())
	defer cancel()

	addr := p.Address()
	c.log().Debug("forwarding to %s through %s for %s", addr, hop.Address(), p.ID)

	conn, err := proxy.dialThrough(hctx, addr)
	if err != nil {
		if hctx.Err() != nil {
			return nil, c.contextError(hctx, addr)
		}
		return nil, errors.WrapWithCode(err, errors.ErrNetwork,
			fmt.Sprintf("Jump host %s couldn't reach %s", hop.Address(), addr),
			"Check the target is reachable from the jump host and forwarding is allowed.")
	}

	sshConn, err := c.handshake(hctx, conn, addr, p.Username, auth)
	if err != nil {
		return nil, err
	}

	success = true
	return newClient(sshConn, p.ID, addr, proxy, c.keepalive(), c.log()), nil
}

type handshakeResult struct {
	conn  ssh.Conn
	chans <-chan ssh.NewChannel
	reqs  <-chan *ssh.Request
	err   error
}

// handshake runs the SSH handshake on conn, giving up when ctx ends. conn is
// closed on failure.
func (c *Connector) handshake(ctx context.Context, conn net.Conn, addr, user string, auth []ssh.AuthMethod) (*ssh.Client, error) {
	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		conn.Close()
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.handshakeTimeout(),
	}

	resCh := make(chan handshakeResult, 1)
	go func() {
		sc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
		resCh <- handshakeResult{conn: sc, chans: chans, reqs: reqs, err: err}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		if res := <-resCh; res.err == nil {
			res.conn.Close()
		}
		return nil, c.contextError(ctx, addr)
	case res := <-resCh:
		if res.err != nil {
			conn.Close()
			return nil, handshakeError(res.err, addr)
		}
		return ssh.NewClient(res.conn, res.chans, res.reqs), nil
	}
}

// authMethods resolves credentials for p. Passwords come from the secret
// store, then the prompter; an answered prompt is stored. Key passphrases
// are only read from the store.
func (c *Connector) authMethods(ctx context.Context, p config.Profile, isProxyHop bool) ([]ssh.AuthMethod, error) {
	identity := p.ID
	passwordKey := secret.PasswordKey(p.ID)
	if isProxyHop {
		identity = "proxy_" + p.Host
		passwordKey = secret.ProxyPasswordKey(p.Host)
	}

	switch p.AuthType {
	case config.AuthPassword:
		password, ok, err := c.secrets().Get(passwordKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			password, err = c.promptPassword(ctx, p, passwordKey, identity)
			if err != nil {
				return nil, err
			}
		}
		return []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(answerAll(password)),
		}, nil

	case config.AuthPrivateKey:
		keyPath := config.ExpandTilde(p.PrivateKeyPath)
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrAuth,
				"Can't read private key "+keyPath,
				"Check private_key_path in the profile.")
		}

		passphrase, ok, err := c.secrets().Get(secret.PassphraseKey(identity))
		if err != nil {
			return nil, err
		}
		var signer ssh.Signer
		if ok {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(data)
		}
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if stderrors.As(err, &missing) {
				return nil, errors.WrapWithCode(err, errors.ErrAuth,
					fmt.Sprintf("SSH key at %s is encrypted (passphrase protected)", keyPath),
					fmt.Sprintf("Store the passphrase with: sshmux secret set --passphrase %s", p.ID))
			}
			return nil, errors.WrapWithCode(err, errors.ErrAuth,
				"Can't parse private key "+keyPath,
				"Check the key file, or the stored passphrase.")
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	default:
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown auth type '%s' for '%s'", p.AuthType, p.ID),
			"Use 'password' or 'privateKey'.")
	}
}

// promptPassword asks for the password stored under passwordKey and saves
// the answer. One prompt runs at a time; a password saved by an earlier
// prompt (a shared jump host) is used without asking again.
func (c *Connector) promptPassword(ctx context.Context, p config.Profile, passwordKey, identity string) (string, error) {
	c.promptMu.Lock()
	defer c.promptMu.Unlock()

	password, ok, err := c.secrets().Get(passwordKey)
	if err != nil {
		return "", err
	}
	if ok {
		return password, nil
	}

	msg := fmt.Sprintf("Password for %s@%s", p.Username, p.Host)
	password, ok, err = c.prompter().Password(ctx, msg)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrAuth, "Password prompt failed", "")
	}
	if !ok || password == "" {
		return "", errors.New(errors.ErrAuth, "Password required",
			fmt.Sprintf("Store one with: sshmux secret set %s", p.ID))
	}
	if err := c.secrets().Store(passwordKey, password); err != nil {
		c.log().Warn("couldn't save password for %s: %v", logger.Sanitize(identity), err)
	}
	return password, nil
}

// answerAll answers every keyboard-interactive question with the password.
func answerAll(password string) ssh.KeyboardInteractiveChallenge {
	return func(name, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}
		return answers, nil
	}
}

func (c *Connector) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.HostKeyCallback != nil {
		return c.HostKeyCallback, nil
	}
	if !c.Options.StrictHostKeyChecking {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // host key checking is off in config
	}
	cb, err := createHostKeyCallback(config.ExpandTilde(c.Options.KnownHosts))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Can't load known_hosts",
			"Check transport.known_hosts in your config.")
	}
	return cb, nil
}

func (c *Connector) dialError(ctx context.Context, err error, addr string) error {
	if ctx.Err() != nil {
		return c.contextError(ctx, addr)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.WrapWithCode(err, errors.ErrTimeout,
			fmt.Sprintf("Timed out reaching %s", addr),
			suggestionForDialError(err))
	}
	return errors.WrapWithCode(err, errors.ErrNetwork,
		fmt.Sprintf("Can't reach %s", addr),
		suggestionForDialError(err))
}

func (c *Connector) contextError(ctx context.Context, addr string) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.WrapWithCode(ctx.Err(), errors.ErrTimeout,
			fmt.Sprintf("Connecting to %s timed out after %s", addr, c.handshakeTimeout()),
			"Host might be offline or blocked by a firewall.")
	}
	return errors.WrapWithCode(ctx.Err(), errors.ErrSSH,
		fmt.Sprintf("Connecting to %s was cancelled", addr), "")
}

func handshakeError(err error, addr string) error {
	var hostKeyErr *HostKeyMismatchError
	if stderrors.As(err, &hostKeyErr) {
		return errors.New(errors.ErrSSH, hostKeyErr.Error(), hostKeyErr.Suggestion())
	}

	errStr := err.Error()
	if strings.Contains(errStr, "unable to authenticate") || strings.Contains(errStr, "no supported methods") {
		return errors.WrapWithCode(err, errors.ErrAuth,
			fmt.Sprintf("Authentication to %s failed", addr),
			"Check the username and the stored password or key.")
	}
	return errors.WrapWithCode(err, errors.ErrSSH,
		fmt.Sprintf("SSH handshake with %s didn't go through", addr),
		suggestionForHandshakeError(err))
}

func suggestionForDialError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") {
		return "Is SSH running on that box?"
	}
	if strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable") {
		return "Can't route to the host. Check your network connection."
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "i/o timeout") {
		return "Connection timed out. Host might be offline or blocked by a firewall."
	}
	if strings.Contains(errStr, "no such host") {
		return "The hostname doesn't resolve. Check the profile's host."
	}
	return "Make sure the host is reachable."
}

func suggestionForHandshakeError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "host key") {
		return "Host key issue. Check transport.known_hosts or connect once with ssh to record the key."
	}
	if strings.Contains(errStr, "EOF") || strings.Contains(errStr, "reset by peer") {
		return "The server closed the connection during setup. It may limit connections or not speak SSH on that port."
	}
	return "Something went wrong during SSH setup."
}

func (c *Connector) handshakeTimeout() time.Duration {
	if c.Options.HandshakeTimeout > 0 {
		return c.Options.HandshakeTimeout
	}
	return 30 * time.Second
}

func (c *Connector) keepalive() KeepaliveOptions {
	return KeepaliveOptions{
		Interval:  c.Options.KeepaliveInterval,
		MaxMissed: c.Options.KeepaliveMaxMissed,
	}
}

// fallbackSecrets backs Connectors built without NewConnector and no store.
var fallbackSecrets = secret.NewMemoryStore()

func (c *Connector) secrets() secret.Store {
	if c.Secrets == nil {
		return fallbackSecrets
	}
	return c.Secrets
}

func (c *Connector) prompter() prompt.Prompter {
	if c.Prompter == nil {
		return prompt.None
	}
	return c.Prompter
}

func (c *Connector) log() logger.Logger {
	if c.Logger == nil {
		return logger.Noop()
	}
	return c.Logger
}
