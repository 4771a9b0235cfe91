package testing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ExecResult is what the server sends back for one exec request.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ServerOptions configures an in-process SSH server.
type ServerOptions struct {
	// Name labels this server's entries in AuthLog.
	Name string

	// Passwords maps username to accepted password.
	Passwords map[string]string

	// AuthorizedKeys are accepted for any username.
	AuthorizedKeys []ssh.PublicKey

	// Exec answers exec requests. Nil uses RunScript.
	Exec func(cmd string) ExecResult

	// IgnoreKeepalives leaves global requests unanswered.
	IgnoreKeepalives bool

	// AuthLog, when set, records every successful authentication.
	AuthLog *AuthLog
}

// AuthLog records successful authentications across servers, in order.
type AuthLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *AuthLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns "name:user:method" strings in the order they happened.
func (l *AuthLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// WindowSize is a PTY size received from a client.
type WindowSize struct {
	Width  int
	Height int
}

// Server is an in-process SSH server supporting password and public-key
// auth, exec, shell with PTY (echoing input), the sftp subsystem backed by
// an in-memory filesystem, and direct-tcpip forwarding.
type Server struct {
	Addr    string
	HostKey ssh.PublicKey

	opts     ServerOptions
	config   *ssh.ServerConfig
	listener net.Listener
	sftpFS   sftp.Handlers

	mu      sync.Mutex
	conns   []net.Conn
	active  int
	windows []WindowSize
	execs   []string

	done chan struct{}
}

// NewServer starts a server on a random localhost port.
func NewServer(opts ServerOptions) (*Server, error) {
	hostSigner, _, err := GenerateKey("")
	if err != nil {
		return nil, err
	}
	if opts.Exec == nil {
		opts.Exec = RunScript
	}

	s := &Server{
		HostKey: hostSigner.PublicKey(),
		opts:    opts,
		sftpFS:  sftp.InMemHandler(),
		done:    make(chan struct{}),
	}

	s.config = &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			want, ok := opts.Passwords[conn.User()]
			if ok && want == string(password) {
				s.logAuth(conn.User(), "password")
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("bad password for %s", conn.User())
		},
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			for _, k := range opts.AuthorizedKeys {
				if ssh.FingerprintSHA256(k) == ssh.FingerprintSHA256(key) {
					return &ssh.Permissions{}, nil
				}
			}
			return nil, fmt.Errorf("unknown public key")
		},
		// Public keys are offered before they are used, so record key auth
		// once the handshake reports which method won.
		AuthLogCallback: func(conn ssh.ConnMetadata, method string, err error) {
			if err == nil && method == "publickey" {
				s.logAuth(conn.User(), method)
			}
		},
	}
	s.config.AddHostKey(hostSigner)

	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s.Addr = s.listener.Addr().String()

	go s.accept()
	return s, nil
}

// Host returns the listening host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr)
	return host
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr)
	n, _ := strconv.Atoi(port)
	return n
}

func (s *Server) logAuth(user, method string) {
	if s.opts.AuthLog != nil {
		s.opts.AuthLog.add(s.opts.Name + ":" + user + ":" + method)
	}
}

func (s *Server) accept() {
	defer close(s.done)
	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, netConn)
		s.mu.Unlock()
		go s.handleConn(netConn)
	}
}

// DropConnections closes every accepted connection, as a network failure would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// ActiveConns returns the number of authenticated connections still open.
func (s *Server) ActiveConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// WindowSizes returns the PTY sizes received, in order.
func (s *Server) WindowSizes() []WindowSize {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WindowSize, len(s.windows))
	copy(out, s.windows)
	return out
}

// Execs returns the commands received, in order.
func (s *Server) Execs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.execs))
	copy(out, s.execs)
	return out
}

// Close stops the listener and drops every connection.
func (s *Server) Close() {
	s.listener.Close()
	s.DropConnections()
	<-s.done
}

func (s *Server) handleConn(netConn net.Conn) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		netConn.Close()
		return
	}
	defer sshConn.Close()

	s.mu.Lock()
	s.active++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	go func() {
		for req := range reqs {
			if s.opts.IgnoreKeepalives {
				continue
			}
			if req.WantReply {
				req.Reply(true, nil)
			}
		}
	}()

	for newChan := range chans {
		switch newChan.ChannelType() {
		case "session":
			ch, requests, err := newChan.Accept()
			if err != nil {
				continue
			}
			go s.handleSession(ch, requests)
		case "direct-tcpip":
			var target struct {
				Host     string
				Port     uint32
				OrigHost string
				OrigPort uint32
			}
			if err := ssh.Unmarshal(newChan.ExtraData(), &target); err != nil {
				newChan.Reject(ssh.ConnectionFailed, "bad direct-tcpip payload")
				continue
			}
			addr := net.JoinHostPort(target.Host, strconv.Itoa(int(target.Port)))
			conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
			if err != nil {
				newChan.Reject(ssh.ConnectionFailed, err.Error())
				continue
			}
			ch, requests, err := newChan.Accept()
			if err != nil {
				conn.Close()
				continue
			}
			go ssh.DiscardRequests(requests)
			go forward(ch, conn)
		default:
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
		}
	}
}

func forward(ch ssh.Channel, conn net.Conn) {
	defer ch.Close()
	defer conn.Close()

	done := make(chan struct{}, 2)
	go func() { io.Copy(ch, conn); done <- struct{}{} }()
	go func() { io.Copy(conn, ch); done <- struct{}{} }()
	<-done
}

func (s *Server) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()

	for req := range requests {
		switch req.Type {
		case "pty-req":
			var pty struct {
				Term     string
				Width    uint32
				Height   uint32
				PxWidth  uint32
				PxHeight uint32
				Modes    string
			}
			if err := ssh.Unmarshal(req.Payload, &pty); err == nil {
				s.recordWindow(int(pty.Width), int(pty.Height))
			}
			req.Reply(true, nil)

		case "window-change":
			var win struct {
				Width    uint32
				Height   uint32
				PxWidth  uint32
				PxHeight uint32
			}
			if err := ssh.Unmarshal(req.Payload, &win); err == nil {
				s.recordWindow(int(win.Width), int(win.Height))
			}

		case "shell":
			req.Reply(true, nil)
			go func() {
				io.Copy(ch, ch)
				sendExitStatus(ch, 0)
				ch.Close()
			}()

		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				return
			}
			req.Reply(true, nil)

			s.mu.Lock()
			s.execs = append(s.execs, payload.Command)
			s.mu.Unlock()

			res := s.opts.Exec(payload.Command)
			io.WriteString(ch, res.Stdout)
			io.WriteString(ch.Stderr(), res.Stderr)
			sendExitStatus(ch, res.ExitCode)
			return

		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			server := sftp.NewRequestServer(ch, s.sftpFS)
			server.Serve()
			server.Close()
			return

		default:
			if req.WantReply {
				req.Reply(true, nil)
			}
		}
	}
}

func (s *Server) recordWindow(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = append(s.windows, WindowSize{Width: width, Height: height})
}

func sendExitStatus(ch ssh.Channel, code int) {
	ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(code)}))
}

// RunScript is a tiny command interpreter for tests. It understands
// ';'-separated "printf ARG", "echo ARGS [>&2]", "sleep SECONDS" and
// "exit N". Anything else exits 127.
func RunScript(cmd string) ExecResult {
	var res ExecResult
	for _, part := range strings.Split(cmd, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, arg, _ := strings.Cut(part, " ")
		arg = strings.TrimSpace(arg)

		switch name {
		case "printf":
			res.Stdout += unquote(arg)
		case "echo":
			toStderr := strings.HasSuffix(arg, ">&2")
			text := unquote(strings.TrimSpace(strings.TrimSuffix(arg, ">&2"))) + "\n"
			if toStderr {
				res.Stderr += text
			} else {
				res.Stdout += text
			}
		case "sleep":
			secs, _ := strconv.ParseFloat(arg, 64)
			time.Sleep(time.Duration(secs * float64(time.Second)))
		case "exit":
			res.ExitCode, _ = strconv.Atoi(arg)
			return res
		default:
			res.Stderr += fmt.Sprintf("sh: %s: command not found\n", name)
			res.ExitCode = 127
			return res
		}
	}
	return res
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// GenerateKey creates an ed25519 key. It returns the signer and the
// OpenSSH PEM encoding, encrypted when passphrase is not empty.
func GenerateKey(passphrase string) (ssh.Signer, []byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, nil, err
	}

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "", []byte(passphrase))
	}
	if err != nil {
		return nil, nil, err
	}
	return signer, pem.EncodeToMemory(block), nil
}
