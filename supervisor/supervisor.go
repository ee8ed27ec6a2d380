package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.dedis.ch/statetree/id"
	"go.dedis.ch/statetree/log"
	"golang.org/x/xerrors"
)

// Supervisor owns one process's Node plus the OS processes it has
// spawned for its children, and carries out the cascading shutdown
// on receipt of a terminate signal.
type Supervisor struct {
	cfg  Config
	self id.NodeId
	node *Node

	mu       sync.Mutex
	children []*exec.Cmd
}

// New resolves self's id from cfg.Port, computes its children (empty
// past cfg.Levels), builds its transport and Node.
func New(cfg Config) (*Supervisor, error) {
	self, err := id.New(fmt.Sprintf("%0*d", id.Width, cfg.Port))
	if err != nil {
		return nil, xerrors.Errorf("deriving node id from port %d: %w", cfg.Port, err)
	}

	var children []id.NodeId
	if self.Depth() < cfg.Levels {
		children, err = self.Children(cfg.Children)
		if err != nil {
			return nil, xerrors.Errorf("computing children of %s: %w", self, err)
		}
	}

	tp, err := buildTransport(self, cfg)
	if err != nil {
		return nil, xerrors.Errorf("building transport: %w", err)
	}

	return &Supervisor{
		cfg:  cfg,
		self: self,
		node: NewNode(self, children, tp, cfg, nil, nil),
	}, nil
}

// Node returns the supervised Node.
func (s *Supervisor) Node() *Node { return s.node }

// Start brings up the local transport receiver, issues the node's
// "ready" transition, and spawns one OS process per child, each
// running the same binary with `--parent` pointed back at this node.
func (s *Supervisor) Start() error {
	if err := s.node.Start(); err != nil {
		return xerrors.Errorf("starting node %s: %w", s.self, err)
	}
	log.Lvl1("node ", s.self, " listening (architecture=", s.cfg.Architecture, ")")

	selfAddr := id.NewNetAddress(s.self, s.cfg.Host).String()
	for _, child := range s.node.children {
		args := []string{
			"--port", child.Port(),
			"--levels", strconv.Itoa(s.cfg.Levels),
			"--children", strconv.Itoa(s.cfg.Children),
			"--parent", selfAddr,
			"--architecture", string(s.cfg.Architecture),
		}
		if s.cfg.ConfigPath != "" {
			args = append(args, "--config", s.cfg.ConfigPath)
		}
		if s.cfg.Debug {
			args = append(args, "--debug")
		}
		cmd := exec.Command(os.Args[0], args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return xerrors.Errorf("spawning child %s: %w", child, err)
		}
		log.Lvl2("node ", s.self, " spawned child ", child, " (pid ", cmd.Process.Pid, ")")
		s.mu.Lock()
		s.children = append(s.children, cmd)
		s.mu.Unlock()
	}
	return nil
}

// Shutdown signals every spawned child to terminate, waits up to
// cfg.ShutdownTimeout for each to exit, then stops this node's own
// transport receivers. It never blocks past the configured timeout.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	children := append([]*exec.Cmd(nil), s.children...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, cmd := range children {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			log.Warnf("node %s: signaling child pid %d: %v", s.self, cmd.Process.Pid, err)
			continue
		}
		wg.Add(1)
		go func(cmd *exec.Cmd) {
			defer wg.Done()
			cmd.Wait()
		}(cmd)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout):
		log.Warnf("node %s: shutdown timeout exceeded, %d children may be orphaned", s.self, len(children))
	}

	if err := s.node.Stop(); err != nil {
		log.Warnf("node %s: stopping transport: %v", s.self, err)
	}
}
