// Package supervisor spawns and tears down
// the Docker containers backing each kit (one agent instance), watches
// for unexpected exits, and relays stop signals by agent id.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"golang.org/x/sync/errgroup"
)

// Listener is notified when a supervised container exits without Stop
// having been called for it (for example, the process crashed); exits
// requested through Stop are not reported.
type Listener interface {
	OnChildTerminated(agentID string, err error)
}

// Supervisor owns the Docker-backed lifecycle of every agent container
// in one warren instance.
type Supervisor struct {
	cli      *client.Client
	instance string
	runID    string
	listener Listener

	mu         sync.Mutex
	containers map[string]string // agentID -> containerID
	stopping   map[string]bool   // agentID -> true once Stop was requested, to suppress spurious OnChildTerminated
}

func NewSupervisor(cli *client.Client, instance, runID string, listener Listener) *Supervisor {
	return &Supervisor{
		cli:        cli,
		instance:   instance,
		runID:      runID,
		listener:   listener,
		containers: map[string]string{},
		stopping:   map[string]bool{},
	}
}

// Spawn creates and starts a container for agentID and begins watching
// it for exit.
func (s *Supervisor) Spawn(ctx context.Context, agentID, image string, cmd []string, env map[string]string) (string, error) {
	s.mu.Lock()
	if _, exists := s.containers[agentID]; exists {
		s.mu.Unlock()
		return "", fmt.Errorf("agent %s is already running", agentID)
	}
	s.mu.Unlock()

	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}

	resp, err := s.cli.ContainerCreate(ctx, &container.Config{
		Image:  image,
		Cmd:    cmd,
		Env:    envList,
		Labels: BuildLabels(s.instance, s.runID, agentID),
		Tty:    false,
	}, nil, nil, nil, AgentContainerName(s.instance, agentID))
	if err != nil {
		return "", fmt.Errorf("create agent container: %w", err)
	}

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = s.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("start agent container: %w", err)
	}

	s.mu.Lock()
	s.containers[agentID] = resp.ID
	s.mu.Unlock()

	log.Printf("[INFO] supervisor: spawned agent_id=%s container_id=%s", agentID, resp.ID)
	go s.watch(agentID, resp.ID)

	return resp.ID, nil
}

// watch blocks until the container exits and reports it to the
// listener, unless Stop already marked the exit expected.
func (s *Supervisor) watch(agentID, containerID string) {
	statusCh, errCh := s.cli.ContainerWait(context.Background(), containerID, container.WaitConditionNotRunning)

	var exitErr error
	select {
	case err := <-errCh:
		exitErr = err
	case status := <-statusCh:
		if status.StatusCode != 0 {
			exitErr = fmt.Errorf("agent container exited with status %d", status.StatusCode)
		}
	}

	s.mu.Lock()
	expected := s.stopping[agentID]
	delete(s.containers, agentID)
	delete(s.stopping, agentID)
	s.mu.Unlock()

	if expected {
		return
	}
	log.Printf("[WARN] supervisor: agent_id=%s terminated unexpectedly: %v", agentID, exitErr)
	s.listener.OnChildTerminated(agentID, exitErr)
}

// Stop gracefully stops and removes an agent's container.
func (s *Supervisor) Stop(ctx context.Context, agentID string) error {
	s.mu.Lock()
	containerID, ok := s.containers[agentID]
	if ok {
		s.stopping[agentID] = true
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	timeout := 10
	if err := s.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("stop agent container %s: %w", agentID, err)
	}
	if err := s.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("remove agent container %s: %w", agentID, err)
	}
	log.Printf("[INFO] supervisor: stopped agent_id=%s", agentID)
	return nil
}

// SendControlSignal delivers a POSIX signal to an agent's container
// (e.g. "SIGTERM" for a cancellation stop request that should interrupt
// an in-flight runtime invocation without tearing the container down).
func (s *Supervisor) SendControlSignal(ctx context.Context, agentID, signal string) error {
	s.mu.Lock()
	containerID, ok := s.containers[agentID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent %s is not running", agentID)
	}
	return s.cli.ContainerKill(ctx, containerID, signal)
}

// StopAll stops every tracked agent container concurrently, returning
// the first error encountered (if any) after every stop has been
// attempted.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.Lock()
	agentIDs := make([]string, 0, len(s.containers))
	for agentID := range s.containers {
		agentIDs = append(agentIDs, agentID)
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, agentID := range agentIDs {
		agentID := agentID
		g.Go(func() error {
			return s.Stop(gctx, agentID)
		})
	}
	return g.Wait()
}

// Running reports whether agentID currently has a tracked container.
func (s *Supervisor) Running(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.containers[agentID]
	return ok
}
