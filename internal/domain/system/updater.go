package system

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"panel-server-go/internal/domain/eventbus"
	"panel-server-go/internal/utils"
)

// SystemUpdater runs the self-update and reports each output line.
type SystemUpdater interface {
	Run(ctx context.Context, emit func(line string)) error
}

// CommandUpdater runs an external command and streams its stdout and stderr.
type CommandUpdater struct {
	Command []string
}

// Run starts the command and blocks until it exits.
func (u CommandUpdater) Run(ctx context.Context, emit func(line string)) error {
	if len(u.Command) == 0 {
		return fmt.Errorf("update command not configured")
	}
	cmd := exec.CommandContext(ctx, u.Command[0], u.Command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	var emitMu sync.Mutex
	relay := func(r io.Reader, wg *sync.WaitGroup) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			emitMu.Lock()
			emit(scanner.Text())
			emitMu.Unlock()
		}
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go relay(stdout, &wg)
	go relay(stderr, &wg)
	wg.Wait()

	return cmd.Wait()
}

// EventPublisher queues domain events.
type EventPublisher interface {
	PublishAsync(topic string, args ...interface{})
}

// Maintenance drives the self-update and relays its progress as system messages.
type Maintenance struct {
	updater SystemUpdater
	events  EventPublisher
	logger  Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewMaintenance wires the updater and event publisher.
func NewMaintenance(updater SystemUpdater, events EventPublisher, logger Logger) *Maintenance {
	return &Maintenance{updater: updater, events: events, logger: logger}
}

// UpdateSystem starts the update in the background. It reports false when an
// update is already running.
func (m *Maintenance) UpdateSystem(ctx context.Context) bool {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return false
	}
	m.running = true
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	m.publish("开始更新系统")
	go func() {
		defer func() {
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			close(done)
		}()
		err := m.updater.Run(context.WithoutCancel(ctx), m.publish)
		if err != nil {
			m.logger.Error("系统更新失败: %v", err)
			m.publish(err.Error())
			return
		}
		m.logger.Info("系统更新命令已结束")
	}()
	return true
}

// Wait blocks until the running update, if any, finishes.
func (m *Maintenance) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (m *Maintenance) publish(line string) {
	m.events.PublishAsync(eventbus.EventSystemMessage, eventbus.SystemMessageData{
		Type:    eventbus.MessageUpdateSystemVersion,
		Message: utils.RemoveControlCharacters(line),
	})
}
