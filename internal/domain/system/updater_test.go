package system

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panel-server-go/internal/domain/eventbus"
)

type collectingPublisher struct {
	mu       sync.Mutex
	messages []eventbus.SystemMessageData
}

func (p *collectingPublisher) PublishAsync(topic string, args ...interface{}) {
	if topic != eventbus.EventSystemMessage {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, args[0].(eventbus.SystemMessageData))
}

func (p *collectingPublisher) lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, m.Message)
	}
	return out
}

type scriptedUpdater struct {
	lines   []string
	err     error
	release chan struct{}
}

func (u scriptedUpdater) Run(_ context.Context, emit func(string)) error {
	if u.release != nil {
		<-u.release
	}
	for _, l := range u.lines {
		emit(l)
	}
	return u.err
}

func TestMaintenance_RelaysOutput(t *testing.T) {
	pub := &collectingPublisher{}
	m := NewMaintenance(scriptedUpdater{lines: []string{"pulling", "done"}}, pub, nopLogger{})

	require.True(t, m.UpdateSystem(context.Background()))
	m.Wait()

	assert.Equal(t, []string{"开始更新系统", "pulling", "done"}, pub.lines())
	for _, msg := range pub.messages {
		assert.Equal(t, eventbus.MessageUpdateSystemVersion, msg.Type)
	}
}

func TestMaintenance_StripsControlCharacters(t *testing.T) {
	pub := &collectingPublisher{}
	m := NewMaintenance(scriptedUpdater{lines: []string{"\x1b[32m拉取完成\x07", "a\tb"}}, pub, nopLogger{})

	require.True(t, m.UpdateSystem(context.Background()))
	m.Wait()

	assert.Equal(t, []string{"开始更新系统", "[32m拉取完成", "a\tb"}, pub.lines())
}

func TestMaintenance_ReportsFailureAndRejectsOverlap(t *testing.T) {
	pub := &collectingPublisher{}
	release := make(chan struct{})
	m := NewMaintenance(scriptedUpdater{err: errors.New("exit status 1"), release: release}, pub, nopLogger{})

	require.True(t, m.UpdateSystem(context.Background()))
	assert.False(t, m.UpdateSystem(context.Background()), "second update while running")
	close(release)
	m.Wait()

	assert.Equal(t, []string{"开始更新系统", "exit status 1"}, pub.lines())
	require.True(t, m.UpdateSystem(context.Background()), "finished update can be restarted")
	m.Wait()
}

func TestCommandUpdater_StreamsBothPipes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	u := CommandUpdater{Command: []string{"/bin/sh", "-c", "echo out; echo err 1>&2"}}

	var mu sync.Mutex
	var lines []string
	err := u.Run(context.Background(), func(l string) {
		mu.Lock()
		lines = append(lines, l)
		mu.Unlock()
	})
	require.NoError(t, err)
	sort.Strings(lines)
	assert.Equal(t, []string{"err", "out"}, lines)

	assert.Error(t, CommandUpdater{}.Run(context.Background(), func(string) {}))
	assert.Error(t, CommandUpdater{Command: []string{"/bin/sh", "-c", "exit 3"}}.Run(context.Background(), func(string) {}))
}
