package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// AsyncEventBus 带固定 worker 池的事件总线
type AsyncEventBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	idle      *sync.Cond
	pending   int
	stopped   bool
	startOnce sync.Once
	stopOnce  sync.Once
	onDrop    func(topic string)
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// NewAsyncEventBus 创建异步事件总线
func NewAsyncEventBus(workerNum int) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = 4
	}

	aeb := &AsyncEventBus{
		bus:       New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, 256),
		stopChan:  make(chan struct{}),
	}
	aeb.idle = sync.NewCond(&aeb.mu)
	return aeb
}

// OnDrop registers a callback invoked when an event is discarded, either
// because the queue is full or because the bus is stopped.
func (aeb *AsyncEventBus) OnDrop(fn func(topic string)) {
	aeb.onDrop = fn
}

// Start 启动异步处理
func (aeb *AsyncEventBus) Start() {
	aeb.startOnce.Do(func() {
		for i := 0; i < aeb.workerNum; i++ {
			aeb.wg.Add(1)
			go aeb.worker()
		}
	})
}

// Stop 停止异步处理，已排队的事件会被丢弃
func (aeb *AsyncEventBus) Stop() {
	aeb.stopOnce.Do(func() {
		aeb.mu.Lock()
		aeb.stopped = true
		aeb.mu.Unlock()

		close(aeb.stopChan)
		aeb.wg.Wait()

		for {
			select {
			case event := <-aeb.workChan:
				aeb.done()
				aeb.drop(event.topic)
			default:
				return
			}
		}
	})
}

func (aeb *AsyncEventBus) done() {
	aeb.mu.Lock()
	aeb.pending--
	if aeb.pending == 0 {
		aeb.idle.Broadcast()
	}
	aeb.mu.Unlock()
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for {
		select {
		case <-aeb.stopChan:
			return
		case event := <-aeb.workChan:
			aeb.dispatch(event)
		}
	}
}

func (aeb *AsyncEventBus) dispatch(event asyncEvent) {
	defer aeb.done()
	defer func() {
		// a panicking subscriber must not take the worker down
		_ = recover()
	}()
	aeb.bus.Publish(event.topic, event.args...)
}

// Publish 同步发布事件
func (aeb *AsyncEventBus) Publish(topic string, args ...interface{}) {
	aeb.bus.Publish(topic, args...)
}

// PublishAsync 异步发布事件，队列满或已停止时丢弃
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...interface{}) {
	aeb.mu.Lock()
	if aeb.stopped {
		aeb.mu.Unlock()
		aeb.drop(topic)
		return
	}
	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
		aeb.pending++
		aeb.mu.Unlock()
	default:
		aeb.mu.Unlock()
		aeb.drop(topic)
	}
}

func (aeb *AsyncEventBus) drop(topic string) {
	if aeb.onDrop != nil {
		aeb.onDrop(topic)
	}
}

// Subscribe 订阅事件
func (aeb *AsyncEventBus) Subscribe(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

// Unsubscribe 取消订阅
func (aeb *AsyncEventBus) Unsubscribe(topic string, handler interface{}) error {
	return aeb.bus.Unsubscribe(topic, handler)
}

// HasCallback 检查是否有订阅者
func (aeb *AsyncEventBus) HasCallback(topic string) bool {
	return aeb.bus.HasCallback(topic)
}

// WaitAsync blocks until every queued event has been delivered or discarded.
func (aeb *AsyncEventBus) WaitAsync() {
	aeb.mu.Lock()
	for aeb.pending > 0 {
		aeb.idle.Wait()
	}
	aeb.mu.Unlock()
}
