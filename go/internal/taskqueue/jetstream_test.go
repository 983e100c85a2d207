package taskqueue

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
)

type progressMsg struct {
	jetstream.Msg
	progress atomic.Int32
}

func (m *progressMsg) InProgress() error {
	m.progress.Add(1)
	return nil
}

func (m *progressMsg) Subject() string { return "hooks.deliveries.default" }

func TestKeepInProgressExtendsAckDeadline(t *testing.T) {
	q := &JetStreamQueue{config: JetStreamConfig{AckWait: 40 * time.Millisecond}}
	msg := &progressMsg{}

	stop := q.keepInProgress(msg)
	assert.Eventually(t, func() bool { return msg.progress.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	stop()

	after := msg.progress.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, after, msg.progress.Load())
}

func TestKeepInProgressWithoutAckWait(t *testing.T) {
	q := &JetStreamQueue{}
	msg := &progressMsg{}

	stop := q.keepInProgress(msg)
	time.Sleep(20 * time.Millisecond)
	stop()
	assert.Zero(t, msg.progress.Load())
}
