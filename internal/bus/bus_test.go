package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishDispatchesToAllSubscribers(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var got []int

	b.Subscribe(EventRawFrame, func(payload any) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, payload.(int))
	})
	b.Subscribe(EventRawFrame, func(payload any) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, payload.(int)*10)
	})

	b.Publish(EventRawFrame, 3)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int{3, 30}, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	called := false
	unsub := b.Subscribe(EventProcessedData, func(any) { called = true })
	unsub()

	b.Publish(EventProcessedData, struct{}{})
	assert.False(t, called)
}

func TestPublishIsolatedByEventType(t *testing.T) {
	b := New()
	var rawCount, processedCount int
	b.Subscribe(EventRawFrame, func(any) { rawCount++ })
	b.Subscribe(EventProcessedData, func(any) { processedCount++ })

	b.Publish(EventRawFrame, nil)

	assert.Equal(t, 1, rawCount)
	assert.Equal(t, 0, processedCount)
}

func TestPanickingHandlerDoesNotPreventLaterSubscribersFromRunning(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var secondCalled bool

	b.Subscribe(EventRawFrame, func(any) {
		panic("boom")
	})
	b.Subscribe(EventRawFrame, func(any) {
		mu.Lock()
		defer mu.Unlock()
		secondCalled = true
	})

	assert.NotPanics(t, func() {
		b.Publish(EventRawFrame, nil)
	})

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, secondCalled)
}

func TestSubscribeDuringPublishDoesNotDeadlockOrApplyMidDispatch(t *testing.T) {
	b := New()
	var secondCalled bool
	b.Subscribe(EventRawFrame, func(any) {
		b.Subscribe(EventRawFrame, func(any) { secondCalled = true })
	})

	b.Publish(EventRawFrame, nil)
	assert.False(t, secondCalled)

	b.Publish(EventRawFrame, nil)
	assert.True(t, secondCalled)
}
