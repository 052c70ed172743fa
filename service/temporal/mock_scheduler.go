package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	interval  time.Duration
	input     ReconcileTransfersInput
	created   bool
	createErr error
	deleteErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// CreateReconcileSchedule records that the schedule was created.
func (m *MockScheduler) CreateReconcileSchedule(ctx context.Context, interval time.Duration, input ReconcileTransfersInput) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = true
	m.interval = interval
	m.input = input
	return nil
}

// DeleteReconcileSchedule records that the schedule was deleted.
func (m *MockScheduler) DeleteReconcileSchedule(ctx context.Context) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		return fmt.Errorf("schedule %q not found", reconcileScheduleID)
	}
	m.created = false
	return nil
}

// SetCreateError makes CreateReconcileSchedule return an error.
func (m *MockScheduler) SetCreateError(err error) {
	m.createErr = err
}

// SetDeleteError makes DeleteReconcileSchedule return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.deleteErr = err
}

// ScheduleExists reports whether the schedule is currently created.
func (m *MockScheduler) ScheduleExists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

// GetScheduleInterval returns the interval of the created schedule.
func (m *MockScheduler) GetScheduleInterval() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval, m.created
}

// Reset clears the schedule and errors.
func (m *MockScheduler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = false
	m.interval = 0
	m.input = ReconcileTransfersInput{}
	m.createErr = nil
	m.deleteErr = nil
}
