package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type fakeLifecycle struct {
	mu           sync.Mutex
	advanceCalls int
	cancelCalls  int
	cancellable  bool
	advanceErr   error
	cancelErr    error
}

func (l *fakeLifecycle) AdvanceToNew(_ context.Context, order Order) (Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advanceCalls++
	if l.advanceErr != nil {
		return Order{}, l.advanceErr
	}
	if err := order.TransitionTo(OrderStatusNew, time.Now().UTC()); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (l *fakeLifecycle) Cancel(_ context.Context, order Order) (Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelCalls++
	if l.cancelErr != nil {
		return Order{}, l.cancelErr
	}
	if err := order.TransitionTo(OrderStatusCanceled, time.Now().UTC()); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (l *fakeLifecycle) IsCancellable(Order) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancellable
}

func (l *fakeLifecycle) advances() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.advanceCalls
}

func (l *fakeLifecycle) cancels() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelCalls
}

type memoryOrderRepo struct {
	mu      sync.Mutex
	saves   []Order
	saveErr error
}

func (r *memoryOrderRepo) Save(_ context.Context, order Order) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return Order{}, r.saveErr
	}
	r.saves = append(r.saves, order)
	return order, nil
}

func (r *memoryOrderRepo) saved() []Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Order, len(r.saves))
	copy(out, r.saves)
	return out
}

func (r *memoryOrderRepo) last() (Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saves) == 0 {
		return Order{}, false
	}
	return r.saves[len(r.saves)-1], true
}

type memoryHistoryLog struct {
	mu        sync.Mutex
	entries   []HistoryEntry
	appendErr error
}

func (h *memoryHistoryLog) Append(_ context.Context, entry HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.appendErr != nil {
		return h.appendErr
	}
	h.entries = append(h.entries, entry)
	return nil
}

func (h *memoryHistoryLog) all() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

type fakeVault struct {
	mu        sync.Mutex
	recorded  []RecurringDetails
	recordErr error
}

func (v *fakeVault) RecordRecurringDetails(_ context.Context, _ Order, details RecurringDetails) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.recordErr != nil {
		return v.recordErr
	}
	v.recorded = append(v.recorded, details)
	return nil
}

func (v *fakeVault) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.recorded)
}

type fakeTransientState struct {
	mu       sync.Mutex
	cleared  []string
	clearErr error
}

func (s *fakeTransientState) Clear(_ context.Context, quoteID string, _ ResultCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	s.cleared = append(s.cleared, quoteID)
	return nil
}

func (s *fakeTransientState) clearedQuotes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cleared))
	copy(out, s.cleared)
	return out
}

type fakeQuoteDisabler struct {
	mu         sync.Mutex
	disabled   []string
	disableErr error
}

func (q *fakeQuoteDisabler) DisableQuote(_ context.Context, quoteID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.disableErr != nil {
		return q.disableErr
	}
	q.disabled = append(q.disabled, quoteID)
	return nil
}

func (q *fakeQuoteDisabler) disabledQuotes() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.disabled))
	copy(out, q.disabled)
	return out
}

type memoryPaymentEventStore struct {
	mu        sync.Mutex
	next      int
	events    []PaymentEvent
	appendErr error
}

func (s *memoryPaymentEventStore) Append(_ context.Context, event PaymentEvent) (PaymentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return PaymentEvent{}, s.appendErr
	}
	s.next++
	event.ID = fmt.Sprintf("event_%d", s.next)
	s.events = append(s.events, event)
	return event, nil
}

func (s *memoryPaymentEventStore) List(_ context.Context, filter PaymentEventFilter) (PaymentEventPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]PaymentEvent, 0, len(s.events))
	for _, event := range s.events {
		if strings.TrimSpace(filter.IncrementID) != "" && event.IncrementID != filter.IncrementID {
			continue
		}
		if strings.TrimSpace(filter.PSPReference) != "" && event.PSPReference != filter.PSPReference {
			continue
		}
		matched = append(matched, event)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 25
	}
	start := (page - 1) * perPage
	if start > len(matched) {
		start = len(matched)
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}
	return PaymentEventPage{
		Items:   matched[start:end],
		Total:   len(matched),
		Page:    page,
		PerPage: perPage,
	}, nil
}

func (s *memoryPaymentEventStore) all() []PaymentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PaymentEvent, len(s.events))
	copy(out, s.events)
	return out
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type recordingMetrics struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		counters:   map[string]int64{},
		histograms: map[string]int{},
	}
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

func (m *recordingMetrics) ObserveHistogram(_ context.Context, name string, _ float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[name]++
}

func (m *recordingMetrics) counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func newTestProcessor() (*Processor, *fakeLifecycle, *memoryOrderRepo, *memoryHistoryLog) {
	lifecycle := &fakeLifecycle{cancellable: true}
	orders := &memoryOrderRepo{}
	history := &memoryHistoryLog{}
	processor := &Processor{
		Lifecycle: lifecycle,
		Orders:    orders,
		History:   history,
		Methods:   DefaultMethodRegistry(),
		Logger:    stubLogger{},
	}
	return processor, lifecycle, orders, history
}

func pendingPaymentOrder() Order {
	return Order{
		ID:          "order_1",
		IncrementID: "100000017",
		QuoteID:     "quote_9",
		Status:      OrderStatusPendingPayment,
		CreatedAt:   time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC),
	}
}
