package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/legalpub/internal/model"
	"github.com/sells-group/legalpub/internal/store"
	"github.com/sells-group/legalpub/pkg/enrichment"
	"github.com/sells-group/legalpub/pkg/publications"
)

// --- Publications Mock ---

type mockPublications struct {
	mock.Mock
}

func (m *mockPublications) FetchPublications(ctx context.Context, q publications.Query) ([]publications.Item, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]publications.Item), args.Error(1)
}

func (m *mockPublications) RegisterSearchTerm(ctx context.Context, q publications.Query) error {
	return m.Called(ctx, q).Error(0)
}

func (m *mockPublications) RegisterOffice(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- Enrichment Mock ---

type mockEnrichment struct {
	mock.Mock
}

func (m *mockEnrichment) FetchProcess(ctx context.Context, number string) (*enrichment.Process, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*enrichment.Process), args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpsertLawyer(ctx context.Context, l *model.Lawyer) error {
	return m.Called(ctx, l).Error(0)
}

func (m *mockStore) UpsertProcesses(ctx context.Context, lawyerID string, procs []model.Process) (map[string]string, error) {
	args := m.Called(ctx, lawyerID, procs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *mockStore) UpsertClients(ctx context.Context, clients []model.Client) (map[string]string, error) {
	args := m.Called(ctx, clients)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *mockStore) LinkClients(ctx context.Context, links []store.Link) (int, error) {
	args := m.Called(ctx, links)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) UpsertPublication(ctx context.Context, lawyerID string, pub model.Publication, processID *string) error {
	return m.Called(ctx, lawyerID, pub, processID).Error(0)
}

func (m *mockStore) TrackAPICost(ctx context.Context, rec model.UsageRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockStore) Ping(ctx context.Context) error    { return m.Called(ctx).Error(0) }
func (m *mockStore) Close() error                      { return m.Called().Error(0) }

// --- Instrumented fetch ---

// peakFetch is a FetchFunc that sleeps and records the peak number of
// concurrent calls.
type peakFetch struct {
	delay    time.Duration
	payloads map[string]*model.EnrichmentPayload
	errs     map[string]error

	mu       sync.Mutex
	inFlight int
	peak     int
	calls    []string
}

func (f *peakFetch) fetch(ctx context.Context, number string) (*model.EnrichmentPayload, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.calls = append(f.calls, number)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[number]; err != nil {
		return nil, err
	}
	return f.payloads[number], nil
}

func (f *peakFetch) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

func (f *peakFetch) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func testLawyer() model.Lawyer {
	return model.Lawyer{OABNumber: "123456", UF: "SP", Name: "Maria Souza", Active: true}
}
