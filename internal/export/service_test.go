package export

import (
	"context"
	"encoding/csv"
	"errors"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vetfieldhq/vetfield/internal/domain"
	"github.com/vetfieldhq/vetfield/internal/importer"
	"github.com/vetfieldhq/vetfield/internal/repository"
)

type stubVisitRepo struct {
	visits []domain.Visit
}

func (s *stubVisitRepo) Insert(ctx context.Context, record domain.CanonicalRecord) error {
	return errors.New("not implemented")
}

func (s *stubVisitRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Visit, error) {
	for _, visit := range s.visits {
		if visit.ID == id {
			return visit, nil
		}
	}
	return domain.Visit{}, repository.ErrNotFound
}

func (s *stubVisitRepo) CountBySerial(ctx context.Context, recordType domain.RecordType, serial string) (int64, error) {
	return 0, nil
}

func (s *stubVisitRepo) ListByType(ctx context.Context, recordType domain.RecordType, limit, offset int) ([]domain.Visit, int, error) {
	matching := make([]domain.Visit, 0, len(s.visits))
	for _, visit := range s.visits {
		if visit.Type == recordType {
			matching = append(matching, visit)
		}
	}
	total := len(matching)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matching[offset:end], total, nil
}

type stubClientRepo struct {
	clients map[uuid.UUID]domain.Client
}

func (s *stubClientRepo) FindOneByAny(ctx context.Context, lookup repository.ClientLookup) (domain.Client, error) {
	return domain.Client{}, repository.ErrNotFound
}

func (s *stubClientRepo) FindOneByNationalID(ctx context.Context, nationalID string) (domain.Client, error) {
	return domain.Client{}, repository.ErrNotFound
}

func (s *stubClientRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	client, ok := s.clients[id]
	if !ok {
		return domain.Client{}, repository.ErrNotFound
	}
	return client, nil
}

func (s *stubClientRepo) Insert(ctx context.Context, client domain.Client) error { return nil }
func (s *stubClientRepo) Update(ctx context.Context, client domain.Client) error { return nil }

func (s *stubClientRepo) CountByNationalID(ctx context.Context, nationalID string) (int64, error) {
	return 0, nil
}

// stubJobStore keeps jobs in memory and enforces the same status
// transitions the SQL store does. done is signalled once the job reaches
// a terminal state so tests can wait for the worker.
type stubJobStore struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]domain.ExportJob
	result repository.ExportResult

	done     chan struct{}
	doneOnce sync.Once
}

func newStubJobStore() *stubJobStore {
	return &stubJobStore{
		jobs: map[uuid.UUID]domain.ExportJob{},
		done: make(chan struct{}),
	}
}

func (s *stubJobStore) signal() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *stubJobStore) Create(ctx context.Context, job domain.ExportJob) (domain.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.Status = domain.ExportJobStatusPending
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	s.jobs[job.ID] = job
	return job, nil
}

func (s *stubJobStore) GetByID(ctx context.Context, id uuid.UUID) (domain.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ExportJob{}, repository.ErrNotFound
	}
	return job, nil
}

func (s *stubJobStore) List(ctx context.Context, statuses []domain.ExportJobStatus, limit, offset int) ([]domain.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := []domain.ExportJob{}
	for _, job := range s.jobs {
		for _, status := range statuses {
			if job.Status == status {
				jobs = append(jobs, job)
				break
			}
		}
	}
	return jobs, nil
}

func (s *stubJobStore) MarkRunning(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != domain.ExportJobStatusPending {
		return repository.ErrExportJobStatusConflict
	}
	job.Status = domain.ExportJobStatusRunning
	s.jobs[id] = job
	return nil
}

func (s *stubJobStore) MarkCompleted(ctx context.Context, id uuid.UUID, result repository.ExportResult) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || job.Status != domain.ExportJobStatusRunning {
		s.mu.Unlock()
		return repository.ErrExportJobStatusConflict
	}
	job.Status = domain.ExportJobStatusCompleted
	job.RowsExported = result.RowsExported
	job.BytesWritten = result.BytesWritten
	job.FilePath = result.FilePath
	job.FileMimeType = result.FileMimeType
	job.FileByteSize = result.FileByteSize
	s.jobs[id] = job
	s.result = result
	s.mu.Unlock()
	s.signal()
	return nil
}

func (s *stubJobStore) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	s.mu.Lock()
	if job, ok := s.jobs[id]; ok {
		if job.Status == domain.ExportJobStatusPending || job.Status == domain.ExportJobStatusRunning {
			job.Status = domain.ExportJobStatusFailed
			job.ErrorMessage = &message
			s.jobs[id] = job
		}
	}
	s.mu.Unlock()
	s.signal()
	return nil
}

func (s *stubJobStore) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || (job.Status != domain.ExportJobStatusPending && job.Status != domain.ExportJobStatusRunning) {
		s.mu.Unlock()
		return repository.ErrExportJobStatusConflict
	}
	job.Status = domain.ExportJobStatusCancelled
	job.ErrorMessage = &reason
	s.jobs[id] = job
	s.mu.Unlock()
	s.signal()
	return nil
}

func (s *stubJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, rowsExported int, bytesWritten int64, rowsRequested *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.RowsExported = rowsExported
		job.BytesWritten = bytesWritten
		if rowsRequested != nil {
			job.RowsRequested = *rowsRequested
		}
		s.jobs[id] = job
	}
	return nil
}

var (
	_ repository.VisitRepository     = (*stubVisitRepo)(nil)
	_ repository.ClientRepository    = (*stubClientRepo)(nil)
	_ repository.ExportJobRepository = (*stubJobStore)(nil)
)

func waitForTerminal(t *testing.T, store *stubJobStore) {
	t.Helper()
	select {
	case <-store.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("export worker did not finish in time")
	}
}

func newVisit(recordType domain.RecordType, serial string, clientID uuid.UUID) domain.Visit {
	return domain.Visit{
		VisitBase: domain.VisitBase{
			ID:        uuid.New(),
			Type:      recordType,
			Serial:    serial,
			VisitDate: time.Date(2025, time.March, 18, 0, 0, 0, 0, time.UTC),
			ClientID:  clientID,
			Herd:      domain.Herd{Sheep: domain.HerdCount{Total: 15, Treated: 12}},
		},
		Details: map[string]any{},
	}
}

func TestQueueProducesSnapshot(t *testing.T) {
	clientID := uuid.New()
	clients := &stubClientRepo{clients: map[uuid.UUID]domain.Client{
		clientID: {
			ID:         clientID,
			Name:       "Ahmed Al Harbi",
			NationalID: "1078519442",
			Phone:      "+966533871699",
			Village:    "Uyun Al Jiwa",
		},
	}}
	orphanOwner := uuid.New()
	visits := &stubVisitRepo{visits: []domain.Visit{
		newVisit(domain.RecordTypeVaccination, "1250", clientID),
		newVisit(domain.RecordTypeVaccination, "1251", orphanOwner),
	}}
	store := newStubJobStore()
	tables := importer.NewTables()
	service := NewService(visits, clients, store, tables,
		WithExportDirectory(t.TempDir()),
		WithPageSize(1),
	)

	job, err := service.Queue(context.Background(), domain.RecordTypeVaccination, uuid.New())
	if err != nil {
		t.Fatalf("queue returned error: %v", err)
	}
	if job.Status != domain.ExportJobStatusPending || job.RowsRequested != 2 {
		t.Fatalf("unexpected queued job: %+v", job)
	}

	waitForTerminal(t, store)
	final, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("failed to reload job: %v", err)
	}
	if final.Status != domain.ExportJobStatusCompleted {
		t.Fatalf("expected completed job, got %s (error=%v)", final.Status, final.ErrorMessage)
	}
	if final.RowsExported != 2 || final.FilePath == nil {
		t.Fatalf("unexpected completion metadata: %+v", final)
	}

	file, err := os.Open(*final.FilePath)
	if err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse snapshot: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(rows))
	}

	table := tables[domain.RecordTypeVaccination]
	serialAliases, _ := table.Lookup(table.SerialField)
	header := rows[0]
	columnIndex := func(name string) int {
		for i, cell := range header {
			if cell == name {
				return i
			}
		}
		t.Fatalf("header %v is missing column %q", header, name)
		return -1
	}
	serialCol := columnIndex(serialAliases[0])
	if rows[1][serialCol] != "1250" || rows[2][serialCol] != "1251" {
		t.Fatalf("unexpected serial cells: %q %q", rows[1][serialCol], rows[2][serialCol])
	}

	ownerAliases, _ := table.Lookup(importer.FieldOwnerName)
	ownerCol := columnIndex(ownerAliases[0])
	if rows[1][ownerCol] != "Ahmed Al Harbi" {
		t.Fatalf("owner column should carry the reconciled client, got %q", rows[1][ownerCol])
	}
	// Orphaned client reference exports with blank owner cells.
	if rows[2][ownerCol] != "" {
		t.Fatalf("orphaned owner should export blank, got %q", rows[2][ownerCol])
	}

	dateAliases, _ := table.Lookup(importer.FieldDate)
	dateCol := columnIndex(dateAliases[0])
	if rows[1][dateCol] != "2025-03-18" {
		t.Fatalf("unexpected visit date cell: %q", rows[1][dateCol])
	}
}

func TestQueueRejectsUnknownRecordType(t *testing.T) {
	store := newStubJobStore()
	service := NewService(&stubVisitRepo{}, &stubClientRepo{}, store, importer.NewTables())

	_, err := service.Queue(context.Background(), domain.RecordType("necropsy"), uuid.New())
	if !errors.Is(err, domain.ErrUnknownRecordType) {
		t.Fatalf("expected unknown record type error, got %v", err)
	}
	if len(store.jobs) != 0 {
		t.Fatalf("no job should be persisted for an invalid type")
	}
}

func TestCancelJob(t *testing.T) {
	store := newStubJobStore()
	service := NewService(&stubVisitRepo{}, &stubClientRepo{}, store, importer.NewTables())

	pending, err := store.Create(context.Background(), domain.ExportJob{RecordType: domain.RecordTypeVaccination})
	if err != nil {
		t.Fatalf("failed to seed job: %v", err)
	}

	cancelled, err := service.CancelJob(context.Background(), pending.ID)
	if err != nil {
		t.Fatalf("cancel returned error: %v", err)
	}
	if cancelled.Status != domain.ExportJobStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	// A terminal job cannot be cancelled again.
	if _, err := service.CancelJob(context.Background(), pending.ID); err == nil {
		t.Fatalf("expected error when cancelling a terminal job")
	}

	if _, err := service.CancelJob(context.Background(), uuid.New()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for an unknown job, got %v", err)
	}
}

func TestBuildDownloadURL(t *testing.T) {
	service := NewService(&stubVisitRepo{}, &stubClientRepo{}, newStubJobStore(), importer.NewTables())

	pending := domain.ExportJob{ID: uuid.New(), Status: domain.ExportJobStatusPending}
	if link, err := service.BuildDownloadURL(pending); err != nil || link != nil {
		t.Fatalf("non-completed jobs must not get a link, got (%v, %v)", link, err)
	}

	path := "/tmp/vaccination-snapshot.csv"
	completed := domain.ExportJob{
		ID:       uuid.New(),
		Status:   domain.ExportJobStatusCompleted,
		FilePath: &path,
	}
	link, err := service.BuildDownloadURL(completed)
	if err != nil {
		t.Fatalf("build download URL returned error: %v", err)
	}
	if link == nil || !strings.HasPrefix(*link, "/api/exports/files/"+completed.ID.String()+"?") {
		t.Fatalf("unexpected link: %v", link)
	}

	parsed, err := url.Parse(*link)
	if err != nil {
		t.Fatalf("link is not a valid URL: %v", err)
	}
	token := parsed.Query().Get("token")
	if token == "" {
		t.Fatalf("link carries no token: %q", *link)
	}
	if err := service.ValidateDownloadToken(completed.ID, token); err != nil {
		t.Fatalf("issued token failed validation: %v", err)
	}
	if err := service.ValidateDownloadToken(uuid.New(), token); err == nil {
		t.Fatalf("token must be bound to its job")
	}
}

func TestDownloadSignerExpiry(t *testing.T) {
	signer := newDownloadSigner(time.Minute)
	jobID := uuid.New()
	issued := time.Date(2025, time.March, 18, 12, 0, 0, 0, time.UTC)

	token := signer.Sign(jobID, issued)
	if err := signer.Verify(jobID, token, issued.Add(30*time.Second)); err != nil {
		t.Fatalf("token should still be valid: %v", err)
	}
	if err := signer.Verify(jobID, token, issued.Add(2*time.Minute)); err == nil {
		t.Fatalf("token should have expired")
	}
	if err := signer.Verify(jobID, "not-a-token", issued); err == nil {
		t.Fatalf("garbage tokens must be rejected")
	}
	if err := signer.Verify(jobID, token+"x", issued); err == nil {
		t.Fatalf("tampered tokens must be rejected")
	}
}
