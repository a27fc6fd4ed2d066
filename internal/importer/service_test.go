package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vetfieldhq/vetfield/internal/domain"
	"github.com/vetfieldhq/vetfield/internal/reconcile"
	"github.com/vetfieldhq/vetfield/internal/repository"
)

type stubClientRepo struct {
	clients []domain.Client
	updates int
}

func (s *stubClientRepo) FindOneByAny(ctx context.Context, lookup repository.ClientLookup) (domain.Client, error) {
	for _, client := range s.clients {
		if (lookup.Name != "" && client.Name == lookup.Name) ||
			(lookup.NationalID != "" && client.NationalID == lookup.NationalID) ||
			(lookup.Phone != "" && client.Phone == lookup.Phone) ||
			(lookup.Village != "" && client.Village == lookup.Village) {
			return client, nil
		}
	}
	return domain.Client{}, repository.ErrNotFound
}

func (s *stubClientRepo) FindOneByNationalID(ctx context.Context, nationalID string) (domain.Client, error) {
	for _, client := range s.clients {
		if client.NationalID == nationalID {
			return client, nil
		}
	}
	return domain.Client{}, repository.ErrNotFound
}

func (s *stubClientRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	for _, client := range s.clients {
		if client.ID == id {
			return client, nil
		}
	}
	return domain.Client{}, repository.ErrNotFound
}

func (s *stubClientRepo) Insert(ctx context.Context, client domain.Client) error {
	s.clients = append(s.clients, client)
	return nil
}

func (s *stubClientRepo) Update(ctx context.Context, client domain.Client) error {
	for i, existing := range s.clients {
		if existing.ID == client.ID {
			s.clients[i] = client
			s.updates++
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *stubClientRepo) CountByNationalID(ctx context.Context, nationalID string) (int64, error) {
	var count int64
	for _, client := range s.clients {
		if client.NationalID == nationalID {
			count++
		}
	}
	return count, nil
}

type stubVisitRepo struct {
	inserted  []domain.CanonicalRecord
	visits    []domain.Visit
	failOn    string
	duplicate string
}

func (s *stubVisitRepo) Insert(ctx context.Context, record domain.CanonicalRecord) error {
	if s.failOn != "" && record.Base().Serial == s.failOn {
		return errors.New("storage rejected the record")
	}
	s.inserted = append(s.inserted, record)
	return nil
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
	if s.duplicate != "" && serial == s.duplicate {
		return 1, nil
	}
	for _, record := range s.inserted {
		if record.RecordType() == recordType && record.Base().Serial == serial {
			return 1, nil
		}
	}
	return 0, nil
}

func (s *stubVisitRepo) ListByType(ctx context.Context, recordType domain.RecordType, limit, offset int) ([]domain.Visit, int, error) {
	return []domain.Visit{}, len(s.inserted), nil
}

type stubImportLogRepo struct {
	runs []domain.ImportRun
}

func (s *stubImportLogRepo) Record(ctx context.Context, run domain.ImportRun) error {
	s.runs = append(s.runs, run)
	return nil
}

func (s *stubImportLogRepo) List(ctx context.Context, recordType *domain.RecordType, limit, offset int) ([]domain.ImportRun, error) {
	return append([]domain.ImportRun(nil), s.runs...), nil
}

var _ repository.ClientRepository = (*stubClientRepo)(nil)
var _ repository.VisitRepository = (*stubVisitRepo)(nil)
var _ repository.ImportLogRepository = (*stubImportLogRepo)(nil)

func newTestService(visits *stubVisitRepo, clients *stubClientRepo, logs *stubImportLogRepo) *Service {
	builder := NewRecordBuilder(DefaultPhoneProfile(), false)
	reconciler := reconcile.NewService(clients)
	return NewService(NewTables(), builder, reconciler, visits, logs)
}

func vaccinationCSV(rows []string) []byte {
	lines := append([]string{"Serial No,Date,Owner Name,ID,Phone,Village"}, rows...)
	return []byte(strings.Join(lines, "\n") + "\n")
}

func TestImportPersistsEveryValidRow(t *testing.T) {
	visits := &stubVisitRepo{}
	clients := &stubClientRepo{}
	logs := &stubImportLogRepo{}
	service := newTestService(visits, clients, logs)

	payload := vaccinationCSV([]string{
		"1250,2025-03-01,Ahmed Al Harbi,1078519442,0533871699,Uyun Al Jiwa",
		"1251,2025-03-01,Saleh Al Qahtani,1044873321,0544781202,Al Bukayriyah",
	})

	result, err := service.Import(context.Background(), Request{
		RecordType: domain.RecordTypeVaccination,
		FileName:   "batch.csv",
		Payload:    payload,
		Actor:      uuid.New(),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if !result.Success || result.TotalRows != 2 || result.SuccessCount != 2 || result.ErrorCount != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.CreatedRecordIDs) != 2 {
		t.Fatalf("expected 2 created record IDs, got %d", len(result.CreatedRecordIDs))
	}
	if len(visits.inserted) != 2 {
		t.Fatalf("expected 2 visits persisted, got %d", len(visits.inserted))
	}
	if len(clients.clients) != 2 {
		t.Fatalf("expected 2 clients created, got %d", len(clients.clients))
	}
	if len(logs.runs) != 1 {
		t.Fatalf("expected 1 batch summary recorded, got %d", len(logs.runs))
	}
	if logs.runs[0].SuccessRows != 2 || logs.runs[0].ErrorRows != 0 {
		t.Fatalf("unexpected batch summary: %+v", logs.runs[0])
	}
}

func TestImportIsolatesFailedRows(t *testing.T) {
	visits := &stubVisitRepo{}
	clients := &stubClientRepo{}
	logs := &stubImportLogRepo{}
	service := newTestService(visits, clients, logs)

	// Row 3 has no serial and must fail without touching its neighbours.
	payload := vaccinationCSV([]string{
		"1250,2025-03-01,Ahmed Al Harbi,1078519442,0533871699,Uyun Al Jiwa",
		"1251,2025-03-01,Saleh Al Qahtani,1044873321,0544781202,Al Bukayriyah",
		",2025-03-01,Majid Al Otaibi,1099213345,0551930218,Riyadh Al Khabra",
		"1253,2025-03-01,Nasser Al Dossary,1023881174,0568210443,Al Badai",
		"1254,2025-03-01,Fahad Al Mutairi,1061447920,0530118876,Uyun Al Jiwa",
	})

	result, err := service.Import(context.Background(), Request{
		RecordType: domain.RecordTypeVaccination,
		FileName:   "batch.csv",
		Payload:    payload,
		Actor:      uuid.New(),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if result.Success {
		t.Fatalf("batch with a failed row must not report success")
	}
	if result.TotalRows != 5 || result.SuccessCount != 4 || result.ErrorCount != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if result.SuccessCount+result.ErrorCount != result.TotalRows {
		t.Fatalf("counts do not add up: %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].Row != 3 {
		t.Fatalf("expected a single error on row 3, got %+v", result.Errors)
	}
	if len(visits.inserted) != 4 {
		t.Fatalf("expected 4 visits persisted, got %d", len(visits.inserted))
	}
}

func TestImportRejectsDuplicateSerials(t *testing.T) {
	visits := &stubVisitRepo{duplicate: "1250"}
	clients := &stubClientRepo{}
	service := newTestService(visits, clients, &stubImportLogRepo{})

	payload := vaccinationCSV([]string{
		"1250,2025-03-01,Ahmed Al Harbi,1078519442,0533871699,Uyun Al Jiwa",
	})

	result, err := service.Import(context.Background(), Request{
		RecordType: domain.RecordTypeVaccination,
		FileName:   "batch.csv",
		Payload:    payload,
		Actor:      uuid.New(),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if result.ErrorCount != 1 || len(result.Errors) != 1 {
		t.Fatalf("expected one duplicate error, got %+v", result)
	}
	if result.Errors[0].Field != FieldSerialNo {
		t.Fatalf("duplicate error should name the serial field, got %q", result.Errors[0].Field)
	}
	if !strings.Contains(result.Errors[0].Message, "duplicate") {
		t.Fatalf("unexpected message: %q", result.Errors[0].Message)
	}
}

func TestImportSameBatchSerialsCollide(t *testing.T) {
	visits := &stubVisitRepo{}
	clients := &stubClientRepo{}
	service := newTestService(visits, clients, &stubImportLogRepo{})

	payload := vaccinationCSV([]string{
		"1250,2025-03-01,Ahmed Al Harbi,1078519442,0533871699,Uyun Al Jiwa",
		"1250,2025-03-02,Ahmed Al Harbi,1078519442,0533871699,Uyun Al Jiwa",
	})

	result, err := service.Import(context.Background(), Request{
		RecordType: domain.RecordTypeVaccination,
		FileName:   "batch.csv",
		Payload:    payload,
		Actor:      uuid.New(),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if result.SuccessCount != 1 || result.ErrorCount != 1 {
		t.Fatalf("second occurrence of a serial must fail: %+v", result)
	}
}

func TestImportDecodeFailureIsBatchFatal(t *testing.T) {
	visits := &stubVisitRepo{}
	logs := &stubImportLogRepo{}
	service := newTestService(visits, &stubClientRepo{}, logs)

	_, err := service.Import(context.Background(), Request{
		RecordType: domain.RecordTypeVaccination,
		FileName:   "batch.pdf",
		Payload:    []byte("junk"),
		Actor:      uuid.New(),
	})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if len(visits.inserted) != 0 {
		t.Fatalf("nothing should be persisted on a batch-fatal failure")
	}
	if len(logs.runs) != 0 {
		t.Fatalf("no summary should be recorded on a batch-fatal failure")
	}
}

func TestImportUnknownRecordTypeIsBatchFatal(t *testing.T) {
	service := newTestService(&stubVisitRepo{}, &stubClientRepo{}, &stubImportLogRepo{})

	_, err := service.Import(context.Background(), Request{
		RecordType: domain.RecordType("necropsy"),
		FileName:   "batch.csv",
		Payload:    vaccinationCSV(nil),
	})
	if !errors.Is(err, domain.ErrUnknownRecordType) {
		t.Fatalf("expected ErrUnknownRecordType, got %v", err)
	}
}

func TestImportEmptyBatchSucceeds(t *testing.T) {
	service := newTestService(&stubVisitRepo{}, &stubClientRepo{}, &stubImportLogRepo{})

	result, err := service.Import(context.Background(), Request{
		RecordType: domain.RecordTypeVaccination,
		FileName:   "batch.csv",
		Payload:    vaccinationCSV(nil),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if !result.Success || result.TotalRows != 0 {
		t.Fatalf("an empty batch is a successful batch: %+v", result)
	}
}

func TestImportReusesExistingClient(t *testing.T) {
	visits := &stubVisitRepo{}
	clients := &stubClientRepo{}
	service := newTestService(visits, clients, &stubImportLogRepo{})

	payload := vaccinationCSV([]string{
		"1250,2025-03-01,Ahmed Al Harbi,1078519442,0533871699,Uyun Al Jiwa",
		"1251,2025-03-02,Ahmed Al Harbi,1078519442,0533871699,Uyun Al Jiwa",
	})

	result, err := service.Import(context.Background(), Request{
		RecordType: domain.RecordTypeVaccination,
		FileName:   "batch.csv",
		Payload:    payload,
		Actor:      uuid.New(),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if result.SuccessCount != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(clients.clients) != 1 {
		t.Fatalf("expected the second row to reuse the client, got %d clients", len(clients.clients))
	}
	for _, record := range visits.inserted {
		if record.Base().ClientID != clients.clients[0].ID {
			t.Fatalf("visit not linked to the reconciled client")
		}
	}
}

func TestBatchIDShape(t *testing.T) {
	at := time.Date(2025, time.March, 18, 10, 30, 0, 0, time.UTC)
	got := BatchID("webhook", at, domain.RecordTypeParasiteControl)
	want := fmt.Sprintf("webhook_%d_parasitecontrol", at.Unix())
	if got != want {
		t.Fatalf("BatchID = %q, want %q", got, want)
	}
}
