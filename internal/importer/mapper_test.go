package importer

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vetfieldhq/vetfield/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestBuildVaccinationRecord(t *testing.T) {
	now := time.Date(2025, time.October, 5, 9, 0, 0, 0, time.UTC)
	builder := NewRecordBuilder(DefaultPhoneProfile(), false).WithClock(fixedClock(now))
	table := VaccinationAliases()
	clientID := uuid.New()
	actor := uuid.New()

	fields := map[string]string{
		FieldSerialNo:                       "1250",
		FieldDate:                           "1-Sep",
		FieldLatitude:                       "26.32556",
		FieldLongitude:                      "43.97389",
		FieldSupervisor:                     "Dr. Khalid",
		FieldVehicleNo:                      "V-104",
		FieldVaccineType:                    "HS",
		FieldVaccineCategory:                "Preventive",
		HerdFieldKey("sheep", "Total"):      "15",
		HerdFieldKey("sheep", "Treated"):    "12",
		HerdFieldKey("goats", "Young"):      "4",
		FieldRequestSituation:               "OPEN",
	}

	record, err := builder.Build(table, fields, clientID, actor)
	if err != nil {
		t.Fatalf("build returned error: %v", err)
	}
	vaccination, ok := record.(*domain.VaccinationRecord)
	if !ok {
		t.Fatalf("expected a vaccination record, got %T", record)
	}

	base := record.Base()
	if base.Serial != "1250" || base.ClientID != clientID || base.CreatedBy != actor {
		t.Fatalf("unexpected base: %+v", base)
	}
	wantDate := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	if !base.VisitDate.Equal(wantDate) {
		t.Fatalf("visit date = %s, want %s", base.VisitDate, wantDate)
	}
	if base.Location.IsZero() || base.Location.Latitude != 26.32556 {
		t.Fatalf("unexpected location: %+v", base.Location)
	}
	if base.Herd.Sheep.Total != 15 || base.Herd.Sheep.Treated != 12 || base.Herd.Goats.Young != 4 {
		t.Fatalf("unexpected herd: %+v", base.Herd)
	}
	if base.Herd.Camel.Total != 0 {
		t.Fatalf("absent species should stay zero: %+v", base.Herd.Camel)
	}
	// No request date in the row: it tracks the visit date.
	if !base.Request.Date.Equal(wantDate) {
		t.Fatalf("request date = %s, want visit date %s", base.Request.Date, wantDate)
	}
	if base.Request.Situation != domain.RequestSituationOpen {
		t.Fatalf("expected open situation, got %q", base.Request.Situation)
	}
	if vaccination.VaccineType != "HS" || vaccination.VaccineCategory != "Preventive" {
		t.Fatalf("unexpected variant fields: %+v", vaccination)
	}
}

func TestBuildDefaultsVisitDateToYesterday(t *testing.T) {
	now := time.Date(2025, time.October, 5, 9, 0, 0, 0, time.UTC)
	builder := NewRecordBuilder(DefaultPhoneProfile(), false).WithClock(fixedClock(now))

	record, err := builder.Build(VaccinationAliases(), map[string]string{FieldSerialNo: "1"}, uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("build returned error: %v", err)
	}
	want := now.AddDate(0, 0, -1)
	if !record.Base().VisitDate.Equal(want) {
		t.Fatalf("visit date = %s, want yesterday %s", record.Base().VisitDate, want)
	}
	if record.Base().Request.Situation != domain.RequestSituationClosed {
		t.Fatalf("expected default closed situation, got %q", record.Base().Request.Situation)
	}
	if !record.Base().Location.IsZero() {
		t.Fatalf("expected no-fix location sentinel, got %+v", record.Base().Location)
	}
}

func TestBuildRequiresSerial(t *testing.T) {
	builder := NewRecordBuilder(DefaultPhoneProfile(), false)

	_, err := builder.Build(LaboratoryAliases(), map[string]string{FieldDate: "2025-03-02"}, uuid.New(), uuid.New())
	if err == nil {
		t.Fatalf("expected error for missing sample code")
	}
	if !strings.Contains(err.Error(), FieldSampleCode) {
		t.Fatalf("error should name the serial field, got %q", err.Error())
	}
}

func TestBuildStrictModeRejectsUnparseableValues(t *testing.T) {
	now := time.Date(2025, time.October, 5, 9, 0, 0, 0, time.UTC)
	fields := map[string]string{
		FieldSerialNo:                  "1250",
		FieldDate:                      "not-a-date",
		HerdFieldKey("sheep", "Total"): "many",
	}

	lenient := NewRecordBuilder(DefaultPhoneProfile(), false).WithClock(fixedClock(now))
	record, err := lenient.Build(VaccinationAliases(), fields, uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("lenient build returned error: %v", err)
	}
	if !record.Base().VisitDate.Equal(now.AddDate(0, 0, -1)) {
		t.Fatalf("lenient build should default the unparseable date")
	}
	if record.Base().Herd.Sheep.Total != 0 {
		t.Fatalf("lenient build should default the unparseable count")
	}

	strict := NewRecordBuilder(DefaultPhoneProfile(), true).WithClock(fixedClock(now))
	_, err = strict.Build(VaccinationAliases(), fields, uuid.New(), uuid.New())
	if err == nil {
		t.Fatalf("strict build should reject unparseable values")
	}
	if !strings.Contains(err.Error(), FieldDate) || !strings.Contains(err.Error(), HerdFieldKey("sheep", "Total")) {
		t.Fatalf("strict error should name every offending field, got %q", err.Error())
	}
}

func TestClientFieldsNormalizesPhoneAndBirthDate(t *testing.T) {
	now := time.Date(2025, time.October, 5, 9, 0, 0, 0, time.UTC)
	builder := NewRecordBuilder(DefaultPhoneProfile(), false).WithClock(fixedClock(now))

	fields := builder.ClientFields(map[string]string{
		FieldOwnerName: " Ahmed Al Harbi ",
		FieldOwnerID:   "1078519442",
		FieldPhone:     "0533871699",
		FieldBirthDate: "01/07/1968",
	})
	if fields.Name != "Ahmed Al Harbi" {
		t.Fatalf("expected trimmed name, got %q", fields.Name)
	}
	if fields.Phone != "+966533871699" {
		t.Fatalf("expected normalized phone, got %q", fields.Phone)
	}
	if fields.BirthDate == nil || fields.BirthDate.Year() != 1968 {
		t.Fatalf("expected parsed birth date, got %+v", fields.BirthDate)
	}

	// An unparseable birth date is dropped, never defaulted.
	fields = builder.ClientFields(map[string]string{FieldBirthDate: "unknown"})
	if fields.BirthDate != nil {
		t.Fatalf("expected unparseable birth date to be dropped, got %+v", fields.BirthDate)
	}
}
