package importer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vetfieldhq/vetfield/internal/domain"
)

// RecordBuilder assembles canonical visit records from resolved fields.
// Coercion failures normally fall back to policy defaults; in strict mode
// every value that would have defaulted fails the row instead, so
// operators can audit data quality without changing import behavior.
type RecordBuilder struct {
	profile PhoneProfile
	strict  bool
	now     func() time.Time
}

// NewRecordBuilder creates a builder with the given phone numbering
// profile and coercion policy.
func NewRecordBuilder(profile PhoneProfile, strict bool) *RecordBuilder {
	return &RecordBuilder{profile: profile, strict: strict, now: time.Now}
}

// WithClock fixes the builder's clock. Tests use it to pin the year
// implied by compact dates and the visit date default.
func (b *RecordBuilder) WithClock(now func() time.Time) *RecordBuilder {
	if now != nil {
		b.now = now
	}
	return b
}

// ClientFields extracts the owner attributes of a resolved row. The phone
// is rewritten to international form; a birth date that does not parse is
// dropped rather than defaulted, it is optional data.
func (b *RecordBuilder) ClientFields(fields map[string]string) domain.ClientFields {
	out := domain.ClientFields{
		Name:            strings.TrimSpace(fields[FieldOwnerName]),
		NationalID:      strings.TrimSpace(fields[FieldOwnerID]),
		Phone:           NormalizePhone(fields[FieldPhone], b.profile),
		Village:         strings.TrimSpace(fields[FieldVillage]),
		DetailedAddress: strings.TrimSpace(fields[FieldDetailedAddress]),
	}
	if raw := strings.TrimSpace(fields[FieldBirthDate]); raw != "" {
		if birth, ok := ParseDate(raw, time.Time{}, b.now()); ok {
			out.BirthDate = &birth
		}
	}
	return out
}

// Build maps one resolved row to the table's canonical record. Missing
// optional data never fails a row; the hard precondition checked here is
// the serial (or sample code) being present. Duplicate serials are the
// orchestrator's concern.
func (b *RecordBuilder) Build(table AliasTable, fields map[string]string, clientID, actor uuid.UUID) (domain.CanonicalRecord, error) {
	serial := strings.TrimSpace(fields[table.SerialField])
	if serial == "" {
		return nil, fmt.Errorf("missing required field %s", table.SerialField)
	}

	now := b.now()
	reader := &fieldReader{fields: fields, strict: b.strict, now: now}

	// Visits reported without a date default to yesterday: import batches
	// arrive the morning after the field work.
	visitDate := reader.date(FieldDate, now.AddDate(0, 0, -1))

	base := domain.VisitBase{
		ID:        uuid.New(),
		Type:      table.Type,
		Serial:    serial,
		VisitDate: visitDate,
		ClientID:  clientID,
		Location: domain.GeoPoint{
			Latitude:  reader.decimal(FieldLatitude),
			Longitude: reader.decimal(FieldLongitude),
		},
		Supervisor: reader.text(FieldSupervisor),
		VehicleNo:  reader.text(FieldVehicleNo),
		Remarks:    reader.text(FieldRemarks),
		Request: domain.FollowUp{
			Date:      reader.date(FieldRequestDate, visitDate),
			Situation: parseSituation(fields[FieldRequestSituation]),
		},
		Herd:      reader.herd(),
		CreatedBy: actor,
		CreatedAt: now,
	}

	var record domain.CanonicalRecord
	switch table.Type {
	case domain.RecordTypeVaccination:
		record = &domain.VaccinationRecord{
			VisitBase:       base,
			VaccineType:     reader.text(FieldVaccineType),
			VaccineCategory: reader.text(FieldVaccineCategory),
		}
	case domain.RecordTypeParasiteControl:
		record = &domain.ParasiteControlRecord{
			VisitBase:           base,
			InsecticideType:     reader.text(FieldInsecticideType),
			InsecticideCategory: reader.text(FieldInsecticideCategory),
			InsecticideVolume:   reader.decimal(FieldInsecticideVolume),
			BarnsSprayed:        reader.count(FieldBarnsSprayed),
		}
	case domain.RecordTypeMobileClinic:
		record = &domain.MobileClinicRecord{
			VisitBase:            base,
			Diagnosis:            reader.text(FieldDiagnosis),
			InterventionCategory: reader.text(FieldInterventionCategory),
			Treatment:            reader.text(FieldTreatment),
		}
	case domain.RecordTypeLaboratory:
		record = &domain.LaboratoryRecord{
			VisitBase:     base,
			SampleType:    reader.text(FieldSampleType),
			Collector:     reader.text(FieldCollector),
			PositiveCases: reader.count(FieldPositiveCases),
			NegativeCases: reader.count(FieldNegativeCases),
		}
	case domain.RecordTypeEquineHealth:
		record = &domain.EquineHealthRecord{
			VisitBase:            base,
			Diagnosis:            reader.text(FieldDiagnosis),
			InterventionCategory: reader.text(FieldInterventionCategory),
			Treatment:            reader.text(FieldTreatment),
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRecordType, table.Type)
	}

	if err := reader.Err(); err != nil {
		return nil, err
	}
	return record, nil
}

func parseSituation(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), domain.RequestSituationOpen) {
		return domain.RequestSituationOpen
	}
	return domain.RequestSituationClosed
}

// fieldReader applies the coercers over one resolved row, collecting
// would-have-defaulted values as errors when strict mode is on.
type fieldReader struct {
	fields    map[string]string
	strict    bool
	now       time.Time
	defaulted []string
}

func (r *fieldReader) text(field string) string {
	return strings.TrimSpace(r.fields[field])
}

func (r *fieldReader) date(field string, def time.Time) time.Time {
	value, ok := ParseDate(r.fields[field], def, r.now)
	if !ok {
		r.noteDefault(field, "date")
	}
	return value
}

func (r *fieldReader) count(field string) int {
	value, ok := ParseCount(r.fields[field])
	if !ok {
		r.noteDefault(field, "count")
	}
	return value
}

func (r *fieldReader) decimal(field string) float64 {
	value, ok := ParseDecimal(r.fields[field])
	if !ok {
		r.noteDefault(field, "number")
	}
	return value
}

func (r *fieldReader) noteDefault(field, kind string) {
	if r.strict {
		r.defaulted = append(r.defaulted, fmt.Sprintf("%s: unparseable %s %q", field, kind, r.fields[field]))
	}
}

// Err reports the collected strict-mode failures, nil outside strict mode.
func (r *fieldReader) Err() error {
	if len(r.defaulted) == 0 {
		return nil
	}
	return errors.New(strings.Join(r.defaulted, "; "))
}

func (r *fieldReader) herd() domain.Herd {
	return domain.Herd{
		Sheep:  r.herdCount(speciesSheep.key),
		Goats:  r.herdCount(speciesGoats.key),
		Camel:  r.herdCount(speciesCamel.key),
		Cattle: r.herdCount(speciesCattle.key),
		Horse:  r.herdCount(speciesHorse.key),
	}
}

func (r *fieldReader) herdCount(species string) domain.HerdCount {
	return domain.HerdCount{
		Total:   r.count(HerdFieldKey(species, herdSuffixTotal)),
		Young:   r.count(HerdFieldKey(species, herdSuffixYoung)),
		Female:  r.count(HerdFieldKey(species, herdSuffixFemale)),
		Treated: r.count(HerdFieldKey(species, herdSuffixTreated)),
	}
}
