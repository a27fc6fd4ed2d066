package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordType identifies one of the five field-visit categories.
type RecordType string

const (
	RecordTypeVaccination     RecordType = "vaccination"
	RecordTypeParasiteControl RecordType = "parasite_control"
	RecordTypeMobileClinic    RecordType = "mobile_clinic"
	RecordTypeLaboratory      RecordType = "laboratory"
	RecordTypeEquineHealth    RecordType = "equine_health"
)

// ErrUnknownRecordType is returned when a request names a record type the
// system does not serve.
var ErrUnknownRecordType = errors.New("unknown record type")

// AllRecordTypes lists the supported types in a stable order.
func AllRecordTypes() []RecordType {
	return []RecordType{
		RecordTypeVaccination,
		RecordTypeParasiteControl,
		RecordTypeMobileClinic,
		RecordTypeLaboratory,
		RecordTypeEquineHealth,
	}
}

// ParseRecordType accepts the storage spelling ("parasite_control"), the
// route spelling ("parasite-control"), and the upstream table name
// ("ParasiteControl") for each type.
func ParseRecordType(raw string) (RecordType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	switch normalized {
	case "vaccination":
		return RecordTypeVaccination, nil
	case "parasite_control", "parasitecontrol":
		return RecordTypeParasiteControl, nil
	case "mobile_clinic", "mobileclinic":
		return RecordTypeMobileClinic, nil
	case "laboratory", "lab":
		return RecordTypeLaboratory, nil
	case "equine_health", "equinehealth", "equine":
		return RecordTypeEquineHealth, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRecordType, raw)
	}
}

// TableType returns the upstream import tool's table name for the type.
func (t RecordType) TableType() string {
	switch t {
	case RecordTypeVaccination:
		return "Vaccination"
	case RecordTypeParasiteControl:
		return "ParasiteControl"
	case RecordTypeMobileClinic:
		return "MobileClinic"
	case RecordTypeLaboratory:
		return "Laboratory"
	case RecordTypeEquineHealth:
		return "EquineHealth"
	default:
		return string(t)
	}
}

// ServiceTag returns the human label appended to a client's declared
// services when a visit of this type is imported for them.
func (t RecordType) ServiceTag() string {
	switch t {
	case RecordTypeVaccination:
		return "Vaccination"
	case RecordTypeParasiteControl:
		return "Parasite Control"
	case RecordTypeMobileClinic:
		return "Mobile Clinic"
	case RecordTypeLaboratory:
		return "Laboratory"
	case RecordTypeEquineHealth:
		return "Equine Health"
	default:
		return string(t)
	}
}

// HerdCount carries the per-species animal counts reported for a visit.
// Treated doubles as the vaccinated count on vaccination visits.
type HerdCount struct {
	Total   int `json:"total"`
	Young   int `json:"young"`
	Female  int `json:"female"`
	Treated int `json:"treated"`
}

// Herd groups the species blocks every visit carries. Absent species
// stay at their zero value.
type Herd struct {
	Sheep  HerdCount `json:"sheep"`
	Goats  HerdCount `json:"goats"`
	Camel  HerdCount `json:"camel"`
	Cattle HerdCount `json:"cattle"`
	Horse  HerdCount `json:"horse"`
}

// GeoPoint is a WGS84 coordinate pair. 0,0 means "no GPS fix recorded",
// never a genuine location.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsZero reports whether the point is the no-fix sentinel.
func (p GeoPoint) IsZero() bool {
	return p.Latitude == 0 && p.Longitude == 0
}

// Follow-up request situations.
const (
	RequestSituationOpen   = "open"
	RequestSituationClosed = "closed"
)

// FollowUp records the follow-up request attached to a visit.
type FollowUp struct {
	Date      time.Time `json:"date"`
	Situation string    `json:"situation"`
}

// VisitBase holds the fields shared by every canonical visit record.
type VisitBase struct {
	ID         uuid.UUID  `json:"id"`
	Type       RecordType `json:"type"`
	Serial     string     `json:"serial"`
	VisitDate  time.Time  `json:"visit_date"`
	ClientID   uuid.UUID  `json:"client_id"`
	Location   GeoPoint   `json:"location"`
	Supervisor string     `json:"supervisor"`
	VehicleNo  string     `json:"vehicle_no"`
	Remarks    string     `json:"remarks"`
	Request    FollowUp   `json:"request"`
	Herd       Herd       `json:"herd"`
	CreatedBy  uuid.UUID  `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CanonicalRecord is one fully-typed field visit ready to persist.
type CanonicalRecord interface {
	Base() *VisitBase
	RecordType() RecordType
	// Details returns the variant-specific fields as a flat document for
	// storage alongside the shared columns.
	Details() map[string]any
}

// VaccinationRecord is a vaccination campaign visit.
type VaccinationRecord struct {
	VisitBase
	VaccineType     string `json:"vaccine_type"`
	VaccineCategory string `json:"vaccine_category"`
}

func (r *VaccinationRecord) Base() *VisitBase       { return &r.VisitBase }
func (r *VaccinationRecord) RecordType() RecordType { return RecordTypeVaccination }
func (r *VaccinationRecord) Details() map[string]any {
	return map[string]any{
		"vaccineType":     r.VaccineType,
		"vaccineCategory": r.VaccineCategory,
	}
}

// ParasiteControlRecord is an insecticide spraying visit.
type ParasiteControlRecord struct {
	VisitBase
	InsecticideType     string  `json:"insecticide_type"`
	InsecticideCategory string  `json:"insecticide_category"`
	InsecticideVolume   float64 `json:"insecticide_volume"`
	BarnsSprayed        int     `json:"barns_sprayed"`
}

func (r *ParasiteControlRecord) Base() *VisitBase       { return &r.VisitBase }
func (r *ParasiteControlRecord) RecordType() RecordType { return RecordTypeParasiteControl }
func (r *ParasiteControlRecord) Details() map[string]any {
	return map[string]any{
		"insecticideType":     r.InsecticideType,
		"insecticideCategory": r.InsecticideCategory,
		"insecticideVolume":   r.InsecticideVolume,
		"barnsSprayed":        r.BarnsSprayed,
	}
}

// MobileClinicRecord is a treatment visit by the mobile clinic.
type MobileClinicRecord struct {
	VisitBase
	Diagnosis            string `json:"diagnosis"`
	InterventionCategory string `json:"intervention_category"`
	Treatment            string `json:"treatment"`
}

func (r *MobileClinicRecord) Base() *VisitBase       { return &r.VisitBase }
func (r *MobileClinicRecord) RecordType() RecordType { return RecordTypeMobileClinic }
func (r *MobileClinicRecord) Details() map[string]any {
	return map[string]any{
		"diagnosis":            r.Diagnosis,
		"interventionCategory": r.InterventionCategory,
		"treatment":            r.Treatment,
	}
}

// LaboratoryRecord is a sample collection visit. Serial carries the
// sample code.
type LaboratoryRecord struct {
	VisitBase
	SampleType    string `json:"sample_type"`
	Collector     string `json:"collector"`
	PositiveCases int    `json:"positive_cases"`
	NegativeCases int    `json:"negative_cases"`
}

func (r *LaboratoryRecord) Base() *VisitBase       { return &r.VisitBase }
func (r *LaboratoryRecord) RecordType() RecordType { return RecordTypeLaboratory }
func (r *LaboratoryRecord) Details() map[string]any {
	return map[string]any{
		"sampleType":    r.SampleType,
		"collector":     r.Collector,
		"positiveCases": r.PositiveCases,
		"negativeCases": r.NegativeCases,
	}
}

// EquineHealthRecord is a horse health intervention visit.
type EquineHealthRecord struct {
	VisitBase
	Diagnosis            string `json:"diagnosis"`
	InterventionCategory string `json:"intervention_category"`
	Treatment            string `json:"treatment"`
}

func (r *EquineHealthRecord) Base() *VisitBase       { return &r.VisitBase }
func (r *EquineHealthRecord) RecordType() RecordType { return RecordTypeEquineHealth }
func (r *EquineHealthRecord) Details() map[string]any {
	return map[string]any{
		"diagnosis":            r.Diagnosis,
		"interventionCategory": r.InterventionCategory,
		"treatment":            r.Treatment,
	}
}

// Visit is the stored form of a canonical record as read back from the
// repository: shared columns plus the variant document.
type Visit struct {
	VisitBase
	Details map[string]any `json:"details"`
}
