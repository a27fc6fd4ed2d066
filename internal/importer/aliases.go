package importer

import (
	"strings"

	"github.com/vetfieldhq/vetfield/internal/domain"
)

// Canonical field names shared by the alias tables and the mappers.
const (
	FieldSerialNo         = "serialNo"
	FieldSampleCode       = "sampleCode"
	FieldDate             = "date"
	FieldOwnerName        = "ownerName"
	FieldOwnerID          = "ownerID"
	FieldBirthDate        = "birthDate"
	FieldPhone            = "phone"
	FieldVillage          = "village"
	FieldDetailedAddress  = "detailedAddress"
	FieldLatitude         = "latitude"
	FieldLongitude        = "longitude"
	FieldSupervisor       = "supervisor"
	FieldVehicleNo        = "vehicleNo"
	FieldRemarks          = "remarks"
	FieldRequestDate      = "requestDate"
	FieldRequestSituation = "requestSituation"

	FieldVaccineType     = "vaccineType"
	FieldVaccineCategory = "vaccineCategory"

	FieldInsecticideType     = "insecticideType"
	FieldInsecticideCategory = "insecticideCategory"
	FieldInsecticideVolume   = "insecticideVolume"
	FieldBarnsSprayed        = "barnsSprayed"

	FieldDiagnosis            = "diagnosis"
	FieldInterventionCategory = "interventionCategory"
	FieldTreatment            = "treatment"

	FieldSampleType    = "sampleType"
	FieldCollector     = "sampleCollector"
	FieldPositiveCases = "positiveCases"
	FieldNegativeCases = "negativeCases"
)

// FieldAliases maps one canonical field to the incoming header spellings
// accepted for it, in priority order. Example seeds the template row.
type FieldAliases struct {
	Canonical string
	Aliases   []string
	Example   string
}

// AliasTable is the immutable alias configuration for one record type.
// Field order doubles as the template column order.
type AliasTable struct {
	Type        domain.RecordType
	SerialField string
	Fields      []FieldAliases
}

// Tables holds the alias tables for every record type. Built once at
// startup and injected; never mutated afterwards.
type Tables map[domain.RecordType]AliasTable

// NewTables builds the alias tables for all five record types.
func NewTables() Tables {
	return Tables{
		domain.RecordTypeVaccination:     VaccinationAliases(),
		domain.RecordTypeParasiteControl: ParasiteControlAliases(),
		domain.RecordTypeMobileClinic:    MobileClinicAliases(),
		domain.RecordTypeLaboratory:      LaboratoryAliases(),
		domain.RecordTypeEquineHealth:    EquineHealthAliases(),
	}
}

// Resolve maps one raw row to canonical fields: for each field the first
// alias present in the row with a non-empty value wins. Header matching is
// case-insensitive and whitespace-tolerant; the canonical name itself is
// always accepted as a final fallback spelling. The input row is not
// modified.
func (t AliasTable) Resolve(row RawRow) map[string]string {
	normalized := make(map[string]string, len(row.Values))
	for header, value := range row.Values {
		key := normalizeHeader(header)
		if existing, ok := normalized[key]; ok && strings.TrimSpace(existing) != "" {
			continue
		}
		normalized[key] = value
	}

	out := make(map[string]string, len(t.Fields))
	for _, field := range t.Fields {
		for _, alias := range field.Aliases {
			if value, ok := normalized[normalizeHeader(alias)]; ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					out[field.Canonical] = trimmed
					break
				}
			}
		}
		if _, found := out[field.Canonical]; !found {
			if value, ok := normalized[normalizeHeader(field.Canonical)]; ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					out[field.Canonical] = trimmed
				}
			}
		}
	}
	return out
}

// Lookup returns the alias list for a canonical field.
func (t AliasTable) Lookup(canonical string) ([]string, bool) {
	for _, field := range t.Fields {
		if field.Canonical == canonical {
			return field.Aliases, true
		}
	}
	return nil, false
}

func normalizeHeader(header string) string {
	return strings.Join(strings.Fields(strings.ToLower(header)), " ")
}

// VaccinationAliases returns the alias table for vaccination visits.
func VaccinationAliases() AliasTable {
	fields := []FieldAliases{
		{FieldSerialNo, []string{"Serial No", "Serial Number", "No", "رقم التسلسل", "التسلسل"}, "1250"},
		{FieldDate, []string{"Date", "Visit Date", "التاريخ", "تاريخ الزيارة"}, "1-Sep"},
	}
	fields = append(fields, ownerFields()...)
	fields = append(fields, locationFields()...)
	fields = append(fields, teamFields()...)
	fields = append(fields, herdFields("Vaccinated", "المحصن", allSpecies...)...)
	fields = append(fields,
		FieldAliases{FieldVaccineType, []string{"Vaccine Type", "Vaccine", "نوع اللقاح", "اللقاح"}, "HS"},
		FieldAliases{FieldVaccineCategory, []string{"Vaccine Category", "Campaign Type", "فئة اللقاح", "نوع الحملة"}, "Preventive"},
	)
	fields = append(fields, trailerFields()...)
	return AliasTable{Type: domain.RecordTypeVaccination, SerialField: FieldSerialNo, Fields: fields}
}

// ParasiteControlAliases returns the alias table for spraying visits.
func ParasiteControlAliases() AliasTable {
	fields := []FieldAliases{
		{FieldSerialNo, []string{"Serial No", "Serial Number", "No", "رقم التسلسل", "التسلسل"}, "3320"},
		{FieldDate, []string{"Date", "Visit Date", "التاريخ", "تاريخ الزيارة"}, "12/03/2025"},
	}
	fields = append(fields, ownerFields()...)
	fields = append(fields, locationFields()...)
	fields = append(fields, teamFields()...)
	fields = append(fields, herdFields("Treated", "المعالج", allSpecies...)...)
	fields = append(fields,
		FieldAliases{FieldInsecticideType, []string{"Insecticide Type", "Insecticide", "نوع المبيد", "المبيد"}, "Deltamethrin"},
		FieldAliases{FieldInsecticideCategory, []string{"Insecticide Category", "فئة المبيد"}, "Pour-on"},
		FieldAliases{FieldInsecticideVolume, []string{"Insecticide Volume", "Volume (ml)", "كمية المبيد"}, "250"},
		FieldAliases{FieldBarnsSprayed, []string{"Barns Sprayed", "Animal Barns", "عدد الحظائر المرشوشة", "الحظائر"}, "2"},
	)
	fields = append(fields, trailerFields()...)
	return AliasTable{Type: domain.RecordTypeParasiteControl, SerialField: FieldSerialNo, Fields: fields}
}

// MobileClinicAliases returns the alias table for mobile clinic visits.
func MobileClinicAliases() AliasTable {
	fields := []FieldAliases{
		{FieldSerialNo, []string{"Serial No", "Serial Number", "No", "رقم التسلسل", "التسلسل"}, "7015"},
		{FieldDate, []string{"Date", "Visit Date", "التاريخ", "تاريخ الزيارة"}, "2025-03-18"},
	}
	fields = append(fields, ownerFields()...)
	fields = append(fields, locationFields()...)
	fields = append(fields, teamFields()...)
	fields = append(fields, herdFields("Treated", "المعالج", allSpecies...)...)
	fields = append(fields,
		FieldAliases{FieldDiagnosis, []string{"Diagnosis", "التشخيص"}, "Internal parasites"},
		FieldAliases{FieldInterventionCategory, []string{"Intervention Category", "Intervention", "فئة التدخل", "التدخل العلاجي"}, "Clinical Examination"},
		FieldAliases{FieldTreatment, []string{"Treatment", "Medication", "العلاج", "الدواء"}, "Ivermectin"},
	)
	fields = append(fields, trailerFields()...)
	return AliasTable{Type: domain.RecordTypeMobileClinic, SerialField: FieldSerialNo, Fields: fields}
}

// LaboratoryAliases returns the alias table for sample collection visits.
// The sample code plays the serial role.
func LaboratoryAliases() AliasTable {
	fields := []FieldAliases{
		{FieldSampleCode, []string{"Sample Code", "Sample No", "Code", "رمز العينة", "رقم العينة"}, "LAB-2107"},
		{FieldDate, []string{"Date", "Collection Date", "التاريخ", "تاريخ جمع العينة"}, "2025-03-02"},
	}
	fields = append(fields, ownerFields()...)
	fields = append(fields, locationFields()...)
	fields = append(fields,
		FieldAliases{FieldSupervisor, []string{"Supervisor", "المشرف", "اسم المشرف"}, "Dr. Khalid"},
		FieldAliases{FieldCollector, []string{"Sample Collector", "Collector", "جامع العينة"}, "Tech. Fahad"},
	)
	fields = append(fields, herdFields("Sampled", "المفحوص", allSpecies...)...)
	fields = append(fields,
		FieldAliases{FieldSampleType, []string{"Sample Type", "نوع العينة"}, "Serum"},
		FieldAliases{FieldPositiveCases, []string{"Positive Cases", "Positive", "الحالات الإيجابية"}, "1"},
		FieldAliases{FieldNegativeCases, []string{"Negative Cases", "Negative", "الحالات السلبية"}, "14"},
	)
	fields = append(fields, trailerFields()...)
	return AliasTable{Type: domain.RecordTypeLaboratory, SerialField: FieldSampleCode, Fields: fields}
}

// EquineHealthAliases returns the alias table for equine health visits.
// Only the horse herd block applies; other species stay zero.
func EquineHealthAliases() AliasTable {
	fields := []FieldAliases{
		{FieldSerialNo, []string{"Serial No", "Serial Number", "No", "رقم التسلسل", "التسلسل"}, "580"},
		{FieldDate, []string{"Date", "Visit Date", "التاريخ", "تاريخ الزيارة"}, "21/02/2025"},
	}
	fields = append(fields, ownerFields()...)
	fields = append(fields, locationFields()...)
	fields = append(fields, teamFields()...)
	fields = append(fields, herdFields("Treated", "المعالج", speciesHorse)...)
	fields = append(fields,
		FieldAliases{FieldDiagnosis, []string{"Diagnosis", "التشخيص"}, "Lameness"},
		FieldAliases{FieldInterventionCategory, []string{"Intervention Category", "Intervention", "فئة التدخل"}, "Field Treatment"},
		FieldAliases{FieldTreatment, []string{"Treatment", "Medication", "العلاج"}, "Phenylbutazone"},
	)
	fields = append(fields, trailerFields()...)
	return AliasTable{Type: domain.RecordTypeEquineHealth, SerialField: FieldSerialNo, Fields: fields}
}

func ownerFields() []FieldAliases {
	return []FieldAliases{
		{FieldOwnerName, []string{"Owner Name", "Name", "اسم المربي", "اسم مالك الماشية", "الاسم"}, "Ahmed Al Harbi"},
		{FieldOwnerID, []string{"ID", "ID Number", "National ID", "رقم الهوية", "الهوية"}, "1078519442"},
		{FieldBirthDate, []string{"Birth Date", "تاريخ الميلاد"}, "01/07/1968"},
		{FieldPhone, []string{"Phone", "Phone Number", "Mobile", "رقم الجوال", "الجوال"}, "0533871699"},
		{FieldVillage, []string{"Village", "القرية", "المنطقة"}, "Uyun Al Jiwa"},
		{FieldDetailedAddress, []string{"Detailed Address", "Address", "العنوان التفصيلي", "العنوان"}, "Uyun Al Jiwa, north farm road"},
	}
}

func locationFields() []FieldAliases {
	return []FieldAliases{
		{FieldLatitude, []string{"N Coordinate", "N", "Latitude", "احداثيات N", "خط العرض"}, "26.32556"},
		{FieldLongitude, []string{"E Coordinate", "E", "Longitude", "احداثيات E", "خط الطول"}, "43.97389"},
	}
}

func teamFields() []FieldAliases {
	return []FieldAliases{
		{FieldSupervisor, []string{"Supervisor", "المشرف", "اسم المشرف"}, "Dr. Khalid"},
		{FieldVehicleNo, []string{"Vehicle No", "Vehicle Number", "Car No", "رقم المركبة", "رقم السيارة"}, "V-104"},
	}
}

func trailerFields() []FieldAliases {
	return []FieldAliases{
		{FieldRemarks, []string{"Remarks", "Notes", "ملاحظات"}, "Herd in good condition"},
		{FieldRequestDate, []string{"Request Date", "تاريخ الطلب"}, ""},
		{FieldRequestSituation, []string{"Request Situation", "Request Status", "حالة الطلب"}, "closed"},
	}
}

type herdSpecies struct {
	key string
	en  string
	ar  string
}

var (
	speciesSheep  = herdSpecies{"sheep", "Sheep", "الضأن"}
	speciesGoats  = herdSpecies{"goats", "Goats", "الماعز"}
	speciesCamel  = herdSpecies{"camel", "Camel", "الإبل"}
	speciesCattle = herdSpecies{"cattle", "Cattle", "الأبقار"}
	speciesHorse  = herdSpecies{"horse", "Horse", "الخيول"}

	allSpecies = []herdSpecies{speciesSheep, speciesGoats, speciesCamel, speciesCattle, speciesHorse}
)

// Herd count canonical key suffixes.
const (
	herdSuffixTotal   = "Total"
	herdSuffixYoung   = "Young"
	herdSuffixFemale  = "Female"
	herdSuffixTreated = "Treated"
)

// HerdFieldKey builds the canonical key for one species count, e.g.
// ("sheep", "Total") -> "sheepTotal".
func HerdFieldKey(species, suffix string) string {
	return species + suffix
}

// herdFields builds the four count fields per species. treatedEn and
// treatedAr label the treated-or-vaccinated column in the variant's own
// vocabulary; the canonical key stays <species>Treated for all types.
func herdFields(treatedEn, treatedAr string, species ...herdSpecies) []FieldAliases {
	fields := make([]FieldAliases, 0, len(species)*4)
	for _, sp := range species {
		fields = append(fields,
			FieldAliases{
				Canonical: HerdFieldKey(sp.key, herdSuffixTotal),
				Aliases:   []string{sp.en + " Total", "Total " + sp.en, "اجمالي " + sp.ar, "عدد " + sp.ar},
				Example:   "15",
			},
			FieldAliases{
				Canonical: HerdFieldKey(sp.key, herdSuffixYoung),
				Aliases:   []string{sp.en + " Young", "Young " + sp.en, "صغار " + sp.ar},
				Example:   "4",
			},
			FieldAliases{
				Canonical: HerdFieldKey(sp.key, herdSuffixFemale),
				Aliases:   []string{sp.en + " Female", "Female " + sp.en, "إناث " + sp.ar},
				Example:   "9",
			},
			FieldAliases{
				Canonical: HerdFieldKey(sp.key, herdSuffixTreated),
				Aliases:   []string{sp.en + " " + treatedEn, treatedEn + " " + sp.en, sp.ar + " " + treatedAr},
				Example:   "12",
			},
		)
	}
	return fields
}
