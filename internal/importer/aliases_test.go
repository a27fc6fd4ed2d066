package importer

import (
	"testing"

	"github.com/vetfieldhq/vetfield/internal/domain"
)

func TestNewTablesCoversAllRecordTypes(t *testing.T) {
	tables := NewTables()
	for _, recordType := range domain.AllRecordTypes() {
		table, ok := tables[recordType]
		if !ok {
			t.Fatalf("no alias table for %s", recordType)
		}
		if table.Type != recordType {
			t.Fatalf("table for %s reports type %s", recordType, table.Type)
		}
		if table.SerialField == "" {
			t.Fatalf("table for %s has no serial field", recordType)
		}
	}
	if tables[domain.RecordTypeLaboratory].SerialField != FieldSampleCode {
		t.Fatalf("laboratory table should key on the sample code")
	}
	if tables[domain.RecordTypeVaccination].SerialField != FieldSerialNo {
		t.Fatalf("vaccination table should key on the serial number")
	}
}

func TestResolveAliasPriority(t *testing.T) {
	table := VaccinationAliases()

	// "Serial No" outranks "No" even when both are present.
	row := RawRow{Index: 1, Values: map[string]string{
		"No":        "999",
		"Serial No": "1250",
	}}
	fields := table.Resolve(row)
	if fields[FieldSerialNo] != "1250" {
		t.Fatalf("expected the higher-priority alias to win, got %q", fields[FieldSerialNo])
	}

	// A blank higher-priority cell yields to the next alias with data.
	row = RawRow{Index: 1, Values: map[string]string{
		"Serial No": "  ",
		"No":        "999",
	}}
	fields = table.Resolve(row)
	if fields[FieldSerialNo] != "999" {
		t.Fatalf("expected fallback to the next alias, got %q", fields[FieldSerialNo])
	}
}

func TestResolveMatchesArabicAndCaseInsensitiveHeaders(t *testing.T) {
	table := VaccinationAliases()
	row := RawRow{Index: 1, Values: map[string]string{
		"رقم التسلسل": "1250",
		"اسم المربي":  "أحمد الحربي",
		"visit date":  "1-Sep",
	}}
	fields := table.Resolve(row)
	if fields[FieldSerialNo] != "1250" {
		t.Fatalf("Arabic serial header did not resolve: %+v", fields)
	}
	if fields[FieldDate] != "1-Sep" {
		t.Fatalf("case-insensitive date header did not resolve: %+v", fields)
	}
	if fields[FieldOwnerName] != "أحمد الحربي" {
		t.Fatalf("Arabic owner name header did not resolve: %+v", fields)
	}
}

func TestResolveAcceptsCanonicalNameAsFallback(t *testing.T) {
	table := MobileClinicAliases()
	row := RawRow{Index: 1, Values: map[string]string{
		"serialNo":  "7015",
		"diagnosis": "Internal parasites",
	}}
	fields := table.Resolve(row)
	if fields[FieldSerialNo] != "7015" {
		t.Fatalf("canonical header spelling should resolve, got %+v", fields)
	}
	if fields[FieldDiagnosis] != "Internal parasites" {
		t.Fatalf("canonical diagnosis spelling should resolve, got %+v", fields)
	}
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	table := VaccinationAliases()
	values := map[string]string{"Serial No": "1250"}
	row := RawRow{Index: 1, Values: values}

	_ = table.Resolve(row)
	if len(values) != 1 || values["Serial No"] != "1250" {
		t.Fatalf("input row was mutated: %+v", values)
	}
}

func TestEquineTableCarriesOnlyHorseHerdFields(t *testing.T) {
	table := EquineHealthAliases()
	for _, field := range table.Fields {
		switch field.Canonical {
		case HerdFieldKey("sheep", "Total"), HerdFieldKey("goats", "Total"),
			HerdFieldKey("camel", "Total"), HerdFieldKey("cattle", "Total"):
			t.Fatalf("equine table should not carry %s", field.Canonical)
		}
	}
	if _, ok := table.Lookup(HerdFieldKey("horse", "Total")); !ok {
		t.Fatalf("equine table is missing the horse herd block")
	}
}
