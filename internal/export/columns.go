package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vetfieldhq/vetfield/internal/domain"
	"github.com/vetfieldhq/vetfield/internal/importer"
)

const exportDateLayout = "2006-01-02"

type exportColumn struct {
	header    string
	canonical string
}

// exportColumns derives the snapshot's column set from the record type's
// field table, so exported files re-import cleanly through the same aliases.
func exportColumns(table importer.AliasTable) []exportColumn {
	columns := make([]exportColumn, 0, len(table.Fields))
	for _, field := range table.Fields {
		header := field.Canonical
		if len(field.Aliases) > 0 {
			header = field.Aliases[0]
		}
		columns = append(columns, exportColumn{header: header, canonical: field.Canonical})
	}
	return columns
}

// visitValue renders one canonical field of a stored visit as CSV cell text.
// Owner columns come from the reconciled client; unknown fields fall back to
// the variant detail document.
func visitValue(visit domain.Visit, client domain.Client, canonical string) string {
	switch canonical {
	case importer.FieldSerialNo, importer.FieldSampleCode:
		return visit.Serial
	case importer.FieldDate:
		return formatDate(visit.VisitDate)
	case importer.FieldOwnerName:
		return client.Name
	case importer.FieldOwnerID:
		return client.NationalID
	case importer.FieldBirthDate:
		if client.BirthDate == nil {
			return ""
		}
		return formatDate(*client.BirthDate)
	case importer.FieldPhone:
		return client.Phone
	case importer.FieldVillage:
		return client.Village
	case importer.FieldDetailedAddress:
		return client.DetailedAddress
	case importer.FieldLatitude:
		if visit.Location.IsZero() {
			return ""
		}
		return strconv.FormatFloat(visit.Location.Latitude, 'f', -1, 64)
	case importer.FieldLongitude:
		if visit.Location.IsZero() {
			return ""
		}
		return strconv.FormatFloat(visit.Location.Longitude, 'f', -1, 64)
	case importer.FieldSupervisor:
		return visit.Supervisor
	case importer.FieldVehicleNo:
		return visit.VehicleNo
	case importer.FieldRemarks:
		return visit.Remarks
	case importer.FieldRequestDate:
		return formatDate(visit.Request.Date)
	case importer.FieldRequestSituation:
		return visit.Request.Situation
	}
	if value, ok := herdValue(visit.Herd, canonical); ok {
		return value
	}
	if raw, ok := visit.Details[canonical]; ok {
		return formatDetail(raw)
	}
	return ""
}

func herdValue(herd domain.Herd, canonical string) (string, bool) {
	species := map[string]domain.HerdCount{
		"sheep":  herd.Sheep,
		"goats":  herd.Goats,
		"camel":  herd.Camel,
		"cattle": herd.Cattle,
		"horse":  herd.Horse,
	}
	for key, counts := range species {
		if !strings.HasPrefix(canonical, key) {
			continue
		}
		switch canonical {
		case importer.HerdFieldKey(key, "Total"):
			return strconv.Itoa(counts.Total), true
		case importer.HerdFieldKey(key, "Young"):
			return strconv.Itoa(counts.Young), true
		case importer.HerdFieldKey(key, "Female"):
			return strconv.Itoa(counts.Female), true
		case importer.HerdFieldKey(key, "Treated"):
			return strconv.Itoa(counts.Treated), true
		}
	}
	return "", false
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Format(exportDateLayout)
}

func formatDetail(raw any) string {
	switch typed := raw.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case int:
		return strconv.Itoa(typed)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case int64:
		return strconv.FormatInt(typed, 10)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return fmt.Sprintf("%v", typed)
	}
}
