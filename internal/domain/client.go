package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client statuses as persisted.
const (
	ClientStatusActive   = "active"
	ClientStatusInactive = "inactive"
)

// UnspecifiedValue marks owner fields the source row never provided.
const UnspecifiedValue = "unspecified"

// Client represents a livestock owner registered with the program.
type Client struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	NationalID        string     `json:"national_id"`
	Phone             string     `json:"phone"`
	Village           string     `json:"village"`
	DetailedAddress   string     `json:"detailed_address"`
	BirthDate         *time.Time `json:"birth_date,omitempty"`
	Status            string     `json:"status"`
	AvailableServices []string   `json:"available_services"`
	CreatedBy         uuid.UUID  `json:"created_by"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ClientFields carries the owner attributes taken from one import row.
type ClientFields struct {
	Name            string
	NationalID      string
	Phone           string
	Village         string
	DetailedAddress string
	BirthDate       *time.Time
}

// NewClient creates an active client owned by the given actor.
func NewClient(fields ClientFields, createdBy uuid.UUID) Client {
	now := time.Now()
	return Client{
		ID:                uuid.New(),
		Name:              strings.TrimSpace(fields.Name),
		NationalID:        strings.TrimSpace(fields.NationalID),
		Phone:             strings.TrimSpace(fields.Phone),
		Village:           strings.TrimSpace(fields.Village),
		DetailedAddress:   strings.TrimSpace(fields.DetailedAddress),
		BirthDate:         fields.BirthDate,
		Status:            ClientStatusActive,
		AvailableServices: []string{},
		CreatedBy:         createdBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// WithService returns a copy of the client with the service tag appended.
// The original is left untouched; appending an already present tag is a no-op.
func (c Client) WithService(tag string) Client {
	tag = strings.TrimSpace(tag)
	if tag == "" || c.HasService(tag) {
		return c
	}
	services := make([]string, 0, len(c.AvailableServices)+1)
	services = append(services, c.AvailableServices...)
	services = append(services, tag)
	out := c
	out.AvailableServices = services
	out.UpdatedAt = time.Now()
	return out
}

// HasService reports whether the client already declares the service tag.
func (c Client) HasService(tag string) bool {
	for _, existing := range c.AvailableServices {
		if strings.EqualFold(existing, tag) {
			return true
		}
	}
	return false
}

// MergedWith fills blank client fields from the incoming row and appends the
// service tag. Existing non-blank values are never overwritten. The second
// return value reports whether anything actually changed.
func (c Client) MergedWith(fields ClientFields, serviceTag string) (Client, bool) {
	out := c
	changed := false

	if isBlank(out.Name) && !isBlank(fields.Name) {
		out.Name = strings.TrimSpace(fields.Name)
		changed = true
	}
	if isBlank(out.NationalID) && !isBlank(fields.NationalID) {
		out.NationalID = strings.TrimSpace(fields.NationalID)
		changed = true
	}
	if isBlank(out.Phone) && !isBlank(fields.Phone) {
		out.Phone = strings.TrimSpace(fields.Phone)
		changed = true
	}
	if isBlank(out.Village) && !isBlank(fields.Village) {
		out.Village = strings.TrimSpace(fields.Village)
		changed = true
	}
	if isBlank(out.DetailedAddress) && !isBlank(fields.DetailedAddress) {
		out.DetailedAddress = strings.TrimSpace(fields.DetailedAddress)
		changed = true
	}
	if out.BirthDate == nil && fields.BirthDate != nil {
		birth := *fields.BirthDate
		out.BirthDate = &birth
		changed = true
	}

	serviceTag = strings.TrimSpace(serviceTag)
	if serviceTag != "" && !out.HasService(serviceTag) {
		out = out.WithService(serviceTag)
		changed = true
	}

	if changed {
		out.UpdatedAt = time.Now()
	}
	return out, changed
}

// isBlank treats the unspecified sentinel the same as an empty value so a
// placeholder written by an earlier import can be replaced by real data.
func isBlank(value string) bool {
	trimmed := strings.TrimSpace(value)
	return trimmed == "" || strings.EqualFold(trimmed, UnspecifiedValue)
}
