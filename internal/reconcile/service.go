package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vetfieldhq/vetfield/internal/domain"
	"github.com/vetfieldhq/vetfield/internal/repository"
)

// MatchMode selects how incoming rows are matched against stored clients.
type MatchMode string

const (
	// MatchAny matches on any of name, national ID, phone or village.
	// This mirrors the upstream program's loose heuristic: it maximises
	// the hit rate on inconsistent import data at the cost of merging
	// unrelated owners that happen to share a village name.
	MatchAny MatchMode = "any"

	// MatchIdentity matches on the national ID only. Stricter and safe
	// against village-name merges; offered as a configuration option.
	MatchIdentity MatchMode = "identity"
)

// ParseMatchMode maps a configuration value to a match mode. Blank means
// the default loose mode.
func ParseMatchMode(raw string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(MatchAny):
		return MatchAny, nil
	case string(MatchIdentity):
		return MatchIdentity, nil
	default:
		return "", fmt.Errorf("unknown client match mode %q", raw)
	}
}

// Service resolves the owner described by an import row against the
// client registry, creating or additively updating entries as needed.
type Service struct {
	clients     repository.ClientRepository
	mode        MatchMode
	phonePrefix string
	now         func() time.Time

	seq atomic.Int64
}

// Option customizes a reconciliation service.
type Option func(*Service)

// WithMatchMode overrides the default loose matching.
func WithMatchMode(mode MatchMode) Option {
	return func(s *Service) {
		if mode != "" {
			s.mode = mode
		}
	}
}

// WithPhonePrefix sets the prefix synthesized mobile numbers start with,
// e.g. "+9665".
func WithPhonePrefix(prefix string) Option {
	return func(s *Service) {
		if strings.TrimSpace(prefix) != "" {
			s.phonePrefix = strings.TrimSpace(prefix)
		}
	}
}

// WithClock fixes the clock used for placeholder identity numbers.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a reconciliation service over the client registry.
func NewService(clients repository.ClientRepository, opts ...Option) *Service {
	service := &Service{
		clients:     clients,
		mode:        MatchAny,
		phonePrefix: "+9665",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// FindOrCreate returns the client the row's owner fields resolve to. A
// hit is merged additively (blank fields filled, the service tag appended)
// and persisted only when something changed; a miss creates a new active
// client with placeholders for the mandatory fields the row left blank.
// The boolean reports whether a new client was created.
func (s *Service) FindOrCreate(ctx context.Context, fields domain.ClientFields, serviceTag string, actor uuid.UUID) (domain.Client, bool, error) {
	existing, err := s.find(ctx, fields)
	switch {
	case err == nil:
		merged, changed := existing.MergedWith(fields, serviceTag)
		if !changed {
			return existing, false, nil
		}
		if err := s.clients.Update(ctx, merged); err != nil {
			return domain.Client{}, false, fmt.Errorf("failed to update client %s: %w", merged.ID, err)
		}
		return merged, false, nil
	case errors.Is(err, repository.ErrNotFound):
		client, err := s.synthesize(ctx, fields, actor)
		if err != nil {
			return domain.Client{}, false, err
		}
		client = client.WithService(serviceTag)
		if err := s.clients.Insert(ctx, client); err != nil {
			return domain.Client{}, false, fmt.Errorf("failed to insert client: %w", err)
		}
		return client, true, nil
	default:
		return domain.Client{}, false, fmt.Errorf("failed to look up client: %w", err)
	}
}

func (s *Service) find(ctx context.Context, fields domain.ClientFields) (domain.Client, error) {
	if s.mode == MatchIdentity {
		nationalID := strings.TrimSpace(fields.NationalID)
		if nationalID == "" {
			return domain.Client{}, repository.ErrNotFound
		}
		return s.clients.FindOneByNationalID(ctx, nationalID)
	}

	lookup := repository.ClientLookup{
		Name:       strings.TrimSpace(fields.Name),
		NationalID: strings.TrimSpace(fields.NationalID),
		Phone:      strings.TrimSpace(fields.Phone),
		Village:    strings.TrimSpace(fields.Village),
	}
	if lookup.IsEmpty() {
		return domain.Client{}, repository.ErrNotFound
	}
	return s.clients.FindOneByAny(ctx, lookup)
}

// synthesize fills the mandatory owner fields the row left blank so the
// new client satisfies the registry's shape. Placeholders stay
// recognisable by convention: a timestamp-derived national ID, a
// timestamp-derived local-shape mobile number, and the unspecified
// sentinel for addresses.
func (s *Service) synthesize(ctx context.Context, fields domain.ClientFields, actor uuid.UUID) (domain.Client, error) {
	if strings.TrimSpace(fields.NationalID) == "" {
		nationalID, err := s.mintNationalID(ctx)
		if err != nil {
			return domain.Client{}, err
		}
		fields.NationalID = nationalID
	}
	if strings.TrimSpace(fields.Phone) == "" {
		fields.Phone = s.placeholderPhone()
	}
	if strings.TrimSpace(fields.Village) == "" {
		fields.Village = domain.UnspecifiedValue
	}
	if strings.TrimSpace(fields.DetailedAddress) == "" {
		fields.DetailedAddress = domain.UnspecifiedValue
	}
	return domain.NewClient(fields, actor), nil
}

// mintNationalID returns a placeholder national ID no stored client
// carries. Candidates are checked against the registry; the counter makes
// each retry (and each row of one batch) a fresh candidate.
func (s *Service) mintNationalID(ctx context.Context) (string, error) {
	const maxAttempts = 10
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := fmt.Sprintf("%010d", (s.now().Unix()+s.seq.Add(1))%10_000_000_000)
		count, err := s.clients.CountByNationalID(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check placeholder national ID: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("failed to mint a unique placeholder national ID after %d attempts", maxAttempts)
}

// placeholderPhone derives the mobile digits from the same clock-plus-
// counter seed as the national ID, so no two synthesized clients can
// share a phone and later merge through the loose phone match.
func (s *Service) placeholderPhone() string {
	return s.phonePrefix + fmt.Sprintf("%08d", (s.now().Unix()+s.seq.Add(1))%100_000_000)
}
