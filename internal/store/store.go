// Package store persists referral configurations and the decision audit trail.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/referral-cli/internal/model"
)

// ErrNotFound is returned when a configuration or decision does not exist.
var ErrNotFound = eris.New("store: not found")

// DefaultListLimit caps list queries that do not set a limit.
const DefaultListLimit = 100

// ListFilter pages through list queries.
type ListFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f ListFilter) offset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}

// DecisionRecord is one persisted evaluation outcome.
type DecisionRecord struct {
	ID                   string                         `json:"id"`
	ReferralID           string                         `json:"referralId"`
	ConfigurationID      string                         `json:"configurationId"`
	ConfigurationVersion int                            `json:"configurationVersion"`
	ConfigHash           string                         `json:"configHash"`
	Recommendation       model.Recommendation           `json:"recommendation"`
	WeightedScore        float64                        `json:"weightedScore"`
	Decision             *model.ReferralDecisionFactors `json:"decision"`
	CreatedAt            time.Time                      `json:"createdAt"`
}

// NewDecisionRecord builds a record for d evaluated under cfg.
func NewDecisionRecord(d *model.ReferralDecisionFactors, cfg *model.ReferralConfiguration) DecisionRecord {
	return DecisionRecord{
		ID:                   uuid.New().String(),
		ReferralID:           d.ReferralID,
		ConfigurationID:      d.ConfigurationID,
		ConfigurationVersion: d.ConfigurationVersion,
		ConfigHash:           ConfigHash(cfg),
		Recommendation:       d.Overall.Recommendation,
		WeightedScore:        d.Overall.WeightedScore,
		Decision:             d,
		CreatedAt:            time.Now().UTC(),
	}
}

// ConfigHash returns a short hex digest of the configuration's JSON form so
// decisions can be tied to the exact rules that produced them.
func ConfigHash(cfg *model.ReferralConfiguration) string {
	if cfg == nil {
		return ""
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16])
}

// ConfigurationReader loads configurations by ID.
type ConfigurationReader interface {
	// GetConfiguration returns the latest version of a configuration.
	GetConfiguration(ctx context.Context, id string) (*model.ReferralConfiguration, error)
}

// Store defines the persistence interface for configurations and decisions.
type Store interface {
	ConfigurationReader

	// Configurations
	GetConfigurationVersion(ctx context.Context, id string, version int) (*model.ReferralConfiguration, error)
	SaveConfiguration(ctx context.Context, cfg *model.ReferralConfiguration) (*model.ReferralConfiguration, error)
	ListConfigurations(ctx context.Context, filter ListFilter) ([]model.ReferralConfiguration, error)

	// Decisions
	SaveDecision(ctx context.Context, rec DecisionRecord) error
	SaveDecisions(ctx context.Context, recs []DecisionRecord) error
	ListDecisions(ctx context.Context, referralID string, filter ListFilter) ([]DecisionRecord, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// nextVersion stamps cfg as the version following prev, which may be nil
// for a new configuration. It returns a copy; cfg is not modified.
func nextVersion(cfg, prev *model.ReferralConfiguration, now time.Time) *model.ReferralConfiguration {
	out := cfg.Clone()
	out.UpdatedAt = now
	if prev == nil {
		out.Version = 1
		out.CreatedAt = now
		return out
	}
	out.Version = prev.Version + 1
	out.CreatedAt = prev.CreatedAt
	return out
}
