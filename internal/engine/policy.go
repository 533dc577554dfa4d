package engine

import (
	"errors"
	"fmt"
	"slices"
)

// Default policy values. Heights are in blocks of roughly ten minutes.
const (
	DefaultLifetime          Height = 1008  // one week
	DefaultMaxLifetime       Height = 52560 // one year
	DefaultMaxExtension      Height = 1008
	DefaultMinRecoveryDelay  Height = 144 // one day
	DefaultMaxRecoveryDelay  Height = 52560
	DefaultMaxMetadataLength        = 256
)

// DefaultMetadataCategories is the closed set of annotation categories.
var DefaultMetadataCategories = []string{"note", "invoice", "shipping", "compliance", "evidence"}

// Policy is the deployment configuration of an engine. It is fixed at
// construction; tests substitute arbitrary identities freely.
type Policy struct {
	// Admin is the single privileged identity.
	Admin Principal `json:"admin"`

	// Custodian is the engine's own holding identity. Locked value sits here.
	Custodian Principal `json:"custodian"`

	// Lifetime is the default validity window applied at creation.
	Lifetime    Height `json:"lifetime"`
	MaxLifetime Height `json:"max_lifetime"`

	// MaxExtension bounds a single Extend delta.
	MaxExtension Height `json:"max_extension"`

	// Bounds on the SetupTimeRecovery delay.
	MinRecoveryDelay Height `json:"min_recovery_delay"`
	MaxRecoveryDelay Height `json:"max_recovery_delay"`

	// IDOrigin is the first vault id issued.
	IDOrigin uint64 `json:"id_origin"`

	MetadataCategories []string `json:"metadata_categories"`
	MaxMetadataLength  int      `json:"max_metadata_length"`
}

// DefaultPolicy returns a policy with every bound at its default.
func DefaultPolicy(admin, custodian Principal) Policy {
	return Policy{
		Admin:              admin,
		Custodian:          custodian,
		Lifetime:           DefaultLifetime,
		MaxLifetime:        DefaultMaxLifetime,
		MaxExtension:       DefaultMaxExtension,
		MinRecoveryDelay:   DefaultMinRecoveryDelay,
		MaxRecoveryDelay:   DefaultMaxRecoveryDelay,
		IDOrigin:           1,
		MetadataCategories: slices.Clone(DefaultMetadataCategories),
		MaxMetadataLength:  DefaultMaxMetadataLength,
	}
}

// Validate checks internal consistency of the policy.
func (p Policy) Validate() error {
	var errs []error
	if p.Admin == "" {
		errs = append(errs, errors.New("admin is required"))
	}
	if p.Custodian == "" {
		errs = append(errs, errors.New("custodian is required"))
	}
	if p.Admin != "" && p.Admin == p.Custodian {
		errs = append(errs, errors.New("admin and custodian must differ"))
	}
	if p.Lifetime == 0 {
		errs = append(errs, errors.New("lifetime must be positive"))
	}
	if p.MaxLifetime < p.Lifetime {
		errs = append(errs, fmt.Errorf("max_lifetime %d is below lifetime %d", p.MaxLifetime, p.Lifetime))
	}
	if p.MaxExtension == 0 {
		errs = append(errs, errors.New("max_extension must be positive"))
	}
	if p.MinRecoveryDelay == 0 || p.MaxRecoveryDelay < p.MinRecoveryDelay {
		errs = append(errs, fmt.Errorf("recovery delay bounds [%d,%d] are invalid", p.MinRecoveryDelay, p.MaxRecoveryDelay))
	}
	if p.IDOrigin == 0 {
		errs = append(errs, errors.New("id_origin must be at least 1"))
	}
	if len(p.MetadataCategories) == 0 {
		errs = append(errs, errors.New("at least one metadata category is required"))
	}
	if p.MaxMetadataLength <= 0 {
		errs = append(errs, errors.New("max_metadata_length must be positive"))
	}
	return errors.Join(errs...)
}
