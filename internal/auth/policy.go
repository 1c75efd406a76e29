// Package auth maps community role memberships to voting capabilities.
//
// Role ids and eligibility thresholds are configuration: the round's rules have
// changed between editions (verified-only, submitters excluded, no role check),
// so nothing here hard-codes a particular rule set.
package auth

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Capabilities is a set of capability flags derived from a caller's roles.
type Capabilities uint8

const (
	CapVerified Capabilities = 1 << iota
	CapVoter
	CapAdmin
	CapSubmitter
)

var capabilityNames = []struct {
	cap  Capabilities
	name string
}{
	{CapVerified, "verified"},
	{CapVoter, "voter"},
	{CapAdmin, "admin"},
	{CapSubmitter, "submitter"},
}

// Has reports whether every flag in c is set.
func (s Capabilities) Has(c Capabilities) bool {
	return s&c == c
}

func (s Capabilities) String() string {
	var names []string
	for _, cn := range capabilityNames {
		if s.Has(cn.cap) {
			names = append(names, cn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Roles holds the community role ids that grant each capability.
// An empty id never matches.
type Roles struct {
	Admin     string `yaml:"admin"`
	Verified  string `yaml:"verified"`
	Voter     string `yaml:"voter"`
	Submitter string `yaml:"submitter"`
}

// Policy decides who may act as a panelist and who is an administrator.
type Policy struct {
	Roles    Roles    `yaml:"roles"`
	AdminIDs []string `yaml:"admin_ids"`

	RequireVerifiedEmail bool `yaml:"require_verified_email"`
	RequireVerifiedRole  bool `yaml:"require_verified_role"`
	RequireVoterRole     bool `yaml:"require_voter_role"`
	ExcludeSubmitters    bool `yaml:"exclude_submitters"`

	// AdminsBypassRoleChecks lets administrators in without the verified/voter
	// roles and even when they hold the submitter role.
	AdminsBypassRoleChecks bool `yaml:"admins_bypass_role_checks"`
}

// Subject is the verified identity being evaluated.
type Subject struct {
	ID            string
	EmailVerified bool
	Roles         []string
}

// DeniedError explains why a subject is not eligible.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return e.Reason
}

// Evaluate returns the capability set granted by the subject's roles and the
// admin allow-list.
func (p Policy) Evaluate(s Subject) Capabilities {
	var caps Capabilities
	has := func(roleID string) bool {
		return roleID != "" && slices.Contains(s.Roles, roleID)
	}

	if has(p.Roles.Verified) {
		caps |= CapVerified
	}
	if has(p.Roles.Voter) {
		caps |= CapVoter
	}
	if has(p.Roles.Submitter) {
		caps |= CapSubmitter
	}
	if has(p.Roles.Admin) || slices.Contains(p.AdminIDs, s.ID) {
		caps |= CapAdmin
	}
	return caps
}

// Check enforces the configured thresholds. It returns a *DeniedError when the
// subject may not participate.
func (p Policy) Check(s Subject, caps Capabilities) error {
	if p.RequireVerifiedEmail && !s.EmailVerified {
		return &DeniedError{Reason: "Your Discord email is unverified"}
	}

	if caps.Has(CapAdmin) && p.AdminsBypassRoleChecks {
		return nil
	}

	if p.RequireVerifiedRole && !caps.Has(CapVerified) {
		return &DeniedError{Reason: "The ability to log in to vote is only available for verified community members"}
	}
	if p.RequireVoterRole && !caps.Has(CapVoter) {
		return &DeniedError{Reason: "You are not registered as a panelist for this round"}
	}
	if p.ExcludeSubmitters && caps.Has(CapSubmitter) {
		return &DeniedError{Reason: "You are ineligible to vote because you have submitted a project for this round"}
	}
	return nil
}

// Authorize evaluates and checks s in one step.
func (p Policy) Authorize(s Subject) (Capabilities, error) {
	caps := p.Evaluate(s)
	if err := p.Check(s, caps); err != nil {
		return caps, err
	}
	return caps, nil
}

// LoadFile overlays the YAML policy at path on top of base. Fields absent from
// the file keep their base values.
func LoadFile(path string, base Policy) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read policy file: %w", err)
	}

	policy := base
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return base, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	return policy, nil
}
