package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRoles = Roles{
	Admin:     "role-admin",
	Verified:  "role-verified",
	Voter:     "role-voter",
	Submitter: "role-submitter",
}

func TestEvaluate(t *testing.T) {
	p := Policy{Roles: testRoles, AdminIDs: []string{"root"}}

	tests := []struct {
		name    string
		subject Subject
		want    Capabilities
	}{
		{"no roles", Subject{ID: "1"}, 0},
		{"verified", Subject{ID: "1", Roles: []string{"role-verified"}}, CapVerified},
		{"verified voter", Subject{ID: "1", Roles: []string{"role-voter", "role-verified"}}, CapVerified | CapVoter},
		{"admin by role", Subject{ID: "1", Roles: []string{"role-admin"}}, CapAdmin},
		{"admin by allow-list", Subject{ID: "root"}, CapAdmin},
		{"submitter", Subject{ID: "1", Roles: []string{"role-submitter", "unrelated"}}, CapSubmitter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Evaluate(tt.subject))
		})
	}
}

func TestEvaluate_EmptyRoleIDNeverMatches(t *testing.T) {
	p := Policy{}
	assert.Equal(t, Capabilities(0), p.Evaluate(Subject{ID: "1", Roles: []string{""}}))
}

func TestCheck(t *testing.T) {
	p := Policy{
		Roles:                  testRoles,
		RequireVerifiedEmail:   true,
		RequireVerifiedRole:    true,
		ExcludeSubmitters:      true,
		AdminsBypassRoleChecks: true,
	}

	tests := []struct {
		name    string
		subject Subject
		allowed bool
	}{
		{"verified member", Subject{EmailVerified: true, Roles: []string{"role-verified"}}, true},
		{"unverified email", Subject{EmailVerified: false, Roles: []string{"role-verified"}}, false},
		{"missing verified role", Subject{EmailVerified: true}, false},
		{"submitter excluded", Subject{EmailVerified: true, Roles: []string{"role-verified", "role-submitter"}}, false},
		{"admin bypasses roles", Subject{EmailVerified: true, Roles: []string{"role-admin"}}, true},
		{"admin still needs verified email", Subject{Roles: []string{"role-admin"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Authorize(tt.subject)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			var denied *DeniedError
			require.True(t, errors.As(err, &denied), "expected DeniedError, got %v", err)
			assert.NotEmpty(t, denied.Reason)
		})
	}
}

func TestCheck_VoterRoleRequired(t *testing.T) {
	p := Policy{Roles: testRoles, RequireVoterRole: true}

	_, err := p.Authorize(Subject{Roles: []string{"role-verified"}})
	assert.Error(t, err)

	caps, err := p.Authorize(Subject{Roles: []string{"role-voter"}})
	assert.NoError(t, err)
	assert.True(t, caps.Has(CapVoter))
}

func TestCheck_NoThresholds(t *testing.T) {
	_, err := Policy{}.Authorize(Subject{ID: "anyone"})
	assert.NoError(t, err)
}

func TestCapabilitiesString(t *testing.T) {
	assert.Equal(t, "none", Capabilities(0).String())
	assert.Equal(t, "verified,admin", (CapVerified | CapAdmin).String())
}

func TestLoadFile_OverlaysBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
roles:
  voter: "887005159606079489"
admin_ids: ["1", "2"]
require_voter_role: true
exclude_submitters: false
`), 0o600))

	base := Policy{Roles: testRoles, ExcludeSubmitters: true, RequireVerifiedEmail: true}
	p, err := LoadFile(path, base)
	require.NoError(t, err)

	assert.Equal(t, "887005159606079489", p.Roles.Voter)
	assert.Equal(t, "role-admin", p.Roles.Admin, "unset roles keep base values")
	assert.Equal(t, []string{"1", "2"}, p.AdminIDs)
	assert.True(t, p.RequireVoterRole)
	assert.False(t, p.ExcludeSubmitters)
	assert.True(t, p.RequireVerifiedEmail)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), Policy{})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles: [not, a, map]"), 0o600))
	_, err = LoadFile(path, Policy{})
	assert.Error(t, err)
}
