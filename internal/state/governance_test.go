package state_test

import (
	"errors"
	"testing"

	"TierOracle/internal/state"
)

func member(b byte, perms state.Permissions) state.Member {
	return state.Member{Key: ident(b), Permissions: perms}
}

func validGovConfig(authority state.Identity) state.GovernanceConfig {
	return state.GovernanceConfig{
		Members: []state.Member{
			{Key: authority, Permissions: state.PermAdminAll},
			member(20, state.PermUpdatePrice),
		},
		MultisigThreshold: 1,
		VotingPeriod:      3600,
		ExecutionDelay:    600,
		QuorumThreshold:   5000,
		ProposalThreshold: 1,
	}
}

// ============================================================================
// Test: Permissions
// ============================================================================

func TestPermissions_AdminExcludesViewMetrics(t *testing.T) {
	if state.PermAdminAll.Has(state.PermViewMetrics) {
		t.Error("admin set should not include VIEW_METRICS")
	}
	for _, p := range []state.Permissions{
		state.PermUpdatePrice,
		state.PermTriggerCircuitBreaker,
		state.PermModifyConfig,
		state.PermEmergencyHalt,
		state.PermAddFeed,
		state.PermRemoveFeed,
	} {
		if !state.PermAdminAll.Has(p) {
			t.Errorf("admin set missing bit %b", p)
		}
	}
}

func TestPermissions_IsAdminRequiresFullSet(t *testing.T) {
	if !state.PermAdminAll.IsAdmin() {
		t.Error("full admin set should be admin")
	}
	if !(state.PermAdminAll | state.PermViewMetrics).IsAdmin() {
		t.Error("extra bits must not break the admin check")
	}

	partial := state.PermAdminAll &^ state.PermRemoveFeed
	if partial.IsAdmin() {
		t.Error("a partial grant must not pass as admin")
	}
}

func TestPermissions_GrantRevoke(t *testing.T) {
	var p state.Permissions
	p.Grant(state.PermUpdatePrice | state.PermAddFeed)
	if !p.Has(state.PermUpdatePrice) || !p.Has(state.PermAddFeed) {
		t.Error("granted bits missing")
	}
	p.Revoke(state.PermAddFeed)
	if p.Has(state.PermAddFeed) {
		t.Error("revoked bit still present")
	}
	if !p.Has(state.PermUpdatePrice) {
		t.Error("revoke disturbed an unrelated bit")
	}
}

// ============================================================================
// Test: FindMember / CheckMemberPermission
// ============================================================================

func TestFindMember_IgnoresStaleSlots(t *testing.T) {
	gs := state.NewGovernanceState(&state.GovernanceConfig{
		Members:           []state.Member{member(1, state.PermAdminAll)},
		MultisigThreshold: 1,
		VotingPeriod:      3600,
		QuorumThreshold:   5000,
		ProposalThreshold: 1,
	})

	// Write a member beyond the active range; it must never authorize
	gs.Members[5] = member(9, state.PermAdminAll)

	if _, _, found := gs.FindMember(ident(9)); found {
		t.Error("member beyond ActiveMemberCount should not be found")
	}
	if _, _, found := gs.FindMember(ident(1)); !found {
		t.Error("active member should be found")
	}
}

func TestCheckMemberPermission_ErrorTaxonomy(t *testing.T) {
	gs := state.NewGovernanceState(&state.GovernanceConfig{
		Members:           []state.Member{member(1, state.PermUpdatePrice)},
		MultisigThreshold: 1,
		VotingPeriod:      3600,
		QuorumThreshold:   5000,
		ProposalThreshold: 1,
	})

	if err := gs.CheckMemberPermission(ident(1), state.PermUpdatePrice); err != nil {
		t.Errorf("member with bit: %v", err)
	}

	err := gs.CheckMemberPermission(ident(2), state.PermUpdatePrice)
	if !errors.Is(err, state.ErrUnauthorizedCaller) {
		t.Errorf("unknown caller: got %v, want ErrUnauthorizedCaller", err)
	}

	err = gs.CheckMemberPermission(ident(1), state.PermModifyConfig)
	if !errors.Is(err, state.ErrInsufficientPermissions) {
		t.Errorf("missing bit: got %v, want ErrInsufficientPermissions", err)
	}
}

func TestGrantRevokeMemberPermission_Bounds(t *testing.T) {
	gs := state.NewGovernanceState(&state.GovernanceConfig{
		Members:           []state.Member{member(1, state.PermUpdatePrice)},
		MultisigThreshold: 1,
		VotingPeriod:      3600,
		QuorumThreshold:   5000,
		ProposalThreshold: 1,
	})

	if err := gs.GrantMemberPermission(0, state.PermAddFeed); err != nil {
		t.Errorf("grant in range: %v", err)
	}
	if _, perms, _ := gs.FindMember(ident(1)); !perms.Has(state.PermAddFeed) {
		t.Error("granted bit not visible")
	}

	if err := gs.GrantMemberPermission(1, state.PermAddFeed); err == nil {
		t.Error("grant beyond active range should fail")
	}
	if err := gs.RevokeMemberPermission(-1, state.PermAddFeed); err == nil {
		t.Error("negative index should fail")
	}
}

// ============================================================================
// Test: GovernanceConfig.Validate
// ============================================================================

func TestGovernanceValidate_Accepts(t *testing.T) {
	gc := validGovConfig(ident(1))
	if err := gc.Validate(ident(1)); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestGovernanceValidate_MemberCount(t *testing.T) {
	gc := validGovConfig(ident(1))
	gc.Members = nil
	if err := gc.Validate(ident(1)); !errors.Is(err, state.ErrInvalidMemberCount) {
		t.Errorf("empty members: got %v, want ErrInvalidMemberCount", err)
	}

	gc = validGovConfig(ident(1))
	gc.Members = gc.Members[:1]
	for i := 2; i <= state.MaxMultisigMembers; i++ {
		gc.Members = append(gc.Members, member(byte(i+50), state.PermUpdatePrice))
	}
	gc.Members = append(gc.Members, member(200, state.PermUpdatePrice))
	if err := gc.Validate(ident(1)); !errors.Is(err, state.ErrInvalidMemberCount) {
		t.Errorf("17 members: got %v, want ErrInvalidMemberCount", err)
	}
}

func TestGovernanceValidate_MultisigThreshold(t *testing.T) {
	gc := validGovConfig(ident(1))
	gc.MultisigThreshold = 0
	if err := gc.Validate(ident(1)); !errors.Is(err, state.ErrInvalidMultisigThreshold) {
		t.Errorf("zero threshold: got %v, want ErrInvalidMultisigThreshold", err)
	}

	gc.MultisigThreshold = uint8(len(gc.Members) + 1)
	if err := gc.Validate(ident(1)); !errors.Is(err, state.ErrInvalidMultisigThreshold) {
		t.Errorf("threshold above member count: got %v, want ErrInvalidMultisigThreshold", err)
	}
}

func TestGovernanceValidate_Timing(t *testing.T) {
	gc := validGovConfig(ident(1))
	gc.VotingPeriod = 0
	if err := gc.Validate(ident(1)); !errors.Is(err, state.ErrInvalidTimingParameters) {
		t.Errorf("zero voting period: got %v, want ErrInvalidTimingParameters", err)
	}

	gc = validGovConfig(ident(1))
	gc.ExecutionDelay = -1
	if err := gc.Validate(ident(1)); !errors.Is(err, state.ErrInvalidTimingParameters) {
		t.Errorf("negative delay: got %v, want ErrInvalidTimingParameters", err)
	}

	gc = validGovConfig(ident(1))
	gc.ExecutionDelay = 0
	if err := gc.Validate(ident(1)); err != nil {
		t.Errorf("zero delay should be accepted: %v", err)
	}
}

func TestGovernanceValidate_Thresholds(t *testing.T) {
	gc := validGovConfig(ident(1))
	gc.QuorumThreshold = 0
	if err := gc.Validate(ident(1)); !errors.Is(err, state.ErrInvalidQuorumThreshold) {
		t.Errorf("zero quorum: got %v, want ErrInvalidQuorumThreshold", err)
	}

	gc = validGovConfig(ident(1))
	gc.QuorumThreshold = state.MaxQuorumThreshold + 1
	if err := gc.Validate(ident(1)); !errors.Is(err, state.ErrInvalidQuorumThreshold) {
		t.Errorf("quorum above max: got %v, want ErrInvalidQuorumThreshold", err)
	}

	gc = validGovConfig(ident(1))
	gc.ProposalThreshold = 0
	if err := gc.Validate(ident(1)); !errors.Is(err, state.ErrInvalidProposalThreshold) {
		t.Errorf("zero proposal threshold: got %v, want ErrInvalidProposalThreshold", err)
	}
}

func TestGovernanceValidate_Membership(t *testing.T) {
	gc := validGovConfig(ident(1))
	gc.Members[1].Key = state.Identity{}
	if err := gc.Validate(ident(1)); !errors.Is(err, state.ErrInvalidMemberKey) {
		t.Errorf("zero member key: got %v, want ErrInvalidMemberKey", err)
	}

	gc = validGovConfig(ident(1))
	gc.Members[1] = gc.Members[0]
	if err := gc.Validate(ident(1)); !errors.Is(err, state.ErrDuplicateMember) {
		t.Errorf("duplicate member: got %v, want ErrDuplicateMember", err)
	}

	// Authority missing from the member list
	gc = validGovConfig(ident(1))
	if err := gc.Validate(ident(99)); !errors.Is(err, state.ErrAuthorityNotAdminMember) {
		t.Errorf("absent authority: got %v, want ErrAuthorityNotAdminMember", err)
	}

	// Authority present but without the full admin set
	gc = validGovConfig(ident(1))
	gc.Members[0].Permissions = state.PermUpdatePrice
	if err := gc.Validate(ident(1)); !errors.Is(err, state.ErrAuthorityNotAdminMember) {
		t.Errorf("non-admin authority: got %v, want ErrAuthorityNotAdminMember", err)
	}
}

// ============================================================================
// Test: NewGovernanceState
// ============================================================================

func TestNewGovernanceState_Materializes(t *testing.T) {
	gc := validGovConfig(ident(1))
	gs := state.NewGovernanceState(&gc)

	if gs.ActiveMemberCount != 2 {
		t.Errorf("member count: got %d, want 2", gs.ActiveMemberCount)
	}
	if gs.TimelockDuration != gc.ExecutionDelay {
		t.Errorf("timelock: got %d, want %d", gs.TimelockDuration, gc.ExecutionDelay)
	}
	if gs.Members[0].Key != ident(1) || gs.Members[1].Key != ident(20) {
		t.Error("member table should preserve config order")
	}
	if !gs.Members[2].Key.IsZero() {
		t.Error("slots beyond the member count should stay zeroed")
	}
}
