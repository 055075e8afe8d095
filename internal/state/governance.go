package state

// Permissions is a capability bitmask held by each governance member.
// Admin deliberately excludes VIEW_METRICS: a read-only monitoring grant is
// not part of the operational role composition.
type Permissions uint64

const (
	PermUpdatePrice Permissions = 1 << iota
	PermTriggerCircuitBreaker
	PermModifyConfig
	PermViewMetrics
	PermEmergencyHalt
	PermAddFeed
	PermRemoveFeed

	PermAdminAll = PermUpdatePrice | PermTriggerCircuitBreaker | PermModifyConfig |
		PermEmergencyHalt | PermAddFeed | PermRemoveFeed
)

func (p Permissions) Has(required Permissions) bool { return p&required != 0 }

// HasAll reports whether every bit of the required set is present. Used for
// role verification where a partial grant must not pass.
func (p Permissions) HasAll(required Permissions) bool { return p&required == required }

func (p Permissions) IsAdmin() bool { return p.HasAll(PermAdminAll) }

func (p *Permissions) Grant(perm Permissions)  { *p |= perm }
func (p *Permissions) Revoke(perm Permissions) { *p &^= perm }

// Member pairs an identity with its capability bitmask. Unused slots hold
// the zero identity and no permissions.
type Member struct {
	Key         Identity
	Permissions Permissions
}

// GovernanceState is the per-asset multisig membership table plus the
// timelocked-proposal configuration the engine validates at initialization.
// The proposal/vote/timelock transition logic itself is not part of the
// engine; the fields are enforced configuration surfaced to consumers.
type GovernanceState struct {
	Members           [MaxMultisigMembers]Member
	ActiveMemberCount uint8

	MultisigThreshold uint8
	VotingPeriod      int64 // seconds
	ExecutionDelay    int64 // seconds
	TimelockDuration  int64 // seconds, initially equals ExecutionDelay
	QuorumThreshold   uint16
	ProposalThreshold uint64
}

// FindMember locates a member by identity within the active slots. Stale
// data beyond ActiveMemberCount never authorizes anything.
func (gs *GovernanceState) FindMember(key Identity) (int, Permissions, bool) {
	for i := 0; i < int(gs.ActiveMemberCount); i++ {
		if gs.Members[i].Key == key {
			return i, gs.Members[i].Permissions, true
		}
	}
	return 0, 0, false
}

// CheckMemberPermission is the authorization gate every mutating operation
// funnels through. It distinguishes an unknown caller from a known member
// lacking the required bit.
func (gs *GovernanceState) CheckMemberPermission(caller Identity, required Permissions) error {
	_, perms, ok := gs.FindMember(caller)
	if !ok {
		return ErrUnauthorizedCaller
	}
	if !perms.Has(required) {
		return ErrInsufficientPermissions
	}
	return nil
}

// GrantMemberPermission adds capability bits to an active member slot.
func (gs *GovernanceState) GrantMemberPermission(index int, perm Permissions) error {
	if index < 0 || index >= int(gs.ActiveMemberCount) {
		return ErrUnauthorizedCaller
	}
	gs.Members[index].Permissions.Grant(perm)
	return nil
}

// RevokeMemberPermission removes capability bits from an active member slot.
func (gs *GovernanceState) RevokeMemberPermission(index int, perm Permissions) error {
	if index < 0 || index >= int(gs.ActiveMemberCount) {
		return ErrUnauthorizedCaller
	}
	gs.Members[index].Permissions.Revoke(perm)
	return nil
}

// GovernanceConfig carries the initialization-time governance parameters.
type GovernanceConfig struct {
	Members           []Member
	MultisigThreshold uint8
	VotingPeriod      int64
	ExecutionDelay    int64
	QuorumThreshold   uint16
	ProposalThreshold uint64
}

// Validate applies the governance bounds and membership rules. authority is
// the initializing caller, which must appear in the member list holding the
// full admin set so governance can never be created locked out.
func (gc *GovernanceConfig) Validate(authority Identity) error {
	if len(gc.Members) == 0 || len(gc.Members) > MaxMultisigMembers {
		return ErrInvalidMemberCount
	}
	if gc.MultisigThreshold == 0 || int(gc.MultisigThreshold) > len(gc.Members) {
		return ErrInvalidMultisigThreshold
	}
	if gc.VotingPeriod <= 0 || gc.ExecutionDelay < 0 {
		return ErrInvalidTimingParameters
	}
	if gc.QuorumThreshold == 0 || gc.QuorumThreshold > MaxQuorumThreshold {
		return ErrInvalidQuorumThreshold
	}
	if gc.ProposalThreshold == 0 {
		return ErrInvalidProposalThreshold
	}

	authorityAdmin := false
	for i, m := range gc.Members {
		if m.Key.IsZero() {
			return ErrInvalidMemberKey
		}
		if m.Key == authority {
			if !m.Permissions.IsAdmin() {
				return ErrAuthorityNotAdminMember
			}
			authorityAdmin = true
		}
		for j := i + 1; j < len(gc.Members); j++ {
			if m.Key == gc.Members[j].Key {
				return ErrDuplicateMember
			}
		}
	}
	if !authorityAdmin {
		return ErrAuthorityNotAdminMember
	}
	return nil
}

// NewGovernanceState materializes the validated config into the fixed-slot
// member table. Slots beyond the member count stay zeroed.
func NewGovernanceState(gc *GovernanceConfig) *GovernanceState {
	gs := &GovernanceState{
		ActiveMemberCount: uint8(len(gc.Members)),
		MultisigThreshold: gc.MultisigThreshold,
		VotingPeriod:      gc.VotingPeriod,
		ExecutionDelay:    gc.ExecutionDelay,
		TimelockDuration:  gc.ExecutionDelay,
		QuorumThreshold:   gc.QuorumThreshold,
		ProposalThreshold: gc.ProposalThreshold,
	}
	copy(gs.Members[:], gc.Members)
	return gs
}
