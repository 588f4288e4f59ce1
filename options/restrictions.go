package options

import "edgetun/internal/proto"

// CIDRRestrictions accumulates the client address ranges an edge should
// admit or refuse. Entries are kept verbatim in insertion order.
type CIDRRestrictions struct {
	// Allowed rejects connections that do not match one of these CIDRs.
	Allowed []string
	// Denied rejects connections that match one of these CIDRs.
	Denied []string
}

// Allow appends cidrs to the allow list.
func (r *CIDRRestrictions) Allow(cidrs ...string) {
	r.Allowed = append(r.Allowed, cidrs...)
}

// Deny appends cidrs to the deny list.
func (r *CIDRRestrictions) Deny(cidrs ...string) {
	r.Denied = append(r.Denied, cidrs...)
}

// IsEmpty reports whether neither list has an entry.
func (r CIDRRestrictions) IsEmpty() bool {
	return len(r.Allowed) == 0 && len(r.Denied) == 0
}

func (r CIDRRestrictions) toProto() *proto.IPRestriction {
	return &proto.IPRestriction{
		AllowCIDRs: cloneStrings(r.Allowed),
		DenyCIDRs:  cloneStrings(r.Denied),
	}
}

func (r CIDRRestrictions) clone() CIDRRestrictions {
	return CIDRRestrictions{
		Allowed: cloneStrings(r.Allowed),
		Denied:  cloneStrings(r.Denied),
	}
}

// cloneStrings copies s, keeping nil as nil and empty as empty.
func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
