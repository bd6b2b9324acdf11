package scope

import (
	"strings"
)

// Decide computes the granted scope: the requested tokens that appear in the
// client's allowed set, compared by exact canonical string match. There is no
// sub-range or fuzzy matching between structured scopes. Token order of the
// request is preserved in the grant.
func Decide(requested string, allowed []string) ([]string, error) {
	reqTokens, err := Parse(requested)
	if err != nil {
		return nil, err
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		tok, err := ParseToken(a)
		if err != nil {
			// An unparseable allowed entry can never match; skip it rather
			// than failing the whole decision on stale client metadata.
			continue
		}
		allowedSet[tok.Canonical()] = true
	}

	var granted []string
	for _, tok := range reqTokens {
		if allowedSet[tok.Canonical()] {
			granted = append(granted, tok.Canonical())
		}
	}
	return granted, nil
}

// GrantedString is Decide joined back into a wire scope string.
func GrantedString(requested string, allowed []string) (string, error) {
	granted, err := Decide(requested, allowed)
	if err != nil {
		return "", err
	}
	return strings.Join(granted, " "), nil
}

// UsagePointDenial records a requested usage point that was refused,
// with the reason it was refused.
type UsagePointDenial struct {
	UsagePointID string `json:"usage_point_id"`
	Reason       string `json:"reason"`
}

// ReasonNotOwned marks a usage point requested by the third party but not
// owned by the retail customer.
const ReasonNotOwned = "not_owned"

// AuthorizeUsagePoints intersects the requested usage point ids against the
// customer's owned set. Every requested-but-not-owned id is reported as an
// explicit denial, never silently dropped.
func AuthorizeUsagePoints(requested, owned []string) (authorized []string, denied []UsagePointDenial) {
	ownedSet := make(map[string]bool, len(owned))
	for _, id := range owned {
		ownedSet[id] = true
	}

	for _, id := range requested {
		if ownedSet[id] {
			authorized = append(authorized, id)
		} else {
			denied = append(denied, UsagePointDenial{UsagePointID: id, Reason: ReasonNotOwned})
		}
	}
	return authorized, denied
}
