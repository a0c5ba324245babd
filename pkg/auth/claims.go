package auth

import (
	"encoding/json"
	"slices"
	"sort"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// Well-known claim names.
const (
	ClaimSubject          = "sub"
	ClaimName             = "name"
	ClaimEmail            = "email"
	ClaimEmails           = "emails"
	ClaimNonce            = "nonce"
	ClaimRole             = "role"
	ClaimTenant           = "tenant"
	ClaimAvailableTenants = "available_tenants"
	ClaimClientID         = "client_id"
	ClaimType             = "type"
	ClaimUserID           = "userId"
	ClaimIssuer           = "iss"
	ClaimAudience         = "aud"
	ClaimExpiry           = "exp"
	ClaimNotBefore        = "nbf"
	ClaimIssuedAt         = "iat"
)

// numericClaims are encoded as JSON numbers rather than strings.
var numericClaims = []string{ClaimExpiry, ClaimNotBefore, ClaimIssuedAt}

// Claim is a single name/value fact.
type Claim struct {
	Type  string
	Value string
}

// ClaimSet is an ordered multimap of claims. A name may appear any number
// of times (role, available_tenants). Lookups never fail: absent claims
// are reported through the boolean or an empty slice.
//
// The zero value is an empty set ready for Add.
type ClaimSet struct {
	claims []Claim
}

// NewClaimSet returns a set holding claims in order.
func NewClaimSet(claims ...Claim) ClaimSet {
	return ClaimSet{claims: append([]Claim(nil), claims...)}
}

// Add appends a claim.
func (c *ClaimSet) Add(typ, value string) {
	c.claims = append(c.claims, Claim{Type: typ, Value: value})
}

// Get returns the first value of typ.
func (c ClaimSet) Get(typ string) (string, bool) {
	for _, cl := range c.claims {
		if cl.Type == typ {
			return cl.Value, true
		}
	}
	return "", false
}

// All returns every value of typ in order.
func (c ClaimSet) All(typ string) []string {
	var out []string
	for _, cl := range c.claims {
		if cl.Type == typ {
			out = append(out, cl.Value)
		}
	}
	return out
}

// Has reports whether at least one claim of typ is present.
func (c ClaimSet) Has(typ string) bool {
	_, ok := c.Get(typ)
	return ok
}

// Subject returns the "sub" claim.
func (c ClaimSet) Subject() (string, bool) {
	return c.Get(ClaimSubject)
}

// Len returns the number of claims, counting repeats.
func (c ClaimSet) Len() int { return len(c.claims) }

// Claims returns a copy of the claims in order.
func (c ClaimSet) Claims() []Claim {
	return append([]Claim(nil), c.claims...)
}

// Keep returns a new set with only the claims whose type is in types.
func (c ClaimSet) Keep(types ...string) ClaimSet {
	return c.filter(func(cl Claim) bool { return slices.Contains(types, cl.Type) })
}

// Without returns a new set with every claim whose type is in types removed.
func (c ClaimSet) Without(types ...string) ClaimSet {
	return c.filter(func(cl Claim) bool { return !slices.Contains(types, cl.Type) })
}

func (c ClaimSet) filter(keep func(Claim) bool) ClaimSet {
	out := ClaimSet{}
	for _, cl := range c.claims {
		if keep(cl) {
			out.claims = append(out.claims, cl)
		}
	}
	return out
}

// MapClaims converts the set to token claims. A name seen once becomes a
// string, a repeated name becomes a string array in insertion order, and
// exp/nbf/iat become integers.
func (c ClaimSet) MapClaims() jwt.MapClaims {
	grouped := make(map[string][]string)
	for _, cl := range c.claims {
		grouped[cl.Type] = append(grouped[cl.Type], cl.Value)
	}

	out := make(jwt.MapClaims, len(grouped))
	for name, values := range grouped {
		if slices.Contains(numericClaims, name) {
			if n, err := strconv.ParseInt(values[0], 10, 64); err == nil {
				out[name] = n
				continue
			}
		}
		if len(values) == 1 {
			out[name] = values[0]
		} else {
			out[name] = values
		}
	}
	return out
}

// ClaimSetFromMap flattens decoded token claims into a ClaimSet. Array
// values expand into one claim per element. Names are visited in sorted
// order so the result is deterministic.
func ClaimSetFromMap(m jwt.MapClaims) ClaimSet {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var out ClaimSet
	for _, name := range names {
		switch v := m[name].(type) {
		case []any:
			for _, elem := range v {
				out.Add(name, claimString(elem))
			}
		case []string:
			for _, elem := range v {
				out.Add(name, elem)
			}
		default:
			out.Add(name, claimString(v))
		}
	}
	return out
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
