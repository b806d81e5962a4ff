package cache

// Rank is the trust level of a cached entry. Ranks are ordered so a
// higher-ranked entry is allowed to replace a lower-ranked one; the cache
// itself does not enforce this (see DESIGN.md): Insert overwrites any
// existing entry whatever its rank.
type Rank uint8

const (
	RankBad      Rank = iota // Answer came from a source known to be wrong (e.g. policy override under test).
	RankInsecure             // DNSSEC-insecure: provably outside any signed zone.
	RankNonAuth              // Unverified, non-authoritative data (e.g. glue, additional section).
	RankAuth                 // Authoritative but not DNSSEC-validated.
	RankSecure               // DNSSEC-validated.
)

// String returns the conventional name of the rank.
func (r Rank) String() string {
	switch r {
	case RankBad:
		return "BAD"
	case RankInsecure:
		return "INSECURE"
	case RankNonAuth:
		return "NONAUTH"
	case RankAuth:
		return "AUTH"
	case RankSecure:
		return "SECURE"
	default:
		return "UNKNOWN"
	}
}
