package cache

import (
	"strings"

	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/rerrors"
)

// Tag identifies which kind of value a cache key addresses.
type Tag byte

const (
	// TagRecord addresses a plain RRset.
	TagRecord Tag = 'R'
	// TagPacket addresses a cached whole-packet answer.
	TagPacket Tag = 'P'
	// TagRRSIG addresses an RRSIG set, keyed under the type it covers.
	TagRRSIG Tag = 'G'
	// TagUser is the first tag value reserved for caller-defined record kinds.
	TagUser Tag = 0x80
)

// keyHeaderSize is the fixed tag(1) + type(2) overhead around the name.
const keyHeaderSize = 1 + 2

// maxNameLen is the longest lookup-form name this cache accepts.
const maxNameLen = 255

// BuildKey composes the cache key { tag(1), reversed-lowercased-name, type(2
// LE) }. The name is normalized and reversed into "lookup form" so that
// prefix scans over a key range correspond to subtree scans over the name;
// the type field is packed little-endian.
func BuildKey(tag Tag, name string, rtype uint16) ([]byte, error) {
	lf, err := LookupName(name)
	if err != nil {
		return nil, err
	}
	if len(lf) < 1 || len(lf) > maxNameLen {
		return nil, rerrors.ErrIlSeq
	}
	key := make([]byte, 0, keyHeaderSize+len(lf))
	key = append(key, byte(tag))
	key = append(key, lf...)
	key = append(key, byte(rtype), byte(rtype>>8))
	return key, nil
}

// LookupName converts a DNS name into its canonical lookup form: lowercased,
// label order reversed, each label NUL-terminated. E.g. "nic.cz" becomes
// "cz\x00nic\x00". This makes a prefix of the encoded name correspond to a
// parent zone, so range scans over keys walk a name's ancestry.
func LookupName(name string) ([]byte, error) {
	norm := dns.NormalizeName(name)
	if norm == "" {
		return []byte{}, nil
	}
	labels := strings.Split(norm, ".")
	out := make([]byte, 0, len(norm)+len(labels))
	for i := len(labels) - 1; i >= 0; i-- {
		label := labels[i]
		if label == "" || len(label) > 63 {
			return nil, rerrors.ErrIlSeq
		}
		out = append(out, label...)
		out = append(out, 0)
	}
	return out, nil
}
