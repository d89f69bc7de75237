package sasl

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Well-known negotiation property keys.
const (
	// PropQOP lists acceptable qualities of protection ("auth", "auth-int",
	// "auth-conf"), comma separated.
	PropQOP = "sasl.qop"

	// PolicyNoPlaintext excludes mechanisms that send secrets in the clear.
	PolicyNoPlaintext = "sasl.policy.noplaintext"

	// PolicyNoAnonymous excludes mechanisms that accept anonymous logins.
	PolicyNoAnonymous = "sasl.policy.noanonymous"

	// PolicyNoActive excludes mechanisms open to active (non-dictionary)
	// attacks.
	PolicyNoActive = "sasl.policy.noactive"

	// PolicyNoDictionary excludes mechanisms open to passive dictionary
	// attacks.
	PolicyNoDictionary = "sasl.policy.nodictionary"

	// PropExternalIdentity carries the identity established by the
	// transport (e.g. a TLS client certificate subject) for EXTERNAL.
	PropExternalIdentity = "sasl.external.identity"

	// PropAnonymousTrace is the trace string an ANONYMOUS client sends.
	PropAnonymousTrace = "sasl.anonymous.trace"

	// PropServerPort is the target port an OAUTHBEARER client reports.
	PropServerPort = "sasl.server.port"

	// PropAuthorizationID is the negotiated authorization identity.
	PropAuthorizationID = "sasl.authorization.id"

	// PropAuthenticationID is the negotiated authentication identity.
	PropAuthenticationID = "sasl.authentication.id"
)

// Properties are negotiation properties. A Properties value received from
// a caller is read-only: layers derive new maps with Combine.
type Properties map[string]any

// Combine returns a new map holding provided overlaid with configured.
// Configured values win for identical keys. Neither input is modified.
func Combine(provided, configured Properties) Properties {
	combined := make(Properties, len(provided)+len(configured))
	for k, v := range provided {
		combined[k] = v
	}
	for k, v := range configured {
		combined[k] = v
	}
	return combined
}

// Clone returns a shallow copy of p. Clone of nil is an empty map.
func (p Properties) Clone() Properties {
	return Combine(p, nil)
}

// String returns the value for key when it is a string.
func (p Properties) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Bool reports whether key is set to true, accepting bool values and
// strconv.ParseBool strings.
func (p Properties) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	default:
		return false
	}
}

// Int returns the value for key as an int, accepting integer kinds and
// numeric strings.
func (p Properties) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint16:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

// Equal reports whether p and o hold the same keys with deeply equal values.
// A nil map equals an empty one.
func (p Properties) Equal(o Properties) bool {
	if len(p) != len(o) {
		return false
	}
	for k, v := range p {
		ov, ok := o[k]
		if !ok || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}

// Hash returns a hash consistent with Equal.
//
// Scalar values contribute their rendered value; other values contribute
// only their dynamic type, since deep equality does not imply an identical
// rendering for them.
func (p Properties) Hash() uint64 {
	keys := p.sortedKeys()
	d := xxhash.New()
	for _, k := range keys {
		_, _ = d.WriteString(k)
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(hashableValue(p[k]))
		_, _ = d.WriteString("\x00")
	}
	return d.Sum64()
}

func (p Properties) sortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func hashableValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("%T=%v", x, x)
	default:
		return fmt.Sprintf("%T", x)
	}
}
