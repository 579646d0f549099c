package token

import "net/url"

// ArgumentPolicy is the per-type configuration argument merging uses:
// the defaults applied where the descriptor omits a key, and the
// allow-list of keys the query string may override.
type ArgumentPolicy struct {
	DefaultArguments     map[string]string
	UnencryptedArguments map[string]bool
}

// Policy maps a connection type to its ArgumentPolicy, mirroring
// config.Config's Client.DefaultArguments/UnencryptedArguments maps.
type Policy map[string]ArgumentPolicy

// MergeArguments applies defaults for keys the descriptor omits, then
// allows the query string to override only allow-listed keys with
// non-blank values. Keys outside both lists are kept from the
// descriptor unchanged.
func MergeArguments(desc *Descriptor, policy Policy, query url.Values) (map[string]string, error) {
	typePolicy, ok := policy[desc.Type]
	if !ok {
		// No policy configured for this type is not itself an error —
		// it just means no defaults and no overridable keys apply.
		typePolicy = ArgumentPolicy{}
	}

	merged := make(map[string]string, len(desc.Arguments)+len(typePolicy.DefaultArguments))
	for k, v := range desc.Arguments {
		merged[k] = v
	}
	for k, v := range typePolicy.DefaultArguments {
		if _, present := merged[k]; !present {
			merged[k] = v
		}
	}
	for k := range typePolicy.UnencryptedArguments {
		if !typePolicy.UnencryptedArguments[k] {
			continue
		}
		v := query.Get(k)
		if v != "" {
			merged[k] = v
		}
	}
	return merged, nil
}
