package gate

import "strings"

// RiskClassifier maps a proposed tool action to a risk tier. Implementations
// must be pure: no I/O, no stored state, identical inputs always produce the
// identical tier.
type RiskClassifier interface {
	Classify(toolName string, params map[string]any) RiskTier
}

var destructiveTokens = []string{"delete", "shutdown", "destroy"}

var readOnlyPrefixes = []string{"get", "read", "scan"}

var privateCIDRPrefixes = []string{
	"10.",
	"192.168.",
	"172.16.", "172.17.", "172.18.", "172.19.",
	"172.20.", "172.21.", "172.22.", "172.23.",
	"172.24.", "172.25.", "172.26.", "172.27.",
	"172.28.", "172.29.", "172.30.", "172.31.",
}

// KeywordClassifier is the default policy. Rules are evaluated in a fixed
// priority order and the first match wins, so a destructive token beats a
// read-only prefix ("get_delete_status" is critical). Unknown tool names
// default to moderate, never safe.
type KeywordClassifier struct {
	// FirewallTools names the network-control tools whose tier depends on
	// the target address. Empty means the single default tool name.
	FirewallTools []string
}

const defaultFirewallTool = "block_ip"

func (c KeywordClassifier) Classify(toolName string, params map[string]any) RiskTier {
	name := strings.ToLower(strings.TrimSpace(toolName))
	if name == "" {
		return TierModerate
	}

	for _, tok := range destructiveTokens {
		if strings.Contains(name, tok) {
			return TierCritical
		}
	}

	if c.isFirewallTool(name) {
		if isPrivateAddress(targetAddress(params)) {
			return TierCritical
		}
		return TierModerate
	}

	for _, prefix := range readOnlyPrefixes {
		if strings.HasPrefix(name, prefix) {
			return TierSafe
		}
	}

	return TierModerate
}

func (c KeywordClassifier) isFirewallTool(name string) bool {
	tools := c.FirewallTools
	if len(tools) == 0 {
		tools = []string{defaultFirewallTool}
	}
	for _, t := range tools {
		if name == strings.ToLower(strings.TrimSpace(t)) {
			return true
		}
	}
	return false
}

func targetAddress(params map[string]any) string {
	for _, key := range []string{"ip", "address", "target"} {
		if v, ok := params[key]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// isPrivateAddress does a dotted-decimal prefix check against RFC 1918
// ranges. A prefix match is deliberate: this feeds a risk tier, not an
// enforcement decision, and the caller never gets less scrutiny than the
// prefix suggests.
func isPrivateAddress(addr string) bool {
	if addr == "" {
		return false
	}
	for _, prefix := range privateCIDRPrefixes {
		if strings.HasPrefix(addr, prefix) {
			return true
		}
	}
	return false
}
