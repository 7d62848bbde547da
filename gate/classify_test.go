package gate

import "testing"

func TestClassifyKeywords(t *testing.T) {
	c := KeywordClassifier{}
	cases := []struct {
		name string
		tool string
		want RiskTier
	}{
		{"delete", "delete_database", TierCritical},
		{"shutdown", "shutdown_server", TierCritical},
		{"destroy", "destroy_cluster", TierCritical},
		{"uppercase", "DELETE_Database", TierCritical},
		{"embedded", "force_shutdown_now", TierCritical},
		{"destructive_beats_readonly", "get_delete_status", TierCritical},
		{"get", "get_logs", TierSafe},
		{"read", "read_config", TierSafe},
		{"scan", "scan_ports", TierSafe},
		{"unknown", "restart_service", TierModerate},
		{"empty", "", TierModerate},
		{"whitespace", "   ", TierModerate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.tool, nil)
			if got != tc.want {
				t.Fatalf("Classify(%q) = %s, want %s", tc.tool, got, tc.want)
			}
		})
	}
}

func TestClassifyFirewallTool(t *testing.T) {
	c := KeywordClassifier{}
	cases := []struct {
		name   string
		params map[string]any
		want   RiskTier
	}{
		{"private_192", map[string]any{"ip": "192.168.1.5"}, TierCritical},
		{"private_10", map[string]any{"ip": "10.1.2.3"}, TierCritical},
		{"private_172", map[string]any{"ip": "172.16.0.9"}, TierCritical},
		{"private_172_upper", map[string]any{"ip": "172.31.255.1"}, TierCritical},
		{"public", map[string]any{"ip": "8.8.8.8"}, TierModerate},
		{"public_172", map[string]any{"ip": "172.32.0.1"}, TierModerate},
		{"address_key", map[string]any{"address": "10.0.0.1"}, TierCritical},
		{"missing_ip", map[string]any{}, TierModerate},
		{"nil_params", nil, TierModerate},
		{"non_string_ip", map[string]any{"ip": 42}, TierModerate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify("block_ip", tc.params)
			if got != tc.want {
				t.Fatalf("Classify(block_ip, %v) = %s, want %s", tc.params, got, tc.want)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := KeywordClassifier{}
	params := map[string]any{"ip": "192.168.1.5", "port": 443}
	first := c.Classify("block_ip", params)
	second := c.Classify("block_ip", params)
	if first != second {
		t.Fatalf("classification is not deterministic: %s vs %s", first, second)
	}
}

func TestSeverityOrdering(t *testing.T) {
	if !(TierSafe.Severity() < TierModerate.Severity() && TierModerate.Severity() < TierCritical.Severity()) {
		t.Fatal("tier severity ordering is broken")
	}
	if RiskTier("bogus").Severity() <= TierCritical.Severity() {
		t.Fatal("unknown tier must sort above critical")
	}
}
