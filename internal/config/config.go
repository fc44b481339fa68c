// Package config loads YAML hook-rule files consumed by the pltgotctl
// CLI's hook --rules flag.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule is one hook request: match pattern, symbol to resolve, and the
// replacement address to install.
type Rule struct {
	Pattern string
	Symbol  string
	Addr    uintptr
}

// rawRule mirrors the YAML shape before Addr's hex-string is parsed.
type rawRule struct {
	Pattern string `yaml:"pattern"`
	Symbol  string `yaml:"symbol"`
	Addr    string `yaml:"addr"`
}

type rawDocument struct {
	Rules []rawRule `yaml:"rules"`
}

// LoadRules parses a YAML rules file of the shape:
//
//	rules:
//	  - pattern: "libnative*.so"
//	    symbol: "SSL_write"
//	    addr: "0x401000"
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses rules from an in-memory YAML document, used directly
// by tests and by LoadRules.
func ParseRules(data []byte) ([]Rule, error) {
	var doc rawDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}

	rules := make([]Rule, 0, len(doc.Rules))
	for i, r := range doc.Rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("rule %d: missing pattern", i)
		}
		if r.Symbol == "" {
			return nil, fmt.Errorf("rule %d: missing symbol", i)
		}
		addr, err := parseAddr(r.Addr)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, Rule{Pattern: r.Pattern, Symbol: r.Symbol, Addr: addr})
	}
	return rules, nil
}

func parseAddr(s string) (uintptr, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad addr %q: %w", s, err)
	}
	return uintptr(v), nil
}
