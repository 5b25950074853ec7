package netctl

import (
	"context"
	"fmt"

	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/types"
)

// firewallChain names the nft chain a network's bridge forwards through,
// one per VNI/direction so MaterializeFirewall can flush-and-rebuild it
// without touching any other network's rules.
func firewallChain(vni int, dir types.FirewallDirection) string {
	return fmt.Sprintf("pvc-%s-%d", dir, vni)
}

// AddFirewallRule inserts a new ACL at the requested order, shifting any
// rule already at or past that position down by one. Spec §4.4: "order
// conflicts resolve by inserting the new rule at the requested position
// and shifting subsequent rules."
func AddFirewallRule(c *coord.Client, vni int, dir types.FirewallDirection, desc string, order int, rule string) error {
	existing, err := ReadFirewallRules(c, vni, dir)
	if err != nil {
		return fmt.Errorf("list existing rules: %w", err)
	}

	for _, r := range existing {
		if r.Order < order {
			continue
		}
		if err := c.Write(types.NetworkFirewallOrderPath(vni, dir, r.Seq), types.EncodeInt(r.Order+1)); err != nil {
			return fmt.Errorf("shift rule %s: %w", r.Seq, err)
		}
	}

	seq := fmt.Sprintf("%03d_%s", order, desc)
	path := types.NetworkFirewallRulePath(vni, dir, seq)
	if _, err := c.Create(path, nil, false, false); err != nil {
		return fmt.Errorf("create rule %s: %w", seq, err)
	}
	if _, err := c.Create(types.NetworkFirewallOrderPath(vni, dir, seq), types.EncodeInt(order), false, false); err != nil {
		return fmt.Errorf("create rule %s order: %w", seq, err)
	}
	if _, err := c.Create(types.NetworkFirewallRuleTextPath(vni, dir, seq), types.EncodeString(rule), false, false); err != nil {
		return fmt.Errorf("create rule %s text: %w", seq, err)
	}
	return nil
}

// RemoveFirewallRule deletes the ACL at seq. It does not renumber the
// remaining rules: gaps in order are harmless since materialization sorts
// by order, not by contiguity.
func RemoveFirewallRule(c *coord.Client, vni int, dir types.FirewallDirection, seq string) error {
	return c.Delete(types.NetworkFirewallRulePath(vni, dir, seq), true)
}

// MaterializeFirewall rebuilds the nft chain for vni/dir from the current
// store contents: flush it, then insert every rule in order. Called on
// every gateway (re)assertion on the primary so a restart re-reads and reapplies the
// ruleset rather than trusting whatever the kernel happened to retain.
func MaterializeFirewall(ctx context.Context, r CommandRunner, c *coord.Client, vni int, dir types.FirewallDirection) error {
	rules, err := ReadFirewallRules(c, vni, dir)
	if err != nil {
		return fmt.Errorf("read rules: %w", err)
	}

	chain := firewallChain(vni, dir)
	if err := r.Run(ctx, "nft", "flush", "chain", "inet", "pvc", chain); err != nil {
		if !isNotExists(err) {
			return fmt.Errorf("flush chain %s: %w", chain, err)
		}
		if err := r.Run(ctx, "nft", "add", "chain", "inet", "pvc", chain); err != nil {
			return fmt.Errorf("create chain %s: %w", chain, err)
		}
	}

	for _, rule := range rules {
		if rule.Rule == "" {
			continue
		}
		if err := r.Run(ctx, "nft", "add", "rule", "inet", "pvc", chain, rule.Rule); err != nil {
			return fmt.Errorf("add rule %s: %w", rule.Seq, err)
		}
	}
	return nil
}
