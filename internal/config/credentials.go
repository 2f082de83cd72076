package config

import "sort"

// CredentialPool maps slot numbers to the telephony credentials configured for
// them. Slots without a credential do not participate in allocation, so the
// pool determines N for the allocator.
type CredentialPool struct {
	tokens  map[int]string
	numbers []int
}

// CredentialPool builds the pool from the configured telephony tokens.
func (c *Config) CredentialPool() *CredentialPool {
	p := &CredentialPool{tokens: make(map[int]string)}
	for i, token := range c.TelephonyTokens {
		if token == "" {
			continue
		}
		slot := i + 1
		p.tokens[slot] = token
		p.numbers = append(p.numbers, slot)
	}
	sort.Ints(p.numbers)
	return p
}

// SlotNumbers returns the configured slot numbers in ascending order.
func (p *CredentialPool) SlotNumbers() []int {
	return p.numbers
}

// Credential returns the credential configured for a slot.
func (p *CredentialPool) Credential(slot int) (string, bool) {
	token, ok := p.tokens[slot]
	return token, ok
}

// Fallback returns the shared best-effort credential handed out when no slot
// can be granted. It permits outbound calls only, since it carries no
// registered inbound identity. Empty when nothing is configured.
func (p *CredentialPool) Fallback() string {
	if len(p.numbers) == 0 {
		return ""
	}
	return p.tokens[p.numbers[0]]
}

// Empty reports whether no credentials are configured at all.
func (p *CredentialPool) Empty() bool {
	return len(p.numbers) == 0
}
