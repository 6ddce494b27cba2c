// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// maxCachedDecisions bounds the cache. Warden has a handful of roles and a
// few dozen routes, so hitting it means keys are not what we think they are.
const maxCachedDecisions = 4096

// decisionKey identifies one EnforceRoles question. roles is the sorted,
// de-duplicated role set, so an analyst with roles [it_admin, analyst] and
// one with [analyst, it_admin] share an entry.
type decisionKey struct {
	roles  string
	object string
	action string
}

type decision struct {
	allowed   bool
	expiresAt time.Time
}

// decisionCache remembers role-set decisions for ttl. Expired entries are
// swept lazily when the cache fills, so it needs no janitor goroutine.
type decisionCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[decisionKey]decision
}

func newDecisionCache(ttl time.Duration) *decisionCache {
	return &decisionCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[decisionKey]decision),
	}
}

// roleSet returns the canonical form of roles used in cache keys.
func roleSet(roles []string) string {
	sorted := slices.Clone(roles)
	slices.Sort(sorted)
	return strings.Join(slices.Compact(sorted), "\x00")
}

func (c *decisionCache) get(k decisionKey) (allowed, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.entries[k]
	if !ok {
		return false, false
	}
	if c.now().After(d.expiresAt) {
		delete(c.entries, k)
		return false, false
	}
	return d.allowed, true
}

func (c *decisionCache) set(k decisionKey, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.entries) >= maxCachedDecisions {
		for key, d := range c.entries {
			if now.After(d.expiresAt) {
				delete(c.entries, key)
			}
		}
		if len(c.entries) >= maxCachedDecisions {
			clear(c.entries)
		}
	}
	c.entries[k] = decision{allowed: allowed, expiresAt: now.Add(c.ttl)}
}

// reset drops every decision after a policy change.
func (c *decisionCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *decisionCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
