package planner

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheKey identifies one cached search. Everything that shapes the
// response participates; two workspaces can never share an entry.
type cacheKey struct {
	workspaceID string
	mode        Mode
	limit       int
	query       string
}

// queryCache is a bounded LRU of search responses. Index writes
// invalidate a workspace's entries wholesale; precision is not worth
// tracking which files fed which response.
type queryCache struct {
	lru *lru.Cache[cacheKey, Response]
}

func newQueryCache(size int) (*queryCache, error) {
	c, err := lru.New[cacheKey, Response](size)
	if err != nil {
		return nil, err
	}
	return &queryCache{lru: c}, nil
}

func (c *queryCache) get(key cacheKey) (Response, bool) {
	return c.lru.Get(key)
}

func (c *queryCache) add(key cacheKey, resp Response) {
	c.lru.Add(key, resp)
}

// invalidate drops every cached response for one workspace.
func (c *queryCache) invalidate(workspaceID string) {
	for _, key := range c.lru.Keys() {
		if key.workspaceID == workspaceID {
			c.lru.Remove(key)
		}
	}
}
