package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmiguens/arbscout/internal/domain"
)

// reserveLua performs the check-then-create-or-supersede atomically on the
// Redis side, so two workers scoring the same pair concurrently can never
// both decide "create". KEYS[1] is the pair key, ARGV[1] the new net profit,
// ARGV[2] the epsilon, ARGV[3] the TTL in milliseconds.
const reserveLua = `
local cur = redis.call('GET', KEYS[1])
if not cur then
    redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
    return 'create'
end
if math.abs(tonumber(cur) - tonumber(ARGV[1])) < tonumber(ARGV[2]) then
    return 'suppress'
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 'supersede'
`

// OpenOpportunityCache implements domain.OpenOpportunityCache. Each open pair
// holds one key carrying its last alerted net profit, expiring with the dedup
// window.
type OpenOpportunityCache struct {
	rdb       *redis.Client
	reserveSc *redis.Script
}

// NewOpenOpportunityCache creates an OpenOpportunityCache backed by the given
// Client.
func NewOpenOpportunityCache(c *Client) *OpenOpportunityCache {
	return &OpenOpportunityCache{
		rdb:       c.Underlying(),
		reserveSc: redis.NewScript(reserveLua),
	}
}

func oppKey(pairKey string) string {
	return "opp:" + pairKey
}

// Reserve runs the atomic dedup decision for a pair.
func (oc *OpenOpportunityCache) Reserve(ctx context.Context, pairKey, netProfit, epsilon string, window time.Duration) (domain.AlertDecision, error) {
	res, err := oc.reserveSc.Run(ctx, oc.rdb,
		[]string{oppKey(pairKey)},
		netProfit, epsilon, window.Milliseconds(),
	).Text()
	if err != nil {
		return "", fmt.Errorf("redis: reserve %s: %w", pairKey, err)
	}

	switch decision := domain.AlertDecision(res); decision {
	case domain.AlertCreate, domain.AlertSuppress, domain.AlertSupersede:
		return decision, nil
	default:
		return "", fmt.Errorf("redis: reserve %s: unexpected reply %q", pairKey, res)
	}
}

// Release drops the pair entry, undoing a reservation whose persistence
// failed.
func (oc *OpenOpportunityCache) Release(ctx context.Context, pairKey string) error {
	if err := oc.rdb.Del(ctx, oppKey(pairKey)).Err(); err != nil {
		return fmt.Errorf("redis: release %s: %w", pairKey, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OpenOpportunityCache = (*OpenOpportunityCache)(nil)
