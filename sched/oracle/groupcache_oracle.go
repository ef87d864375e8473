package oracle

import (
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/twitter/groupcache"

	"github.com/tsinghua2016/ppa-bpa-scheduler/sched"
	"github.com/tsinghua2016/ppa-bpa-scheduler/stats"
)

// PredictionClient is the out-of-scope prediction service this core calls
// through to on a cache miss (spec.md §1 lists "the prediction service" as
// an external collaborator; this is its consumed contract).
type PredictionClient interface {
	PredictCpuCore(taskId int64) (int, error)
	Customize() (bool, sched.PlacementPolicy)
}

// GroupcacheOracle adapts a PredictionClient into a PredictionOracle,
// caching CpuCore lookups behind a groupcache.Group so that repeated
// `cpuCore(taskId)` lookups for the same task are served from the cache
// instead of calling the external service again. Re-predicted tasks are served from a small
// override map that takes precedence over the cache, since groupcache
// itself has no per-key invalidation (SPEC_FULL.md DOMAIN STACK).
type GroupcacheOracle struct {
	client PredictionClient
	cache  *groupcache.Group
	stat   stats.StatsReceiver

	mu        sync.Mutex
	overrides map[int64]int
}

const cacheName = "cpu-core-predictions"

// predictRetryBudget caps how long a cache-miss lookup retries the
// prediction client before giving up and returning a cache error, so a
// single slow/unavailable prediction service can't stall a placement round
// indefinitely (grounded on bazel/cas/client.go's use of backoff.Retry
// around its own external RPCs).
const predictRetryBudget = 200 * time.Millisecond

// NewGroupcacheOracle builds a PredictionOracle backed by client, caching
// up to cacheBytes of prediction responses.
func NewGroupcacheOracle(client PredictionClient, cacheBytes int64, stat stats.StatsReceiver) *GroupcacheOracle {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	o := &GroupcacheOracle{
		client:    client,
		stat:      stat.Scope("predictionOracle"),
		overrides: map[int64]int{},
	}
	o.cache = groupcache.NewGroup(cacheName, cacheBytes,
		groupcache.GetterFunc(func(ctx groupcache.Context, key string, dest groupcache.Sink) error {
			taskId, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return err
			}
			o.stat.Counter("cacheMissCounter").Inc(1)
			defer o.stat.Latency("predictLatency_ms").Time().Stop()

			var cpu int
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = predictRetryBudget
			retryErr := backoff.Retry(func() error {
				c, err := client.PredictCpuCore(taskId)
				if err != nil {
					o.stat.Counter("predictRetryCounter").Inc(1)
					return err
				}
				cpu = c
				return nil
			}, b)
			if retryErr != nil {
				return retryErr
			}
			return dest.SetString(strconv.Itoa(cpu))
		}))
	return o
}

func (o *GroupcacheOracle) IsCustomize() bool {
	isCustom, _ := o.client.Customize()
	return isCustom
}

func (o *GroupcacheOracle) Mode() sched.PlacementPolicy {
	_, mode := o.client.Customize()
	return mode
}

func (o *GroupcacheOracle) CpuCore(taskId int64) int {
	o.mu.Lock()
	if v, ok := o.overrides[taskId]; ok {
		o.mu.Unlock()
		return v
	}
	o.mu.Unlock()

	var sink groupcache.StringSink
	key := strconv.FormatInt(taskId, 10)
	if err := o.cache.Get(nil, key, &sink); err != nil {
		o.stat.Counter("predictErrorCounter").Inc(1)
		return 0
	}
	s, err := sink.String()
	if err != nil {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

func (o *GroupcacheOracle) RePrediction(taskId int64, residual int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.overrides[taskId] = residual
	o.stat.Counter("rePredictionCounter").Inc(1)
}

func (o *GroupcacheOracle) GetSchedulingMode(current sched.SchedulingMode) sched.SchedulingMode {
	return current
}
