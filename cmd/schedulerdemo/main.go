// Command schedulerdemo drives the scheduler core end to end against an
// in-memory backend: it offers a fixed pool of workers, submits task sets,
// and periodically asks for resource-offer rounds, logging every
// dispatch and reporting each dispatched task back as finished or failed
// after a short random delay. Adapted from the
// teacher's binaries/schedulerDemo, which exercised its own scheduler the
// same way against a dynamic in-memory cluster.
package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tsinghua2016/ppa-bpa-scheduler/sched"
	"github.com/tsinghua2016/ppa-bpa-scheduler/sched/oracle"
	"github.com/tsinghua2016/ppa-bpa-scheduler/sched/scheduler"
	"github.com/tsinghua2016/ppa-bpa-scheduler/stats"
)

func main() {
	var (
		numWorkers int
		numStages  int
		policy     string
		duration   time.Duration
	)

	root := &cobra.Command{
		Use:   "schedulerdemo",
		Short: "Exercise the PPA/BPA scheduler core against an in-memory backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(numWorkers, numStages, sched.PlacementPolicy(policy), duration)
		},
	}
	root.Flags().IntVar(&numWorkers, "workers", 5, "number of simulated workers")
	root.Flags().IntVar(&numStages, "stages", 3, "number of task sets to submit")
	root.Flags().StringVar(&policy, "policy", "", "placement policy: \"\", PPA or BPA")
	root.Flags().DurationVar(&duration, "duration", 3*time.Second, "how long to run the offer loop")

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("schedulerdemo failed")
	}
}

func runDemo(numWorkers, numStages int, policy sched.PlacementPolicy, duration time.Duration) error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	backend := newDemoBackend(numWorkers)
	planner := newDemoStagePlanner()
	o := oracle.NewFakeOracle()
	if policy != sched.PolicyDefault {
		o.SetCustom(policy)
	}

	cfg := sched.DefaultConfig()
	cfg.SpeculationEnabled = true

	s, err := scheduler.NewScheduler(cfg, backend, planner, o, demoDeserializer{}, stats.NewDefaultStatsReceiver())
	if err != nil {
		return errors.Wrap(err, "construct scheduler")
	}
	if err := s.Start(); err != nil {
		return errors.Wrap(err, "start scheduler")
	}
	defer s.Stop()

	for i := 0; i < numStages; i++ {
		stageId := fmt.Sprintf("stage-%d", i)
		ts := &sched.TaskSet{
			StageId:        stageId,
			StageAttemptId: "0",
			Pool:           "default",
			Priority:       i,
			TaskIds:        demoTaskIds(stageId, 4+rand.Intn(8)),
			LocalityLevels: []sched.LocalityLevel{sched.Any},
		}
		if _, err := s.SubmitTasks(ts); err != nil {
			logrus.WithError(err).WithField("stage", stageId).Error("submitTasks failed")
			continue
		}
		logrus.WithField("stage", stageId).WithField("tasks", len(ts.TaskIds)).Info("submitted task set")
	}

	deadline := time.After(duration)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			logrus.Info("demo duration elapsed, shutting down")
			return nil
		case <-ticker.C:
			offers := backend.snapshotOffers()
			if len(offers) == 0 {
				continue
			}
			dispatches := s.ResourceOffers(offers)
			for i, list := range dispatches {
				for _, d := range list {
					o.SetDemand(d.TaskId, 10+rand.Intn(40))
					logrus.WithFields(logrus.Fields{
						"taskId":     d.TaskId,
						"executorId": offers[i].ExecutorId,
						"source":     d.SourceTask,
					}).Info("dispatched task")
					go backend.simulateRun(s, d)
				}
			}
		}
	}
}

func demoTaskIds(stageId string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-task-%d", stageId, i)
	}
	return ids
}

// demoBackend is an in-memory Backend that reports a fixed worker pool and
// just logs kill/revive requests; it has no real transport to drive.
type demoBackend struct {
	mu     sync.Mutex
	offers []sched.WorkerOffer
}

func newDemoBackend(numWorkers int) *demoBackend {
	offers := make([]sched.WorkerOffer, numWorkers)
	for i := range offers {
		offers[i] = sched.WorkerOffer{
			ExecutorId: fmt.Sprintf("exec-%d", i),
			Host:       fmt.Sprintf("host-%d", i%3),
			Cores:      100,
		}
	}
	return &demoBackend{offers: offers}
}

func (b *demoBackend) Start() error                { return nil }
func (b *demoBackend) Stop() error                  { return nil }
func (b *demoBackend) IsReady() bool                { return true }
func (b *demoBackend) DefaultParallelism() int       { return len(b.snapshotOffers()) }
func (b *demoBackend) ApplicationId() string         { return "schedulerdemo" }
func (b *demoBackend) ApplicationAttemptId() string  { return "0" }

func (b *demoBackend) ReviveOffers() { logrus.Debug("backend: offers revived") }

func (b *demoBackend) KillTask(taskId int64, executorId string, interruptThread bool) {
	logrus.WithFields(logrus.Fields{"taskId": taskId, "executorId": executorId}).Info("backend: kill requested")
}

func (b *demoBackend) snapshotOffers() []sched.WorkerOffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sched.WorkerOffer{}, b.offers...)
}

// simulateRun fakes a task running for a short random time, then reports a
// terminal status back to the scheduler the way a real worker heartbeat
// would.
func (b *demoBackend) simulateRun(s *scheduler.Scheduler, d sched.TaskDescription) {
	time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)
	state := sched.Finished
	if rand.Intn(10) == 0 {
		state = sched.Failed
	}
	s.StatusUpdate(d.TaskId, state, []byte(d.SourceTask))
}

type demoStagePlanner struct{}

func newDemoStagePlanner() *demoStagePlanner { return &demoStagePlanner{} }

func (demoStagePlanner) ExecutorAdded(execId, host string) {
	logrus.WithFields(logrus.Fields{"executorId": execId, "host": host}).Info("stage planner: executor added")
}

func (demoStagePlanner) ExecutorLost(execId string) {
	logrus.WithField("executorId", execId).Warn("stage planner: executor lost")
}

func (demoStagePlanner) ExecutorHeartbeatReceived(execId string, updates []scheduler.TaskMetricUpdate, blockManagerId string) bool {
	return true
}

type demoDeserializer struct{}

func (demoDeserializer) DeserializeSuccess(taskId int64, payload []byte) ([]byte, error) {
	return payload, nil
}

func (demoDeserializer) DeserializeFailure(taskId int64, payload []byte) (string, error) {
	return "simulated failure for " + string(payload), nil
}
