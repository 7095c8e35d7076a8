package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/failsworth/returnbase/internal/metrics"
)

// Event is one request-level audit record. The values placed here must
// already be PII-free; the recorder writes them to the log sink verbatim.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	TenantID   string    `json:"tenant_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	ReturnID   string    `json:"return_id,omitempty"`
	OldStatus  string    `json:"old_status,omitempty"`
	NewStatus  string    `json:"new_status,omitempty"`
}

// Recorder batches audit events and drains them to the structured log sink
// through a small worker pool. Batches flush on size or after a timeout,
// whichever comes first.
type Recorder struct {
	workerCount int
	batchSize   int
	timeout     time.Duration
	log         *zap.Logger

	inputChan  chan Event
	batchChan  chan []Event
	shutdownCh chan struct{}
	once       sync.Once

	wg sync.WaitGroup
}

func NewRecorder(workerCount, batchSize int, timeout time.Duration, log *zap.Logger) *Recorder {
	return &Recorder{
		workerCount: workerCount,
		batchSize:   batchSize,
		timeout:     timeout,
		log:         log,
		inputChan:   make(chan Event, workerCount*batchSize*2),
		batchChan:   make(chan []Event, workerCount*2),
		shutdownCh:  make(chan struct{}),
	}
}

func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.runAggregator(ctx)

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.runWorker(ctx, i)
	}

	go r.monitorShutdown(ctx)
}

// Record hands an event to the pipeline. When the pipeline is unavailable
// the event is written directly so it is never dropped.
func (r *Recorder) Record(ctx context.Context, event Event) {
	select {
	case r.inputChan <- event:
	case <-ctx.Done():
		r.emergencyLog(event)
	}
}

func (r *Recorder) Shutdown(ctx context.Context) {
	r.once.Do(func() {
		r.log.Info("initiating audit recorder shutdown")
		close(r.shutdownCh)

		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			r.log.Info("audit recorder shutdown completed")
		case <-ctx.Done():
			r.log.Warn("audit recorder shutdown interrupted")
		}
	})
}

func (r *Recorder) monitorShutdown(ctx context.Context) {
	<-ctx.Done()
	r.Shutdown(context.Background())
}

func (r *Recorder) runAggregator(ctx context.Context) {
	defer r.wg.Done()

	var (
		batch    []Event
		timer    *time.Timer
		timeoutC <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
		if len(batch) > 0 {
			r.dispatchBatch(batch)
		}
		close(r.batchChan)
	}()

	for {
		select {
		case event, ok := <-r.inputChan:
			if !ok {
				return
			}

			batch = append(batch, event)
			if len(batch) >= r.batchSize {
				r.dispatchBatch(batch)
				batch = nil
				timeoutC = nil
			} else if len(batch) == 1 {
				timer = time.NewTimer(r.timeout)
				timeoutC = timer.C
			}

		case <-timeoutC:
			r.dispatchBatch(batch)
			batch = nil
			timeoutC = nil

		case <-ctx.Done():
			return

		case <-r.shutdownCh:
			return
		}
	}
}

func (r *Recorder) dispatchBatch(batch []Event) {
	batchCopy := make([]Event, len(batch))
	copy(batchCopy, batch)

	select {
	case r.batchChan <- batchCopy:
	default:
		r.writeBatch(-1, batchCopy)
	}
}

func (r *Recorder) runWorker(ctx context.Context, id int) {
	defer r.wg.Done()

	for {
		select {
		case batch, ok := <-r.batchChan:
			if !ok {
				return
			}
			r.writeBatch(id, batch)
		case <-ctx.Done():
			// Drain whatever is already queued before exiting.
			for {
				select {
				case batch, ok := <-r.batchChan:
					if !ok {
						return
					}
					r.writeBatch(id, batch)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) emergencyLog(event Event) {
	r.log.Warn("audit event written outside pipeline", eventFields(event)...)
}

func (r *Recorder) writeBatch(workerID int, batch []Event) {
	for _, event := range batch {
		fields := append(eventFields(event), zap.Int("audit_worker", workerID))
		r.log.Info("audit", fields...)
	}
	metrics.AuditBatchesFlushedTotal.Inc()
}

func eventFields(event Event) []zap.Field {
	return []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("tenant_id", event.TenantID),
		zap.String("method", event.Method),
		zap.String("path", event.Path),
		zap.Int("status_code", event.StatusCode),
		zap.String("return_id", event.ReturnID),
		zap.String("old_status", event.OldStatus),
		zap.String("new_status", event.NewStatus),
	}
}
