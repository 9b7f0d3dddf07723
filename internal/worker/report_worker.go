package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/snsgroups/proctor-backend/internal/config"
	"github.com/snsgroups/proctor-backend/internal/model"
)

// ReportWorker consumes persist_reports_queue and UPSERTs finished-attempt
// reports to PostgreSQL.
type ReportWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewReportWorker creates a new ReportWorker.
func NewReportWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ReportWorker {
	return &ReportWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "report_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *ReportWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ReportWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistReportsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var report model.AttemptReport
	if err := json.Unmarshal([]byte(result[1]), &report); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persistReport(ctx, &report); err != nil {
		w.log.Error().Err(err).
			Str("contest_id", report.ContestID).
			Str("student_id", report.StudentID).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistReportsQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *ReportWorker) persistReport(ctx context.Context, r *model.AttemptReport) error {
	// UPSERT the report so a resubmitted attempt overwrites its own row.
	_, err := w.pool.Exec(ctx,
		`INSERT INTO attempt_reports
		     (contest_id, student_id, grade, percentage, pass_percentage, finish_trigger,
		      fullscreen_exits, tab_switches, noise_events, face_absent_events,
		      started_at, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (contest_id, student_id) DO UPDATE
		 SET grade = EXCLUDED.grade,
		     percentage = EXCLUDED.percentage,
		     pass_percentage = EXCLUDED.pass_percentage,
		     finish_trigger = EXCLUDED.finish_trigger,
		     fullscreen_exits = EXCLUDED.fullscreen_exits,
		     tab_switches = EXCLUDED.tab_switches,
		     noise_events = EXCLUDED.noise_events,
		     face_absent_events = EXCLUDED.face_absent_events,
		     submitted_at = EXCLUDED.submitted_at`,
		r.ContestID, r.StudentID, r.Grade, r.Percentage, r.PassPercentage, r.Trigger,
		r.Violations.FullscreenExits, r.Violations.TabSwitches,
		r.Violations.NoiseEvents, r.Violations.FaceAbsentEvents,
		r.StartedAt, r.SubmittedAt,
	)
	return err
}

// drain processes all remaining items in the queue before shutdown.
func (w *ReportWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistReportsQueue).Result()
		if err != nil {
			break
		}

		var report model.AttemptReport
		if err := json.Unmarshal([]byte(result), &report); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persistReport(ctx, &report); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistReportsQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
