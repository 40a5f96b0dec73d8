package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/imgbatch-api/internal/domain"
	"github.com/phrazzld/imgbatch-api/internal/imaging"
)

// DefaultConcurrencyLimit bounds in-flight image operations when no limit
// is configured.
const DefaultConcurrencyLimit = 8

// Coordinator processes every URL of every row of a batch with bounded
// concurrency and collects the per-slot outcomes.
type Coordinator struct {
	processor ImageProcessor
	limit     int
	logger    *slog.Logger
}

// NewCoordinator creates a Coordinator that never runs more than limit
// processor calls at once across the whole batch.
func NewCoordinator(processor ImageProcessor, limit int, logger *slog.Logger) *Coordinator {
	if processor == nil {
		panic("processor cannot be nil")
	}
	if limit <= 0 {
		limit = DefaultConcurrencyLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		processor: processor,
		limit:     limit,
		logger:    logger.With("component", "fanout_coordinator"),
	}
}

// OutputKey returns the deterministic output name for slot index of row
// ordinal in request requestID.
func OutputKey(requestID uuid.UUID, ordinal, index int) string {
	return uuid.NewSHA1(requestID, []byte(fmt.Sprintf("%d/%d", ordinal, index))).String()
}

// Run processes rows and returns one RowResult per row, in row order.
// A failing slot never cancels its siblings; Run returns once every slot
// has an outcome.
func (c *Coordinator) Run(ctx context.Context, requestID uuid.UUID, rows []domain.Row) []domain.RowResult {
	log := c.logger.With("request_id", requestID)

	outcomes := make([][]domain.URLOutcome, len(rows))
	for i, row := range rows {
		if row.ParseErr == nil {
			outcomes[i] = make([]domain.URLOutcome, len(row.InputURLs))
		}
	}

	var g errgroup.Group
	g.SetLimit(c.limit)

	dispatched := 0
	for i, row := range rows {
		if row.ParseErr != nil {
			continue
		}
		for j, rawURL := range row.InputURLs {
			if strings.TrimSpace(rawURL) == "" {
				outcomes[i][j] = domain.FailureOutcome(domain.ErrorKindInvalidURL, "empty url")
				continue
			}

			i, j, rawURL := i, j, rawURL
			key := OutputKey(requestID, row.Ordinal, j)
			dispatched++
			g.Go(func() error {
				ref, err := c.processor.Process(ctx, key, rawURL)
				if err != nil {
					outcomes[i][j] = domain.FailureOutcome(imaging.KindOf(err), err.Error())
					return nil
				}
				outcomes[i][j] = domain.SuccessOutcome(ref)
				return nil
			})
		}
	}
	_ = g.Wait()

	results := make([]domain.RowResult, len(rows))
	failed := 0
	for i, row := range rows {
		if row.ParseErr != nil {
			results[i] = domain.NewRowParseFailure(requestID, row)
		} else {
			results[i] = domain.NewRowResult(requestID, row, outcomes[i])
		}
		failed += results[i].FailedSlots()
	}

	log.Info("batch fan-out finished",
		"rows", len(rows),
		"dispatched", dispatched,
		"failed_slots", failed)

	return results
}
