package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/facturas/internal/mailer"
)

// recipientPattern accepts word characters in any script, so accented
// mailbox names such as josé@dominio.com are attempted.
var recipientPattern = regexp.MustCompile(`^[\p{L}\p{N}_.-]+@[\p{L}\p{N}_.-]+\.[\p{L}\p{N}_]+$`)

// Sender transmits a composed message once.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) mailer.Result
}

type Config struct {
	Subject string
	Body    string
	Workers int
}

// Summary describes one ProcessQueue run. Pending counts items that were
// never attempted because the run was cancelled.
type Summary struct {
	RunID     uuid.UUID
	Total     int
	Succeeded int
	Failed    int
	Pending   int
}

// Processor delivers queued invoices and keeps the queue and ledger in step.
type Processor struct {
	sender  Sender
	cfg     Config
	mirrors []Ledger
	now     func() time.Time
}

// NewProcessor returns a Processor. Records are also appended to every
// mirror; mirror failures are logged and reported but never change the
// outcome of a delivery.
func NewProcessor(sender Sender, cfg Config, mirrors ...Ledger) *Processor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Processor{
		sender:  sender,
		cfg:     cfg,
		mirrors: mirrors,
		now:     time.Now,
	}
}

// ProcessQueue attempts every item in the queue at queuePath once, appends
// one record per attempt to the ledger at ledgerPath, then rewrites the queue
// to hold only the items that were not delivered.
//
// A missing or malformed queue aborts before anything is sent or recorded.
func (p *Processor) ProcessQueue(ctx context.Context, queuePath, ledgerPath string) (Summary, error) {
	items, err := ReadQueue(queuePath)
	if err != nil {
		return Summary{}, err
	}

	ledger, err := OpenCSVLedger(ledgerPath)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{RunID: uuid.New(), Total: len(items)}
	log := slog.With("run_id", sum.RunID)
	log.Info("dispatch: processing queue", "queue", queuePath, "items", len(items), "workers", p.cfg.Workers)

	var (
		mu         sync.Mutex
		delivered  = make([]bool, len(items))
		attempted  = make([]bool, len(items))
		ledgerErrs []error
	)

	g := &errgroup.Group{}
	g.SetLimit(p.cfg.Workers)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res := p.deliver(ctx, item)
			rec := Record{RunID: sum.RunID, Item: item, Result: res, At: p.now().UTC()}

			mu.Lock()
			defer mu.Unlock()
			attempted[item.Index] = true
			delivered[item.Index] = res.OK()
			// Attempts already made are recorded even if the run is being cancelled.
			if err := p.record(context.WithoutCancel(ctx), ledger, rec); err != nil {
				ledgerErrs = append(ledgerErrs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ledger.Close(); err != nil {
		ledgerErrs = append(ledgerErrs, fmt.Errorf("close ledger: %w", err))
	}

	remaining := make([]Item, 0, len(items))
	for i, item := range items {
		switch {
		case delivered[i]:
			sum.Succeeded++
		case attempted[i]:
			sum.Failed++
			remaining = append(remaining, item)
		default:
			sum.Pending++
			remaining = append(remaining, item)
		}
	}

	// Nothing delivered means nothing to remove; leave the file byte-for-byte.
	if sum.Succeeded > 0 {
		if err := WriteQueue(queuePath, remaining); err != nil {
			return sum, errors.Join(append(ledgerErrs, fmt.Errorf("rewrite queue: %w", err))...)
		}
	}

	log.Info("dispatch: queue processed",
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"pending", sum.Pending,
		"ledger", ledgerPath,
	)
	return sum, errors.Join(ledgerErrs...)
}

func (p *Processor) deliver(ctx context.Context, item Item) mailer.Result {
	if !recipientPattern.MatchString(item.Recipient) {
		slog.Warn("dispatch: invalid recipient", "to", item.Recipient, "attachment", item.AttachmentPath)
		return mailer.Result{
			To:   item.Recipient,
			Kind: mailer.KindInvalidAddress,
			Err:  fmt.Errorf("%w: %q", mailer.ErrInvalidAddress, item.Recipient),
		}
	}

	att, err := mailer.LoadAttachment(item.AttachmentPath, mailer.ContentTypePDF)
	if err != nil {
		slog.Error("dispatch: cannot read invoice", "to", item.Recipient, "attachment", item.AttachmentPath, "err", err)
		return mailer.Result{To: item.Recipient, Kind: mailer.KindOf(err), Err: err}
	}

	return p.sender.Send(ctx, mailer.Message{
		To:         item.Recipient,
		Subject:    p.cfg.Subject,
		Body:       p.cfg.Body,
		Attachment: att,
	})
}

// record appends rec to the CSV ledger and every mirror. Callers hold the
// processor lock.
func (p *Processor) record(ctx context.Context, ledger *CSVLedger, rec Record) error {
	var errs []error
	if err := ledger.Append(ctx, rec); err != nil {
		slog.Error("dispatch: ledger append failed", "to", rec.Item.Recipient, "err", err)
		errs = append(errs, err)
	}
	for _, m := range p.mirrors {
		if err := m.Append(ctx, rec); err != nil {
			slog.Warn("dispatch: ledger mirror append failed", "to", rec.Item.Recipient, "err", err)
			errs = append(errs, fmt.Errorf("mirror ledger: %w", err))
		}
	}
	return errors.Join(errs...)
}
