package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kbassist/internal/api"
)

const (
	DefaultInterval = 60 * time.Second
	detailFanout    = 4
)

// DocumentAPI is what the poller reads from.
type DocumentAPI interface {
	ListDocuments(ctx context.Context, kbID api.ID) ([]api.Document, error)
	DocumentDetail(ctx context.Context, ref api.ID) (*api.Document, error)
}

// Poller keeps the document list of one knowledge base fresh. Listeners only
// hear about it when the list actually changed.
type Poller struct {
	client   DocumentAPI
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	kbID      api.ID
	docs      []api.Document
	signature string
	listeners []func([]api.Document)

	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
}

func New(client DocumentAPI, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{client: client, interval: interval, logger: logger}
}

func (p *Poller) OnChange(fn func([]api.Document)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

func (p *Poller) KBID() api.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kbID
}

// Documents returns a copy of the last fetched list.
func (p *Poller) Documents() []api.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]api.Document(nil), p.docs...)
}

// Start schedules refreshes every interval. Calling it twice is a no-op.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", p.interval), p.tick); err != nil {
		return fmt.Errorf("schedule document poll failed: %w", err)
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.cron = c
	c.Start()
	p.logger.Debug("document poller started", zap.Duration("interval", p.interval), zap.String("kb_id", p.kbID.String()))
	return nil
}

// Stop cancels the schedule and waits for a running refresh to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	c, cancel := p.cron, p.cancel
	p.cron, p.cancel = nil, nil
	p.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	p.logger.Debug("document poller stopped")
}

// SetKB switches the polled knowledge base. A change clears the cached list,
// fetches the new one and restarts the schedule if it was running.
func (p *Poller) SetKB(ctx context.Context, kbID api.ID) error {
	p.mu.Lock()
	if p.kbID == kbID {
		p.mu.Unlock()
		return nil
	}
	wasRunning := p.cron != nil
	p.mu.Unlock()

	p.Stop()

	p.mu.Lock()
	p.kbID = kbID
	p.docs = nil
	p.signature = ""
	p.mu.Unlock()

	var err error
	if !kbID.IsZero() {
		_, err = p.Refresh(ctx)
	}
	if wasRunning {
		if startErr := p.Start(ctx); startErr != nil {
			return startErr
		}
	}
	return err
}

func (p *Poller) tick() {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.Debug("document poll skipped: still running")
		return
	}
	defer p.running.Store(false)

	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()
	if ctx == nil {
		return
	}
	if _, err := p.Refresh(ctx); err != nil {
		p.logger.Warn("document poll failed", zap.Error(err))
	}
}

// Refresh fetches the list plus every document's detail and reports whether the
// stored list changed.
func (p *Poller) Refresh(ctx context.Context) (bool, error) {
	kbID := p.KBID()
	if kbID.IsZero() {
		return false, nil
	}

	docs, err := p.client.ListDocuments(ctx, kbID)
	if err != nil {
		return false, err
	}
	docs = p.mergeDetails(ctx, docs)
	sig, err := signature(docs)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	if p.kbID != kbID || sig == p.signature {
		p.mu.Unlock()
		return false, nil
	}
	p.docs = docs
	p.signature = sig
	listeners := append([]func([]api.Document){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(append([]api.Document(nil), docs...))
	}
	return true, nil
}

// mergeDetails overlays detail fields on the listed documents. A failed detail
// leaves the list entry as it was.
func (p *Poller) mergeDetails(ctx context.Context, docs []api.Document) []api.Document {
	merged := make([]api.Document, len(docs))
	copy(merged, docs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailFanout)
	for i := range merged {
		ref := merged[i].ID
		if ref.IsZero() {
			continue
		}
		g.Go(func() error {
			detail, err := p.client.DocumentDetail(gctx, ref)
			if err != nil {
				p.logger.Debug("document detail failed", zap.String("document_id", ref.String()), zap.Error(err))
				return nil
			}
			merged[i] = mergeDocument(merged[i], *detail)
			return nil
		})
	}
	_ = g.Wait()
	return merged
}

func mergeDocument(base, detail api.Document) api.Document {
	if detail.Title != "" {
		base.Title = detail.Title
	}
	if detail.Name != "" {
		base.Name = detail.Name
	}
	if detail.UID != "" {
		base.UID = detail.UID
	}
	if detail.FileType != "" {
		base.FileType = detail.FileType
	}
	if detail.FileSize > 0 {
		base.FileSize = detail.FileSize
	}
	if detail.ChunkCount > 0 {
		base.ChunkCount = detail.ChunkCount
	}
	if detail.Content != "" {
		base.Content = detail.Content
	}
	if detail.Status != "" {
		base.Status = detail.Status
		base.StatusMessage = detail.StatusMessage
	}
	if detail.CreateAt != "" {
		base.CreateAt = detail.CreateAt
	}
	return base
}

type signatureEntry struct {
	ID            api.ID `json:"id"`
	Title         string `json:"title"`
	CreateAt      string `json:"create_at"`
	ChunkCount    int    `json:"chunk_count"`
	Content       string `json:"content"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
}

// signature is order independent: entries are sorted by id first.
func signature(docs []api.Document) (string, error) {
	entries := make([]signatureEntry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, signatureEntry{
			ID:            d.ID,
			Title:         d.Title,
			CreateAt:      d.CreateAt,
			ChunkCount:    d.ChunkCount,
			Content:       d.Content,
			Name:          d.Name,
			Status:        d.Status,
			StatusMessage: d.StatusMessage,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	raw, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("document signature: %w", err)
	}
	return string(raw), nil
}
