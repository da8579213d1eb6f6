// Package session manages the open patient reports of an operator: one ReportSession per
// patient, an active session that receives edits and undo/redo, and synchronization with the
// remote patient store.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/oscillometry-report-server/internal/domain"
	"github.com/oscillometry-report-server/internal/service"
)

// ListViewID is the sentinel id of the patient list view. Its session is a scratch report
// that is restored from the raw-value cache at startup.
const ListViewID = ""

const (
	scratchScope        = "scratch"
	cacheClearTimeout   = 2 * time.Second
	defaultFetchTimeout = 30 * time.Second
)

// Confirmation prompts.
const (
	PromptDelete = "Вы уверены, что хотите удалить пациента %s?"
	PromptClear  = "Вы уверены, что хотите удалить всех пациентов?"
)

// RegistryConfig holds the registry tunables.
type RegistryConfig struct {
	DefaultPrecision    int
	PrefetchConcurrency int
	// FetchTimeout bounds a shared patient fetch, which outlives the caller that started it.
	FetchTimeout time.Duration
}

// Registry owns the open report sessions and tracks which one is active.
// Its lock is never held across a call to the patient store.
type Registry struct {
	mu sync.Mutex

	logger    *logrus.Logger
	engine    *service.DerivationEngine
	store     domain.PatientStore
	cache     domain.RawValueCache
	notifier  domain.Notifier
	confirmer domain.Confirmer
	config    RegistryConfig

	sessions map[string]*ReportSession
	order    []string
	activeID string
	index    []domain.PatientSummary

	loads singleflight.Group
	// focusSeq changes on every request for focus: each load and each switch of the active
	// session. A load only activates its session when nothing else asked for focus meanwhile.
	focusSeq uint64
	newID    func() string
}

// NewRegistry creates a registry with the list view active.
func NewRegistry(logger *logrus.Logger, engine *service.DerivationEngine, store domain.PatientStore, cache domain.RawValueCache, notifier domain.Notifier, confirmer domain.Confirmer, config RegistryConfig) *Registry {
	if config.PrefetchConcurrency <= 0 {
		config.PrefetchConcurrency = 4
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = defaultFetchTimeout
	}
	r := &Registry{
		logger:    logger,
		engine:    engine,
		store:     store,
		cache:     cache,
		notifier:  notifier,
		confirmer: confirmer,
		config:    config,
		sessions:  make(map[string]*ReportSession),
		activeID:  ListViewID,
		newID:     func() string { return uuid.New().String() },
	}

	scratch := r.newSession(ListViewID)
	scratch.setActive(true)
	r.sessions[ListViewID] = scratch
	return r
}

// RestoreScratch loads the cached raw values into the list-view session.
func (r *Registry) RestoreScratch(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	values, err := r.cache.Load(ctx, scratchScope)
	if err != nil {
		return fmt.Errorf("failed to restore cached cells: %w", err)
	}

	r.mu.Lock()
	scratch := r.sessions[ListViewID]
	r.mu.Unlock()

	scratch.mu.Lock()
	scratch.cells.Load(values)
	scratch.seedLocked(false)
	scratch.mu.Unlock()

	r.logger.WithField("cells", len(values)).Info("Restored cached cell values")
	return nil
}

// SwitchActive makes id the active session. ListViewID switches to the list view.
func (r *Registry) SwitchActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.switchLocked(id)
}

func (r *Registry) switchLocked(id string) error {
	target, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownSession, id)
	}
	if current, ok := r.sessions[r.activeID]; ok && current != target {
		current.setActive(false)
	}
	target.setActive(true)
	r.activeID = id
	r.focusSeq++

	r.logger.WithField("session_id", id).Debug("Switched active session")
	return nil
}

// CreateSession registers a blank session under a fresh id and activates it.
func (r *Registry) CreateSession() *ReportSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	s := r.newSession(id)
	r.register(s)
	_ = r.switchLocked(id)

	r.logger.WithField("session_id", id).Info("Created session")
	return s
}

// CloseSession evicts a session from memory and activates the list view.
func (r *Registry) CloseSession(id string) error {
	r.mu.Lock()
	if id == ListViewID {
		defer r.mu.Unlock()
		return r.switchLocked(ListViewID)
	}
	if _, ok := r.sessions[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrUnknownSession, id)
	}
	r.evictLocked(id)
	err := r.switchLocked(ListViewID)
	r.mu.Unlock()

	r.clearCached(id)
	return err
}

// LoadFromRemote activates the session for id, fetching it from the store when it is not
// open yet. found is false with a nil error when the store has no such patient.
// Concurrent loads of one id share a single fetch. A load whose session was switched, created
// or loaded over while it was in flight caches the patient without activating it.
func (r *Registry) LoadFromRemote(ctx context.Context, id string) (found bool, err error) {
	r.mu.Lock()
	r.focusSeq++
	seq := r.focusSeq
	if _, ok := r.sessions[id]; ok {
		err := r.switchLocked(id)
		r.mu.Unlock()
		return true, err
	}
	r.mu.Unlock()

	record, err := r.fetch(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		r.logger.WithField("patient_id", id).Info("Patient not found")
		return false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, err
		}
		r.notifyError(err, "загрузить данные пациента")
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheRecordLocked(id, record)
	if seq != r.focusSeq {
		r.logger.WithField("patient_id", id).Debug("Superseded load, session cached without activation")
		return true, nil
	}
	return true, r.switchLocked(id)
}

// Prefetch loads several patients into memory without changing the active session.
// Missing patients are skipped.
func (r *Registry) Prefetch(ctx context.Context, ids ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.PrefetchConcurrency)

	for _, id := range ids {
		r.mu.Lock()
		_, open := r.sessions[id]
		r.mu.Unlock()
		if open {
			continue
		}

		g.Go(func() error {
			record, err := r.fetch(ctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to prefetch patient %s: %w", id, err)
			}
			r.mu.Lock()
			r.cacheRecordLocked(id, record)
			r.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// fetch gets a patient through the shared in-flight call for id. The call runs detached from
// any single caller so one cancelled caller does not fail the others; each caller stops
// waiting when its own ctx is done.
func (r *Registry) fetch(ctx context.Context, id string) (*domain.PatientRecord, error) {
	ch := r.loads.DoChan(id, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.FetchTimeout)
		defer cancel()
		return r.store.Get(fetchCtx, id)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.logger.WithField("patient_id", id).Debug("Shared in-flight patient fetch")
		}
		return res.Val.(*domain.PatientRecord), nil
	}
}

// cacheRecordLocked opens a session for record unless one is already open under id.
func (r *Registry) cacheRecordLocked(id string, record *domain.PatientRecord) {
	if _, ok := r.sessions[id]; ok {
		return
	}
	s := r.newSession(id)
	s.ApplyRecord(record)
	r.register(s)
}

// PersistActive saves the active session and refreshes the patient listing on success.
func (r *Registry) PersistActive(ctx context.Context) error {
	r.mu.Lock()
	if r.activeID == ListViewID {
		r.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	record := r.sessions[r.activeID].ToRecord()
	r.mu.Unlock()

	stored, created, err := r.store.Put(ctx, record)
	if err != nil {
		r.notifyError(err, "сохранить данные")
		return fmt.Errorf("failed to save patient %s: %w", record.ID, err)
	}

	r.logger.WithFields(logrus.Fields{
		"patient_id": stored.ID,
		"created":    created,
	}).Info("Saved patient")
	r.notify(domain.SeveritySuccess, MsgSaved)

	return r.RefreshIndex(ctx)
}

// DeleteRemote removes a patient from the store after operator confirmation and evicts its
// session. The list view is activated only when the deleted patient was the active one.
// A patient that is already gone is not an error.
func (r *Registry) DeleteRemote(ctx context.Context, id string) error {
	if err := r.confirm(ctx, fmt.Sprintf(PromptDelete, id)); err != nil {
		return err
	}

	err := r.store.Delete(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		r.logger.WithField("patient_id", id).Info("Patient already deleted")
	case err != nil:
		r.notifyError(err, "удалить пациента")
		return fmt.Errorf("failed to delete patient %s: %w", id, err)
	}

	r.mu.Lock()
	_, open := r.sessions[id]
	open = open && id != ListViewID
	wasActive := open && id == r.activeID
	if open {
		r.evictLocked(id)
	}
	if wasActive {
		_ = r.switchLocked(ListViewID)
	}
	r.mu.Unlock()

	if open {
		r.clearCached(id)
	}
	return r.RefreshIndex(ctx)
}

// ClearAllRemote wipes the store after operator confirmation and closes every open session.
func (r *Registry) ClearAllRemote(ctx context.Context) error {
	if err := r.confirm(ctx, PromptClear); err != nil {
		return err
	}

	if err := r.store.Clear(ctx); err != nil {
		r.notifyError(err, "удалить всех пациентов")
		return fmt.Errorf("failed to clear patients: %w", err)
	}

	r.mu.Lock()
	closed := append([]string(nil), r.order...)
	for _, id := range closed {
		r.evictLocked(id)
	}
	_ = r.switchLocked(ListViewID)
	r.mu.Unlock()

	r.clearCached(closed...)

	return r.RefreshIndex(ctx)
}

// RefreshIndex reloads the patient listing from the store.
func (r *Registry) RefreshIndex(ctx context.Context) error {
	index, err := r.store.List(ctx)
	if err != nil {
		r.notifyError(err, "загрузить список пациентов")
		return fmt.Errorf("failed to list patients: %w", err)
	}

	r.mu.Lock()
	r.index = index
	r.mu.Unlock()
	return nil
}

// Watch refreshes the listing whenever the store reports a change. It returns when the
// channel is closed or ctx is done.
func (r *Registry) Watch(ctx context.Context, events <-chan domain.ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.logger.WithFields(logrus.Fields{
				"type":       ev.Type,
				"patient_id": ev.ID,
			}).Debug("Remote patient change")
			if err := r.RefreshIndex(ctx); err != nil {
				r.logger.WithError(err).Warn("Failed to refresh patient index after change")
			}
		}
	}
}

// Index returns the last fetched patient listing.
func (r *Registry) Index() []domain.PatientSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PatientSummary, len(r.index))
	copy(out, r.index)
	return out
}

// Active returns the active session. In the list view this is the scratch session.
func (r *Registry) Active() *ReportSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[r.activeID]
}

// ActiveID returns the id of the active session, ListViewID in the list view.
func (r *Registry) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// Session returns an open session.
func (r *Registry) Session(id string) (*ReportSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// OpenSessions lists the ids of open patient sessions in the order they were opened.
func (r *Registry) OpenSessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Undo routes an undo to the active session.
func (r *Registry) Undo() bool {
	return r.Active().Undo()
}

// Redo routes a redo to the active session.
func (r *Registry) Redo() bool {
	return r.Active().Redo()
}

func (r *Registry) newSession(id string) *ReportSession {
	scope := id
	if id == ListViewID {
		scope = scratchScope
	}
	return NewReportSession(id, scope, r.logger, r.engine, r.cache, r.notifier, r.config.DefaultPrecision)
}

func (r *Registry) register(s *ReportSession) {
	r.sessions[s.ID()] = s
	r.order = append(r.order, s.ID())
}

func (r *Registry) evictLocked(id string) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	s.setActive(false)
	delete(r.sessions, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.WithField("session_id", id).Info("Closed session")
}

// clearCached drops the cached raw values of closed sessions. Call without the lock held.
func (r *Registry) clearCached(ids ...string) {
	if r.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheClearTimeout)
	defer cancel()
	for _, id := range ids {
		if err := r.cache.Clear(ctx, id); err != nil {
			r.logger.WithError(err).WithField("session_id", id).Warn("Failed to clear cached cells")
		}
	}
}

func (r *Registry) confirm(ctx context.Context, prompt string) error {
	if r.confirmer == nil {
		return domain.ErrNotConfirmed
	}
	ok, err := r.confirmer.Confirm(ctx, prompt)
	if err != nil {
		return fmt.Errorf("confirmation failed: %w", err)
	}
	if !ok {
		return domain.ErrNotConfirmed
	}
	return nil
}

func (r *Registry) notify(severity domain.Severity, message string) {
	if r.notifier != nil {
		r.notifier.Notify(severity, message)
	}
}

func (r *Registry) notifyError(err error, action string) {
	r.logger.WithError(err).WithField("action", action).Error("Patient store request failed")
	if errors.Is(err, domain.ErrUnavailable) {
		r.notify(domain.SeverityError, MsgOffline)
		return
	}
	r.notify(domain.SeverityError, ErrorMessage(action))
}
