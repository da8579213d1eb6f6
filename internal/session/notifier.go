package session

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
)

// DefaultDismissDelay is how long a notification stays visible.
const DefaultDismissDelay = 5 * time.Second

// Operator messages.
const (
	MsgSaved          = "Успешно сохранено."
	MsgOffline        = "Похоже, что вы не в сети. Рекомендуем перезагрузить страницу."
	MsgInvalidCell    = "Допустимы только цифры, '.', ',' и '-'."
	MsgConclusionLost = "Текст заключения был изменён вручную и будет заменён рассчитанным."
)

// ErrorMessage formats the error notification for a failed action, e.g. "сохранить данные".
func ErrorMessage(action string) string {
	return "Кажется, произошла ошибка при попытке " + action + "."
}

// Toast is a single visible notification.
type Toast struct {
	Severity domain.Severity `json:"severity"`
	Message  string          `json:"message"`
	ShownAt  time.Time       `json:"shown_at"`
}

// Toaster shows one notification at a time. A new notification replaces the visible one,
// and each is dismissed automatically after the configured delay.
type Toaster struct {
	mu      sync.Mutex
	logger  *logrus.Logger
	delay   time.Duration
	current *Toast
	timer   *time.Timer
	seq     uint64
	onShow  func(Toast)
}

// NewToaster creates a toaster. onShow, if set, is called for every shown notification.
func NewToaster(logger *logrus.Logger, delay time.Duration, onShow func(Toast)) *Toaster {
	if delay <= 0 {
		delay = DefaultDismissDelay
	}
	return &Toaster{
		logger: logger,
		delay:  delay,
		onShow: onShow,
	}
}

// Notify implements domain.Notifier.
func (t *Toaster) Notify(severity domain.Severity, message string) {
	toast := Toast{Severity: severity, Message: message, ShownAt: time.Now()}

	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.seq++
	seq := t.seq
	t.current = &toast
	t.timer = time.AfterFunc(t.delay, func() { t.expire(seq) })
	onShow := t.onShow
	t.mu.Unlock()

	entry := t.logger.WithField("severity", severity)
	switch severity {
	case domain.SeverityError:
		entry.Error(message)
	case domain.SeverityWarning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}

	if onShow != nil {
		onShow(toast)
	}
}

func (t *Toaster) expire(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seq == seq {
		t.current = nil
		t.timer = nil
	}
}

// Current returns the visible notification, if any.
func (t *Toaster) Current() (Toast, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return Toast{}, false
	}
	return *t.current, true
}

// Dismiss hides the visible notification.
func (t *Toaster) Dismiss() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.current = nil
}
