package connectivity

import (
	"context"
	"sync"
	"time"

	"novel-client/internal/clock"
	"novel-client/internal/interfaces"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// State - состояние сети, которое получают подписчики.
type State string

const (
	Online  State = "online"
	Offline State = "offline"
)

func stateOf(online bool) State {
	if online {
		return Online
	}
	return Offline
}

var onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "storysync_connectivity_online",
	Help: "1 when the gateway is considered reachable, 0 otherwise.",
})

// Prober проверяет доступность сети. nil означает, что сеть доступна.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc позволяет использовать функцию как Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// Config содержит настройки монитора.
type Config struct {
	Interval      time.Duration // период фоновой проверки в Run
	ProbeTimeout  time.Duration // таймаут одной проверки
	InitialOnline bool          // состояние до первой проверки
}

var _ interfaces.ConnectivityChecker = (*Monitor)(nil)

// Monitor отслеживает переходы online/offline.
// Ошибка самой проверки трактуется как offline и наружу не передается.
type Monitor struct {
	prober Prober
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger

	mu     sync.Mutex
	online bool
	subs   map[uint64]chan State
	nextID uint64
}

// NewMonitor создает монитор. clk и logger могут быть nil.
func NewMonitor(prober Prober, cfg Config, clk clock.Clock, logger *zap.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		prober: prober,
		cfg:    cfg,
		clock:  clk,
		logger: logger.Named("ConnectivityMonitor"),
		online: cfg.InitialOnline,
		subs:   make(map[uint64]chan State),
	}
	onlineGauge.Set(boolToFloat(m.online))
	return m
}

// CurrentlyOnline возвращает последнее известное состояние сети.
func (m *Monitor) CurrentlyOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Check выполняет проверку немедленно и возвращает новое состояние.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.probe(ctx)
	m.Report(online)
	return online
}

func (m *Monitor) probe(ctx context.Context) (online bool) {
	if m.prober == nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("Connectivity probe panicked, reporting offline", zap.Any("panic", r))
			online = false
		}
	}()

	if err := m.prober.Probe(probeCtx); err != nil {
		m.logger.Debug("Connectivity probe failed, reporting offline", zap.Error(err))
		return false
	}
	return true
}

// Report устанавливает состояние напрямую (например, по событию платформы).
// Подписчики уведомляются только при смене состояния.
func (m *Monitor) Report(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online
	onlineGauge.Set(boolToFloat(online))
	m.logger.Info("Connectivity changed", zap.String("state", string(stateOf(online))))

	state := stateOf(online)
	for _, ch := range m.subs {
		deliverLatest(ch, state)
	}
}

// Subscribe возвращает поток состояний. Первое значение - текущее состояние,
// далее только переходы. Канал закрывается после отмены ctx.
// Медленный подписчик получает самое свежее состояние, промежуточные отбрасываются.
func (m *Monitor) Subscribe(ctx context.Context) <-chan State {
	ch := make(chan State, 1)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	ch <- stateOf(m.online)
	m.subs[id] = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		close(ch)
		m.mu.Unlock()
	}()

	return ch
}

// Run проверяет сеть сразу и затем с периодом cfg.Interval, пока ctx не отменен.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Connectivity monitor started", zap.Duration("interval", m.cfg.Interval))
	for {
		m.Check(ctx)
		select {
		case <-ctx.Done():
			m.logger.Info("Connectivity monitor stopped")
			return ctx.Err()
		case <-m.clock.After(m.cfg.Interval):
		}
	}
}

func deliverLatest(ch chan State, state State) {
	select {
	case ch <- state:
		return
	default:
	}
	// Буфер занят устаревшим значением - заменяем его.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- state:
	default:
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
