// loadtest гоняет конкурентные сценарии заказов против in-memory хранилища и
// после прогона сверяет балансы баллов и счётчики тегов с историей заказов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/cart"
	"github.com/vladislavdragonenkov/shop/internal/service/order"
	"github.com/vladislavdragonenkov/shop/internal/service/points"
	"github.com/vladislavdragonenkov/shop/internal/service/tags"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

const (
	itemPrice    = int64(1000)
	itemsInStock = 4
	historyPage  = 100
	codeOK       = "ok"
	codeInternal = "internal"
)

type loadMode string

const (
	modePlace       loadMode = "place"
	modePlaceCancel loadMode = "place-cancel"
	modeCart        loadMode = "cart"
)

type config struct {
	total        int
	totalSet     bool
	duration     time.Duration
	concurrency  int
	members      int
	initialPoint int64
	usedPoint    int64
	accrualBPS   int64
	mode         loadMode
	cancelRate   int
	outputPath   string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Rejected  int64            `json:"rejected"`
	Failed    int64            `json:"failed"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt       time.Time               `json:"started_at"`
	DurationSeconds float64                 `json:"duration_seconds"`
	TotalScenarios  int64                   `json:"total_scenarios"`
	FailedScenarios int64                   `json:"failed_scenarios"`
	RPS             float64                 `json:"rps"`
	Methods         map[string]methodReport `json:"methods"`
	Violations      []string                `json:"violations"`
}

type methodStats struct {
	calls     int64
	success   int64
	rejected  int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{methods: make(map[string]*methodStats)}
}

func (c *collector) record(method string, latency time.Duration, err error) {
	code := errorCode(err)

	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{codes: make(map[string]int64)}
		c.methods[method] = stats
	}
	stats.calls++
	switch code {
	case codeOK:
		stats.success++
	case codeInternal:
		stats.failed++
	default:
		stats.rejected++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration, scenarios, failed int64) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		TotalScenarios:  scenarios,
		FailedScenarios: failed,
		Methods:         make(map[string]methodReport, len(c.methods)),
	}
	if duration > 0 {
		result.RPS = float64(scenarios) / duration.Seconds()
	}
	for name, stats := range c.methods {
		codes := make(map[string]int64, len(stats.codes))
		for code, n := range stats.codes {
			codes[code] = n
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Rejected:  stats.rejected,
			Failed:    stats.failed,
			Codes:     codes,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}
	return result
}

// errorCode отделяет ожидаемые бизнес-отказы от внутренних ошибок.
func errorCode(err error) string {
	switch {
	case err == nil:
		return codeOK
	case errors.Is(err, domain.ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return codeInternal
	}
}

// fixture собирает сервисы поверх in-memory хранилища с засеянными участниками и товарами.
type fixture struct {
	store   *memory.Store
	orders  *order.Manager
	carts   *cart.Service
	tracker *tags.Tracker
	tagID   int64
	members []domain.Member
	items   []domain.Item
}

func newFixture(cfg config) *fixture {
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	entry := logger.WithField("component", "loadtest")

	m := metrics.NewShopMetricsWithRegisterer(prometheus.NewRegistry())
	store := memory.NewStore()
	ledger := points.NewLedger(points.WithAccrualRate(cfg.accrualBPS), points.WithMetrics(m))
	tracker := tags.NewTracker(store, m, entry)
	orders := order.NewManager(store, ledger, tracker, order.WithMetrics(m), order.WithLogger(entry))

	f := &fixture{
		store:   store,
		orders:  orders,
		carts:   cart.NewService(store, orders, cart.WithMetrics(m), cart.WithLogger(entry)),
		tracker: tracker,
	}
	f.tagID = store.AddTag(domain.Tag{Name: "stress"}).ID
	for i := 0; i < itemsInStock; i++ {
		f.items = append(f.items, store.AddItem(domain.Item{
			Name:  fmt.Sprintf("stress item %d", i+1),
			Price: itemPrice * int64(i+1),
		}, []int64{f.tagID}, ""))
	}
	for i := 0; i < cfg.members; i++ {
		f.members = append(f.members, store.AddMember(domain.Member{
			Email: fmt.Sprintf("member-%d@stress.test", i+1),
			Point: cfg.initialPoint,
		}))
	}
	return f
}

func (f *fixture) runScenario(ctx context.Context, cfg config, id int, col *collector) error {
	member := f.members[id%len(f.members)]
	item := f.items[id%len(f.items)]

	timed := func(method string, fn func() error) error {
		started := time.Now()
		err := fn()
		col.record(method, time.Since(started), err)
		if errorCode(err) == codeInternal {
			return fmt.Errorf("%s: %w", method, err)
		}
		return err
	}

	switch cfg.mode {
	case modeCart:
		var lineIDs []int64
		for _, it := range []domain.Item{item, f.items[(id+1)%len(f.items)]} {
			var lineID int64
			err := timed("cart_add_item", func() (err error) {
				lineID, err = f.carts.AddItem(ctx, member.Email, it.ID, 1)
				return err
			})
			if err != nil {
				return internalOnly(err)
			}
			lineIDs = append(lineIDs, lineID)
		}
		return internalOnly(timed("cart_convert", func() error {
			_, err := f.carts.ConvertToOrder(ctx, member.Email, lineIDs, cfg.usedPoint)
			return err
		}))
	default:
		var orderID int64
		err := timed("place_order", func() (err error) {
			orderID, err = f.orders.PlaceSingleItemOrder(ctx, member.Email, order.PlaceOrderRequest{
				ItemID: item.ID, Count: 1, UsedPoint: cfg.usedPoint,
			})
			return err
		})
		if err != nil {
			return internalOnly(err)
		}
		if cfg.mode == modePlaceCancel && shouldCancel(id, cfg.cancelRate) {
			return internalOnly(timed("cancel_order", func() error {
				return f.orders.CancelOrder(ctx, member.Email, orderID)
			}))
		}
		return nil
	}
}

// internalOnly скрывает бизнес-отказы: они не считаются провалом сценария.
func internalOnly(err error) error {
	if errorCode(err) == codeInternal {
		return err
	}
	return nil
}

func shouldCancel(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

// verify сверяет итоговое состояние с историей заказов: баланс равен начальному
// минус нетто по незакрытым заказам и не уходит в минус, а счётчик тега равен числу позиций.
func (f *fixture) verify(ctx context.Context, cfg config) ([]string, error) {
	var violations []string
	lines := int64(0)

	for _, member := range f.members {
		expected := cfg.initialPoint
		for page := 0; ; page++ {
			history, err := f.orders.ListOrders(ctx, member.Email, page, historyPage)
			if err != nil {
				return nil, fmt.Errorf("list orders for %s: %w", member.Email, err)
			}
			for _, o := range history.Orders {
				lines += int64(len(o.Lines))
				if settled(o) {
					expected += o.AccPoint - o.UsedPoint
				}
			}
			if int64((page+1)*historyPage) >= history.Total {
				break
			}
		}

		current, ok := f.store.Member(member.ID)
		if !ok {
			return nil, fmt.Errorf("member %d disappeared", member.ID)
		}
		if current.Point < 0 {
			violations = append(violations, fmt.Sprintf("member %s has negative balance %d", member.Email, current.Point))
		}
		if current.Point != expected {
			violations = append(violations, fmt.Sprintf("member %s balance=%d expected=%d", member.Email, current.Point, expected))
		}
	}

	tag, ok := f.store.Tag(f.tagID)
	if !ok {
		return nil, fmt.Errorf("tag %d disappeared", f.tagID)
	}
	if tag.TotalSell != lines {
		violations = append(violations, fmt.Sprintf("tag total_sell=%d expected=%d", tag.TotalSell, lines))
	}
	return violations, nil
}

// settled сообщает, что баллы заказа не были возвращены.
func settled(o domain.OrderHistory) bool {
	switch o.Status {
	case domain.OrderStatusOrder:
		return true
	case domain.OrderStatusReturn:
		return o.ReturnStatus == domain.ReturnStatusRequested
	default:
		return false
	}
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	cfg := config{}
	var mode string
	fs.IntVar(&cfg.total, "total", 1000, "число сценариев (при -duration ограничивает сверху)")
	fs.DurationVar(&cfg.duration, "duration", 0, "длительность прогона; при 0 прогон идёт по числу сценариев")
	fs.IntVar(&cfg.concurrency, "concurrency", 16, "число параллельных воркеров")
	fs.IntVar(&cfg.members, "members", 8, "число участников, чем меньше, тем выше конкуренция")
	fs.Int64Var(&cfg.initialPoint, "initial-point", 500, "начальный баланс участника")
	fs.Int64Var(&cfg.usedPoint, "used-point", 10, "баллы, списываемые в каждом заказе")
	fs.Int64Var(&cfg.accrualBPS, "accrual-bps", 50, "ставка начисления в базисных пунктах")
	fs.StringVar(&mode, "mode", string(modePlaceCancel), "сценарий: place|place-cancel|cart")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 30, "процент отменяемых заказов для place-cancel")
	fs.StringVar(&cfg.outputPath, "output", "", "путь для JSON-отчёта")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	parsed, err := parseMode(mode)
	if err != nil {
		return config{}, err
	}
	cfg.mode = parsed

	var errs []error
	if cfg.total <= 0 {
		errs = append(errs, errors.New("total must be > 0"))
	}
	if cfg.duration < 0 {
		errs = append(errs, errors.New("duration must be >= 0"))
	}
	if cfg.concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be > 0"))
	}
	if cfg.members <= 0 {
		errs = append(errs, errors.New("members must be > 0"))
	}
	if cfg.initialPoint < 0 || cfg.usedPoint < 0 {
		errs = append(errs, errors.New("points must be >= 0"))
	}
	if cfg.accrualBPS < 0 || cfg.accrualBPS > 10000 {
		errs = append(errs, errors.New("accrual-bps must be within [0, 10000]"))
	}
	if cfg.cancelRate < 0 || cfg.cancelRate > 100 {
		errs = append(errs, errors.New("cancel-rate must be within [0, 100]"))
	}
	return cfg, errors.Join(errs...)
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.ToLower(strings.TrimSpace(value))) {
	case modePlace:
		return modePlace, nil
	case modePlaceCancel:
		return modePlaceCancel, nil
	case modeCart:
		return modeCart, nil
	default:
		return "", fmt.Errorf("unsupported mode %q (use place|place-cancel|cart)", value)
	}
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := run(context.Background(), cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 || len(result.Violations) > 0 {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) (report, error) {
	f := newFixture(cfg)
	col := newCollector()

	startedAt := time.Now()
	jobs := make(chan int, cfg.concurrency*2)
	var scenarios, failures int64
	var wg sync.WaitGroup
	for w := 0; w < cfg.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				atomic.AddInt64(&scenarios, 1)
				if err := f.runScenario(ctx, cfg, id, col); err != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}
	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt), scenarios, failures)
	violations, err := f.verify(ctx, cfg)
	if err != nil {
		return report{}, err
	}
	result.Violations = violations
	return result, nil
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; ; i++ {
		if (cfg.duration <= 0 || cfg.totalSet) && i >= cfg.total {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- путь задаётся явно флагом -output.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "mode=%s scenarios=%d failed=%d duration=%.2fs rps=%.2f\n",
		cfg.mode, result.TotalScenarios, result.FailedScenarios, result.DurationSeconds, result.RPS)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(w, "%s: calls=%d success=%d rejected=%d failed=%d p50=%.2fms p95=%.2fms p99=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Rejected, stats.Failed,
			stats.LatencyMs.P50, stats.LatencyMs.P95, stats.LatencyMs.P99)
	}
	if len(result.Violations) == 0 {
		_, _ = fmt.Fprintln(w, "invariants: ok")
		return
	}
	for _, violation := range result.Violations {
		_, _ = fmt.Fprintf(w, "invariant violated: %s\n", violation)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}
