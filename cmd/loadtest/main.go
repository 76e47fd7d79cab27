// Команда loadtest гоняет сценарии оформления заказа через REST API магазина
// и печатает сводку по задержкам и кодам ответа.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
)

type loadMode string

const (
	modeCheckout       loadMode = "checkout"
	modeCheckoutCancel loadMode = "checkout-cancel"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	quantity    int
	stock       int
	price       decimal.Decimal
	userTag     string
	adminID     string
	secret      string
	issuer      string
	audience    string
	outputPath  string
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg   config
		mode  string
		price string
	)
	issuer := getenv("STOREFRONT_JWT_ISSUER")
	if issuer == "" {
		issuer = "storefront"
	}
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.addr, "addr", "http://localhost:8080", "storefront API base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; with -duration only used when set explicitly")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&mode, "mode", string(modeCheckout), "load mode: checkout | checkout-cancel")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for checkout mode (0..100)")
	fs.IntVar(&cfg.quantity, "qty", 1, "units of the load product per order")
	fs.IntVar(&cfg.stock, "stock", 1_000_000, "initial stock of the load product")
	fs.StringVar(&price, "price", "9.99", "price of the load product")
	fs.StringVar(&cfg.userTag, "user-tag", "load", "username prefix for created shoppers")
	fs.StringVar(&cfg.adminID, "admin-id", getenv("STOREFRONT_LOADTEST_ADMIN_ID"), "id of an existing ADMIN user")
	fs.StringVar(&cfg.secret, "secret", getenv("STOREFRONT_JWT_SECRET"), "HMAC secret of the target service")
	fs.StringVar(&cfg.issuer, "iss", issuer, "token issuer")
	fs.StringVar(&cfg.audience, "aud", getenv("STOREFRONT_JWT_AUDIENCE"), "token audience")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	parsedMode, err := parseMode(mode)
	if err != nil {
		return cfg, err
	}
	cfg.mode = parsedMode
	if cfg.price, err = decimal.NewFromString(strings.TrimSpace(price)); err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	case cfg.quantity <= 0:
		return cfg, errors.New("qty must be > 0")
	case cfg.stock <= 0:
		return cfg, errors.New("stock must be > 0")
	case !cfg.price.IsPositive():
		return cfg, errors.New("price must be > 0")
	case strings.TrimSpace(cfg.userTag) == "":
		return cfg, errors.New("user-tag is required")
	case strings.TrimSpace(cfg.adminID) == "":
		return cfg, errors.New("admin-id is required (flag or STOREFRONT_LOADTEST_ADMIN_ID)")
	case strings.TrimSpace(cfg.secret) == "":
		return cfg, errors.New("secret is required (flag or STOREFRONT_JWT_SECRET)")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCheckout:
		return modeCheckout, nil
	case modeCheckoutCancel:
		return modeCheckoutCancel, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := run(cfg, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run заводит товар для нагрузки и прогоняет сценарии в cfg.concurrency воркерах.
func run(cfg config, startedAt time.Time) (report, error) {
	tokens, err := auth.NewHSProvider(cfg.secret, cfg.issuer, cfg.audience)
	if err != nil {
		return report{}, err
	}
	col := newCollector()
	client, err := newAPIClient(cfg, tokens, col)
	if err != nil {
		return report{}, err
	}

	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	productID, err := client.createProduct("load-"+runID, cfg.stock, cfg.price)
	if err != nil {
		return report{}, fmt.Errorf("prepare load product: %w", err)
	}

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for worker := 0; worker < cfg.concurrency; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				_ = runScenario(client, cfg, productID, runID, index)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()
	return col.buildReport(startedAt, time.Since(startedAt)), nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()
	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario регистрирует покупателя, кладёт товар в корзину и оформляет заказ.
// Итог сценария пишется в collector под именем scenario.
func runScenario(client *apiClient, cfg config, productID, runID string, index int) (err error) {
	start := time.Now()
	defer func() {
		status := 200
		var se *statusError
		switch {
		case errors.As(err, &se):
			status = se.status
		case err != nil:
			status = 0
		}
		client.col.record(scenarioMethod, time.Since(start), status)
	}()

	token, err := client.createShopper(fmt.Sprintf("%s-%s-%d", cfg.userTag, runID, index))
	if err != nil {
		return err
	}
	if err := client.addCartItem(token, productID, cfg.quantity); err != nil {
		return err
	}
	orderID, err := client.createOrder(token, fmt.Sprintf("lt-order-%s-%d", runID, index))
	if err != nil {
		return err
	}
	if orderID == "" {
		return errors.New("create order returned empty id")
	}

	if cfg.mode == modeCheckoutCancel || (cfg.mode == modeCheckout && shouldCancelScenario(index, cfg.cancelRate)) {
		return client.cancelOrder(token, orderID)
	}
	return nil
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}
