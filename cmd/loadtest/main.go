// Команда loadtest нагружает OrderService сценариями создания, принятия и отмены заказов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/wholesale/internal/service/grpc"
)

const idempotencyHeader = "idempotency-key"

type loadMode string

const (
	modeCreate             loadMode = "create"
	modeCreateAccept       loadMode = "create-accept"
	modeCreateAcceptCancel loadMode = "create-accept-cancel"
)

type config struct {
	addr         string
	total        int
	duration     time.Duration
	concurrency  int
	connections  int
	timeout      time.Duration
	mode         loadMode
	variantID    string
	quantitySets int
	accountTag   string
	outputPath   string
}

// orderAPI — подмножество клиента, которое нужно сценарию.
type orderAPI interface {
	CreateOrder(ctx context.Context, in *grpcsvc.CreateOrderRequest, opts ...grpc.CallOption) (*grpcsvc.CreateOrderResponse, error)
	TransitionOrder(ctx context.Context, in *grpcsvc.TransitionOrderRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var (
		cfg  config
		mode string
	)

	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run when -duration is not set")
	fs.DurationVar(&cfg.duration, "duration", 0, "run for a fixed time instead of -total")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 8, "gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&mode, "mode", string(modeCreate), "create | create-accept | create-accept-cancel")
	fs.StringVar(&cfg.variantID, "variant", "demo-kurta-red", "product variant to order")
	fs.IntVar(&cfg.quantitySets, "sets", 1, "sets per order line")
	fs.StringVar(&cfg.accountTag, "account", "demo-retailer", "account id used for generated orders")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report path")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	switch loadMode(strings.TrimSpace(mode)) {
	case modeCreate, modeCreateAccept, modeCreateAcceptCancel:
		cfg.mode = loadMode(strings.TrimSpace(mode))
	default:
		return config{}, fmt.Errorf("unsupported mode: %s", mode)
	}

	switch {
	case cfg.duration < 0:
		return config{}, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return config{}, errors.New("total must be > 0 when duration is not set")
	case cfg.concurrency <= 0 || cfg.connections <= 0:
		return config{}, errors.New("concurrency and connections must be > 0")
	case cfg.timeout <= 0:
		return config{}, errors.New("timeout must be > 0")
	case cfg.quantitySets <= 0:
		return config{}, errors.New("sets must be > 0")
	case strings.TrimSpace(cfg.variantID) == "" || strings.TrimSpace(cfg.accountTag) == "":
		return config{}, errors.New("variant and account are required")
	}
	return cfg, nil
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	clients := make([]orderAPI, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "create grpc client: %v\n", dialErr)
			os.Exit(1)
		}
		defer conn.Close()
		clients = append(clients, grpcsvc.NewOrderServiceClient(conn))
	}

	result := runLoad(context.Background(), cfg, clients)
	printReport(os.Stdout, result, cfg.mode)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.Failed > 0 {
		os.Exit(1)
	}
}

func runLoad(ctx context.Context, cfg config, clients []orderAPI) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d", startedAt.UnixNano())
	rec := newRecorder()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for worker := 0; worker < cfg.concurrency; worker++ {
		wg.Add(1)
		go func(client orderAPI) {
			defer wg.Done()
			for index := range jobs {
				runScenario(ctx, client, cfg, runID, index, rec)
			}
		}(clients[worker%len(clients)])
	}

	dispatch(ctx, jobs, cfg)
	wg.Wait()

	return rec.build(startedAt, time.Since(startedAt))
}

func dispatch(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
		return
	}

	deadline := time.NewTimer(cfg.duration)
	defer deadline.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario проводит заказ по выбранной цепочке; каждая команда идёт со своим idempotency-key.
func runScenario(ctx context.Context, client orderAPI, cfg config, runID string, index int, rec *recorder) {
	started := time.Now()
	code := codes.OK
	defer func() { rec.observe(scenarioStep, time.Since(started), code) }()

	var orderID string
	err := call(ctx, cfg, rec, "CreateOrder", fmt.Sprintf("lt-create-%s-%d", runID, index), func(callCtx context.Context) error {
		resp, err := client.CreateOrder(callCtx, &grpcsvc.CreateOrderRequest{
			AccountID:     cfg.accountTag,
			PaymentMethod: string(domain.PaymentMethodCredit),
			Lines:         []grpcsvc.CreateLine{{VariantID: cfg.variantID, QuantitySets: int32(cfg.quantitySets)}},
		})
		if err == nil {
			orderID = resp.Order.ID
		}
		return err
	})
	if err != nil {
		code = status.Code(err)
		return
	}
	if cfg.mode == modeCreate {
		return
	}

	if err := transition(ctx, client, cfg, rec, runID, index, orderID, domain.OrderStatusAccepted, ""); err != nil {
		code = status.Code(err)
		return
	}
	if cfg.mode == modeCreateAcceptCancel {
		if err := transition(ctx, client, cfg, rec, runID, index, orderID, domain.OrderStatusCancelled, "load test"); err != nil {
			code = status.Code(err)
		}
	}
}

func transition(ctx context.Context, client orderAPI, cfg config, rec *recorder, runID string, index int, orderID string, target domain.OrderStatus, reason string) error {
	step := "Transition:" + string(target)
	key := fmt.Sprintf("lt-%s-%s-%d", target, runID, index)
	return call(ctx, cfg, rec, step, key, func(callCtx context.Context) error {
		_, err := client.TransitionOrder(callCtx, &grpcsvc.TransitionOrderRequest{
			OrderID:      orderID,
			TargetStatus: string(target),
			Confirmed:    true,
			Reason:       reason,
			Actor:        "loadtest",
		})
		return err
	})
}

func call(ctx context.Context, cfg config, rec *recorder, step, key string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	callCtx = metadata.AppendToOutgoingContext(callCtx, idempotencyHeader, key)

	started := time.Now()
	err := fn(callCtx)
	rec.observe(step, time.Since(started), status.Code(err))
	return err
}
