package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jdziat/keyed-jobs/pkg/core"
	"github.com/jdziat/keyed-jobs/pkg/queue"
)

// Job type names.
const (
	JobCreateSafe   = "create-order-safe"
	JobCreateUnsafe = "create-order-unsafe"
	JobReport       = "order-report"
)

// Submission methods.
const (
	MethodSafe   = "safe"
	MethodUnsafe = "unsafe"
)

// Defaults.
const (
	DefaultCount   = 5
	MaxCount       = 1000
	DefaultLatency = 100 * time.Millisecond
)

// Report status lines.
const (
	StatusDuplicates = "RACE CONDITION DETECTED - duplicate order IDs found!"
	StatusOK         = "OK - all order IDs are unique per vendor"
)

var (
	ErrVendorRequired = errors.New("orders: vendorId is required")
	ErrUnknownMethod  = errors.New("orders: method must be safe or unsafe")
	ErrInvalidCount   = errors.New("orders: count out of range")
)

// Store is the storage the service numbers and records orders in.
type Store interface {
	core.SequenceStore
	core.OrderLog
}

// CreateArgs are the arguments of both order jobs.
type CreateArgs struct {
	VendorID  string `json:"vendorId"`
	RequestID string `json:"requestId"`
}

// CreateResult is the result of both order jobs.
type CreateResult struct {
	Order  *core.Order `json:"order"`
	Method string      `json:"method"`
}

// Service creates vendor orders through a queue.
type Service struct {
	queue   *queue.Queue
	store   Store
	latency time.Duration
	admit   time.Duration
	logger  *slog.Logger
}

// Option configures a Service.
type Option interface {
	apply(*Service)
}

type optionFunc func(*Service)

func (f optionFunc) apply(s *Service) { f(s) }

// WithLatency sets the simulated work each job does before allocating.
// Zero disables it.
func WithLatency(d time.Duration) Option {
	return optionFunc(func(s *Service) {
		if d >= 0 {
			s.latency = d
		}
	})
}

// WithAdmissionTimeout bounds how long a safe order job waits for its
// vendor's key. Zero waits forever.
func WithAdmissionTimeout(d time.Duration) Option {
	return optionFunc(func(s *Service) {
		if d >= 0 {
			s.admit = d
		}
	})
}

// NewService creates the service and registers both order jobs on q.
func NewService(q *queue.Queue, store Store, opts ...Option) *Service {
	s := &Service{
		queue:   q,
		store:   store,
		latency: DefaultLatency,
		logger:  q.Logger(),
	}
	for _, opt := range opts {
		opt.apply(s)
	}

	q.Register(JobCreateSafe, s.handler(MethodSafe), queue.Serialized(), queue.Latency(s.latency), queue.AdmissionTimeout(s.admit))
	q.Register(JobCreateUnsafe, s.handler(MethodUnsafe), queue.Unsafe(), queue.Latency(s.latency))
	q.Register(JobReport, s.reportJob)
	return s
}

// reportJob logs the order report. It is meant to run on a schedule.
func (s *Service) reportJob(ctx context.Context, _ struct{}) (*Report, error) {
	r, err := s.Report(ctx)
	if err != nil {
		return nil, err
	}
	level := slog.LevelInfo
	if r.HasDuplicates() {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "order report", "total_orders", r.TotalOrders, "vendors", len(r.OrderIDsByVendor), "status", r.Status)
	return r, nil
}

func (s *Service) handler(method string) func(context.Context, CreateArgs) (CreateResult, error) {
	return func(ctx context.Context, args CreateArgs) (CreateResult, error) {
		order, err := s.CreateOrder(ctx, args.RequestID, args.VendorID)
		if err != nil {
			return CreateResult{}, err
		}
		return CreateResult{Order: order, Method: method}, nil
	}
}

// CreateOrder allocates the vendor's next order number and appends the
// order to the log. It does no locking of its own; concurrent calls for
// one vendor must be serialized by the caller.
func (s *Service) CreateOrder(ctx context.Context, requestID, vendorID string) (*core.Order, error) {
	if vendorID == "" {
		return nil, ErrVendorRequired
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}

	n, err := s.store.AllocateNext(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("allocate order number: %w", err)
	}

	order := &core.Order{
		ID:            requestID,
		VendorID:      vendorID,
		VendorOrderID: n,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.AppendOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("append order: %w", err)
	}
	return order, nil
}

// SimulateRequest asks for Count parallel order creations for one vendor.
type SimulateRequest struct {
	VendorID string `json:"vendorId"`
	Count    int    `json:"count"`
	Method   string `json:"method"`
}

// SimulateResult describes the submitted batch.
type SimulateResult struct {
	Message string   `json:"message"`
	Method  string   `json:"method"`
	JobIDs  []string `json:"jobIds"`
	Note    string   `json:"note"`
}

// Simulate resets the sequence store and order log, then submits
// req.Count order jobs for req.VendorID in parallel. It returns once every
// job is submitted, not when they finish.
//
// If a submission fails, the jobs already submitted keep running. Their
// ids are returned in the result alongside the error.
func (s *Service) Simulate(ctx context.Context, req SimulateRequest) (*SimulateResult, error) {
	if req.VendorID == "" {
		return nil, ErrVendorRequired
	}
	if req.Count == 0 {
		req.Count = DefaultCount
	}
	if req.Count < 0 || req.Count > MaxCount {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrInvalidCount, req.Count, MaxCount)
	}
	if req.Method == "" {
		req.Method = MethodSafe
	}

	var jobName, note string
	switch req.Method {
	case MethodSafe:
		jobName = JobCreateSafe
		note = "Using concurrency control - orders will be queued and processed one at a time per vendor"
	case MethodUnsafe:
		jobName = JobCreateUnsafe
		note = "No concurrency control - race conditions may occur!"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, req.Method)
	}

	if err := s.store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset store: %w", err)
	}

	ids := make([]string, req.Count)
	g, gctx := errgroup.WithContext(ctx)
	for i := range ids {
		g.Go(func() error {
			args := CreateArgs{VendorID: req.VendorID, RequestID: uuid.New().String()}
			id, err := s.queue.Submit(gctx, jobName, req.VendorID, args)
			if err != nil {
				return err
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		submitted := slices.DeleteFunc(ids, func(id string) bool { return id == "" })
		s.logger.Warn("order simulation partially submitted", "key", req.VendorID, "submitted", len(submitted), "count", req.Count, "error", err)
		return &SimulateResult{
			Message: fmt.Sprintf("Fired %d of %d order creation events for vendor %s", len(submitted), req.Count, req.VendorID),
			Method:  req.Method,
			JobIDs:  submitted,
			Note:    note,
		}, fmt.Errorf("submit orders: %w", err)
	}

	s.logger.Info("order simulation submitted", "key", req.VendorID, "method", req.Method, "count", req.Count)

	return &SimulateResult{
		Message: fmt.Sprintf("Fired %d order creation events for vendor %s", req.Count, req.VendorID),
		Method:  req.Method,
		JobIDs:  ids,
		Note:    note,
	}, nil
}

// Report summarizes the order log.
type Report struct {
	TotalOrders      int                `json:"totalOrders"`
	Orders           []*core.Order      `json:"orders"`
	OrderIDsByVendor map[string][]int64 `json:"orderIdsByVendor"`
	Duplicates       map[string][]int64 `json:"duplicates"`
	Status           string             `json:"status"`
}

// HasDuplicates reports whether any vendor received the same order number twice.
func (r *Report) HasDuplicates() bool {
	return len(r.Duplicates) > 0
}

// Report groups the logged orders by vendor and lists, per vendor, every
// order number seen more than once (one entry per repeat).
func (s *Service) Report(ctx context.Context) (*Report, error) {
	orders, err := s.store.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	return BuildReport(orders), nil
}

// BuildReport builds a Report from an order log.
func BuildReport(orders []*core.Order) *Report {
	r := &Report{
		TotalOrders:      len(orders),
		Orders:           orders,
		OrderIDsByVendor: make(map[string][]int64),
		Duplicates:       make(map[string][]int64),
	}
	if r.Orders == nil {
		r.Orders = []*core.Order{}
	}

	for _, o := range orders {
		r.OrderIDsByVendor[o.VendorID] = append(r.OrderIDsByVendor[o.VendorID], o.VendorOrderID)
	}

	for vendor, ids := range r.OrderIDsByVendor {
		seen := make(map[int64]bool, len(ids))
		var dups []int64
		for _, id := range ids {
			if seen[id] {
				dups = append(dups, id)
			}
			seen[id] = true
		}
		if len(dups) > 0 {
			slices.Sort(dups)
			r.Duplicates[vendor] = dups
		}
	}

	r.Status = StatusOK
	if r.HasDuplicates() {
		r.Status = StatusDuplicates
	}
	return r
}
