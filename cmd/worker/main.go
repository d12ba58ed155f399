package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/campusledger/campusledger/internal/app"
	"github.com/campusledger/campusledger/internal/catalog"
	"github.com/campusledger/campusledger/internal/directory"
	jobmetrics "github.com/campusledger/campusledger/internal/jobs"
	"github.com/campusledger/campusledger/internal/ledger"
	"github.com/campusledger/campusledger/internal/platform/cache"
	"github.com/campusledger/campusledger/internal/platform/db"
	"github.com/campusledger/campusledger/internal/reporting"
	"github.com/campusledger/campusledger/internal/shared"
	"github.com/campusledger/campusledger/jobs"
)

type catalogStructures struct {
	svc *catalog.Service
}

func (a catalogStructures) StructureFor(ctx context.Context, programID, classID int64) (*ledger.Structure, error) {
	st, err := a.svc.Structure(ctx, programID, classID)
	if err != nil || st == nil {
		return nil, err
	}
	return narrowStructure(st), nil
}

func (a catalogStructures) StructureByID(ctx context.Context, id int64) (*ledger.Structure, error) {
	st, err := a.svc.StructureByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return narrowStructure(st), nil
}

func narrowStructure(st *catalog.FeeStructure) *ledger.Structure {
	return &ledger.Structure{
		ID:               st.ID,
		ProgramID:        st.ProgramID,
		ClassID:          st.ClassID,
		TotalAmount:      st.TotalAmount,
		InstallmentCount: st.InstallmentCount,
	}
}

type directoryStudents struct {
	svc *directory.Service
}

func (a directoryStudents) Student(ctx context.Context, id int64) (*ledger.StudentInfo, error) {
	st, err := a.svc.Student(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ledger.StudentInfo{
		ID:               st.ID,
		Name:             st.Name,
		ProgramID:        st.ProgramID,
		ClassID:          st.ClassID,
		TuitionFee:       st.TuitionFee,
		InstallmentCount: st.InstallmentCount,
	}, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	directoryService := directory.NewService(directory.NewRepository(pool))
	catalogService := catalog.NewService(catalog.NewRepository(pool))

	ledgerService := ledger.NewService(
		ledger.NewRepository(pool),
		catalogStructures{svc: catalogService},
		directoryStudents{svc: directoryService},
		shared.NewKeyedMutex(),
		logger,
	)

	reportingCache := reporting.NewCache(redisClient, cfg.ReportCacheTTL)
	reportingService := reporting.NewService(reporting.NewRepository(pool), reportingCache, logger)
	ledgerService.SetMutationListener(reportingService)

	metrics := jobmetrics.NewMetrics(nil)
	sweepJob := jobs.NewOverdueSweepJob(ledgerService, logger, metrics)
	warmupJob := jobs.NewReportWarmupJob(reportingService, logger, metrics)

	sweepTask, err := jobs.NewOverdueSweepTask(jobs.OverdueSweepPayload{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskChallanOverdueSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskReportWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OverdueSweepSpec, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 0 * * *", Task: jobs.NewReportWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
