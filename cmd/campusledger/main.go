package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/campusledger/campusledger/internal/app"
	"github.com/campusledger/campusledger/internal/arrears"
	"github.com/campusledger/campusledger/internal/catalog"
	"github.com/campusledger/campusledger/internal/directory"
	"github.com/campusledger/campusledger/internal/ledger"
	"github.com/campusledger/campusledger/internal/observability"
	"github.com/campusledger/campusledger/internal/platform/cache"
	"github.com/campusledger/campusledger/internal/platform/db"
	"github.com/campusledger/campusledger/internal/promotion"
	"github.com/campusledger/campusledger/internal/reporting"
	"github.com/campusledger/campusledger/internal/shared"
	"github.com/campusledger/campusledger/jobs"
)

// catalogStructures adapts the fee catalog to the narrow structure view the
// ledger and promotion gate consume.
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

// directoryStudents adapts the directory to the ledger's student view.
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

// classNames resolves class display names for shortfall reports.
type classNames struct {
	svc *directory.Service
}

func (a classNames) ClassName(ctx context.Context, classID int64) (string, error) {
	class, err := a.svc.Class(ctx, classID)
	if err != nil {
		return "", err
	}
	return class.Name, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, report caching disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	locks := shared.NewKeyedMutex()

	directoryRepo := directory.NewRepository(pool)
	directoryService := directory.NewService(directoryRepo)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	structures := catalogStructures{svc: catalogService}
	students := directoryStudents{svc: directoryService}

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, structures, students, locks, logger)
	ledgerService.SetMetrics(metrics)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	arrearsRepo := arrears.NewRepository(pool)
	arrearsService := arrears.NewService(arrearsRepo, ledgerService, structures, classNames{svc: directoryService}, logger)
	arrearsHandler := arrears.NewHandler(logger, arrearsService)

	promotionService := promotion.NewService(directoryService, ledgerService, structures, arrearsService, locks, logger)
	promotionService.SetMetrics(metrics)
	promotionHandler := promotion.NewHandler(logger, promotionService)

	reportingRepo := reporting.NewRepository(pool)
	reportingCache := reporting.NewCache(redisClient, cfg.ReportCacheTTL)
	reportingService := reporting.NewService(reportingRepo, reportingCache, logger)
	reportingHandler := reporting.NewHandler(logger, reportingService)
	ledgerService.SetMutationListener(reportingService)

	jobHandler := jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CatalogHandler:   catalogHandler,
		LedgerHandler:    ledgerHandler,
		ArrearsHandler:   arrearsHandler,
		PromotionHandler: promotionHandler,
		ReportingHandler: reportingHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
