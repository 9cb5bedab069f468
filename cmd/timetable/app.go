package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/cmlabs-hris/timetable-core/internal/config"
	"github.com/cmlabs-hris/timetable-core/internal/domain/approval"
	"github.com/cmlabs-hris/timetable-core/internal/domain/attendance"
	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/timesheet"
	"github.com/cmlabs-hris/timetable-core/internal/domain/vacancy"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/lock"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/metrics"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/sse"
	"github.com/cmlabs-hris/timetable-core/internal/repository/postgresql"
	approvalService "github.com/cmlabs-hris/timetable-core/internal/service/approval"
	attendanceService "github.com/cmlabs-hris/timetable-core/internal/service/attendance"
	notificationService "github.com/cmlabs-hris/timetable-core/internal/service/notification"
	permissionService "github.com/cmlabs-hris/timetable-core/internal/service/permission"
	taskService "github.com/cmlabs-hris/timetable-core/internal/service/task"
	timesheetService "github.com/cmlabs-hris/timetable-core/internal/service/timesheet"
	vacancyService "github.com/cmlabs-hris/timetable-core/internal/service/vacancy"
	workerdayService "github.com/cmlabs-hris/timetable-core/internal/service/workerday"
)

// app holds every wired component. Commands build one and use the parts
// they need.
type app struct {
	cfg     *config.Config
	db      *database.DB
	tx      *postgresql.Transactor
	metrics *metrics.Metrics
	hub     *sse.Hub
	locker  lock.Locker

	orgRepo   org.Repository
	taskRepo  task.Repository
	eventRepo notification.Repository
	outbox    *taskService.Outbox

	workerDays workerday.Service
	attendance attendance.Service
	vacancies  vacancy.Service
	approvals  approval.Service
	timesheets timesheet.Service

	linker    *workerdayService.Linker
	scanner   *vacancyService.Scanner
	deliverer *notificationService.Deliverer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, func(), error) {
	db, err := database.NewPostgreSQLDB(cfg.DatabaseURL(), cfg.Database.MaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	cleanup := func() { db.Close() }

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		locker = lock.NewRedisLocker(client)
		cleanup = func() {
			_ = client.Close()
			db.Close()
		}
	} else {
		slog.Warn("REDIS_ADDR not set, locks are held in process only")
	}

	m := metrics.New()
	tx := postgresql.NewTransactor(db, cfg.Worker.TxMaxAttempts)

	// Repositories
	workerDayRepo := postgresql.NewWorkerDayRepository(db)
	orgRepo := postgresql.NewOrgRepository(db)
	staffRepo := postgresql.NewStaffRepository(db)
	permissionRepo := postgresql.NewPermissionRepository(db)
	attendanceRepo := postgresql.NewAttendanceRepository(db)
	forecastRepo := postgresql.NewForecastRepository(db)
	calendarRepo := postgresql.NewCalendarRepository(db)
	timesheetRepo := postgresql.NewTimesheetRepository(db)
	taskRepo := postgresql.NewTaskRepository(db)
	eventRepo := postgresql.NewNotificationRepository(db)

	// Services
	outbox := taskService.NewOutbox(taskRepo, cfg.Worker.TaskMaxAttempts)
	publisher := notificationService.NewPublisher(outbox)
	checker := permissionService.NewChecker(permissionRepo, staffRepo, orgRepo)

	workerDays := workerdayService.NewWorkerDayService(tx, workerDayRepo, orgRepo, staffRepo, checker, outbox)
	attendanceSvc := attendanceService.NewAttendanceService(tx, attendanceRepo, workerDayRepo, orgRepo, staffRepo, outbox, publisher)
	vacancies := vacancyService.NewVacancyService(tx, workerDayRepo, orgRepo, staffRepo, forecastRepo, outbox, publisher, m)
	approvals := approvalService.NewApprovalService(tx, workerDayRepo, orgRepo, staffRepo, checker, outbox, publisher, m)
	timesheets := timesheetService.NewTimesheetService(tx, timesheetRepo, workerDayRepo, orgRepo, staffRepo, calendarRepo)

	hub := sse.NewHub()
	m.ObserveSubscribers(hub.TotalSubscribers)

	return &app{
		cfg:        cfg,
		db:         db,
		tx:         tx,
		metrics:    m,
		hub:        hub,
		locker:     locker,
		orgRepo:    orgRepo,
		taskRepo:   taskRepo,
		eventRepo:  eventRepo,
		outbox:     outbox,
		workerDays: workerDays,
		attendance: attendanceSvc,
		vacancies:  vacancies,
		approvals:  approvals,
		timesheets: timesheets,
		linker:     workerdayService.NewLinker(workerDayRepo, orgRepo, workerdayService.NewHoursCalculator(orgRepo, staffRepo)),
		scanner:    vacancyService.NewScanner(vacancies, orgRepo, locker),
		deliverer:  notificationService.NewDeliverer(eventRepo, hub, m),
	}, cleanup, nil
}

// dispatcher registers a handler for every task kind the services schedule.
func (a *app) dispatcher() *taskService.Dispatcher {
	d := taskService.NewDispatcher(a.taskRepo, taskService.Config{
		Workers:      a.cfg.Worker.Count,
		PollInterval: a.cfg.Worker.OutboxPollInterval,
		Timeout:      a.cfg.Worker.TaskTimeout,
	}, a.metrics)

	d.Register(task.KindVacancyScan, vacancyService.ScanHandler(a.scanner))
	d.Register(task.KindRecalcTimesheet, timesheetService.RecalcHandler(a.timesheets, a.locker))
	d.Register(task.KindRelinkClosestPlan, workerdayService.RelinkHandler(a.tx, a.linker))
	d.Register(task.KindBlockDays, workerdayService.BlockDaysHandler(a.workerDays))
	d.Register(task.KindReconcileFact, attendanceService.ReconcileHandler(a.attendance))
	d.Register(task.KindPublishEvent, a.deliverer.Handler())
	return d
}
