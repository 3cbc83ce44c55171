package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"

	"duochat/domain"
	"duochat/presence"
	"duochat/repositories"
	"duochat/runtime"
	"duochat/runtime/workers"
	"duochat/services"
)

// BaseSuite boots the whole stack once per suite: one Badger store, one
// bus, one supervisor; clients attach and detach per scenario the way
// separate processes would over a real backend.
type BaseSuite struct {
	suite.Suite
	Config      Config
	StepTimeout time.Duration

	log   *slog.Logger
	db    *badger.DB
	bus   *runtime.Bus
	store *repositories.Store

	supervisor *workers.Supervisor
	cancel     context.CancelFunc
	workerCtx  context.Context
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	s.StepTimeout, err = time.ParseDuration(s.Config.StepTimeout)
	s.Require().NoError(err)

	path := s.Config.DBPath
	if path == "" {
		path = s.T().TempDir()
	}
	s.db, err = badger.Open(badger.DefaultOptions(path).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	s.Require().NoError(err)

	s.log = logs.GetLoggerFromLevel(slog.LevelInfo)
	s.bus = runtime.NewBus(s.log, 64)
	s.store = repositories.NewStore(s.db, s.log, s.bus)

	s.workerCtx, s.cancel = context.WithCancel(context.Background())
	s.supervisor = workers.NewSupervisor(s.log, 200*time.Millisecond)
}

func (s *BaseSuite) TearDownSuite() {
	s.cancel()
	s.Require().NoError(s.db.Close())
}

// Step prints a colorized header so suite output reads as a scenario.
func (s *BaseSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Connect registers a profile and attaches a full client for it.
func (s *BaseSuite) Connect(name string) (*services.Session, uuid.UUID) {
	userID := uuid.New()
	s.Require().NoError(s.store.SaveProfile(context.Background(), domain.Profile{ID: userID, Name: name}))

	tracker := presence.NewTracker(s.bus, s.store, s.log)
	session := services.NewSession(services.SessionDeps{
		Gateway:          s.store,
		Bus:              s.bus,
		Tracker:          tracker,
		Log:              s.log,
		UserID:           userID,
		MaxContentLength: 4000,
	})
	pumps, err := session.Start(s.workerCtx)
	s.Require().NoError(err)
	for _, pump := range pumps {
		s.supervisor.Start(s.workerCtx, pump)
	}
	return session, userID
}

// WaitFor wraps the step timeout around a propagation condition.
func (s *BaseSuite) WaitFor(condition func() bool, msg string) {
	s.Require().Eventually(condition, s.StepTimeout, 20*time.Millisecond, msg)
}
