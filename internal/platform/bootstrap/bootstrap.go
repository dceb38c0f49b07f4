// Package bootstrap assembles the pipeline from configuration so the filer
// daemon and the rerxctl tooling wire dependencies the same way.
package bootstrap

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"

	"rerfiler/internal/filing/audit"
	"rerfiler/internal/filing/builder"
	"rerfiler/internal/filing/metrics"
	"rerfiler/internal/filing/models"
	"rerfiler/internal/filing/ports"
	"rerfiler/internal/filing/service"
	"rerfiler/internal/filing/store/report"
	"rerfiler/internal/filing/store/submission"
	"rerfiler/internal/filing/transport"
	"rerfiler/internal/platform/config"
)

// App is the assembled pipeline plus the handles the binaries manage.
type App struct {
	Service     *service.Service
	Submissions ports.SubmissionStore
	Reports     *report.MemoryStore
	AuditStore  *audit.MemoryStore
	AuditWorker *audit.Worker
	Metrics     *metrics.Metrics

	db *sql.DB
}

// Close releases owned resources.
func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// NewTransport selects the transport implementation once, per configuration.
func NewTransport(cfg config.Config) (transport.Client, error) {
	switch cfg.TransportBackend {
	case "sftp":
		sftpCfg := transport.SFTPConfig{
			Host:        cfg.SFTPHost,
			Port:        cfg.SFTPPort,
			User:        cfg.SFTPUser,
			Password:    cfg.SFTPPassword,
			OutboundDir: cfg.OutboundDir,
			InboundDir:  cfg.InboundDir,
			Timeout:     cfg.TransportTimeout,
		}
		if cfg.SFTPPrivateKeyPath != "" {
			key, err := os.ReadFile(cfg.SFTPPrivateKeyPath)
			if err != nil {
				return nil, fmt.Errorf("read sftp private key: %w", err)
			}
			sftpCfg.PrivateKeyPEM = key
		}
		if cfg.SFTPHostKeyPath != "" {
			hostKey, err := os.ReadFile(cfg.SFTPHostKeyPath)
			if err != nil {
				return nil, fmt.Errorf("read sftp host key: %w", err)
			}
			sftpCfg.HostKey = hostKey
		}
		return transport.NewSFTP(sftpCfg)
	case "local":
		return transport.NewLocal(
			filepath.Join(cfg.LocalTransportDir, "submissions"),
			filepath.Join(cfg.LocalTransportDir, "responses"),
		)
	}
	return nil, fmt.Errorf("unknown transport backend %q", cfg.TransportBackend)
}

// NewBuilderConfig maps deployment configuration onto the document builder.
func NewBuilderConfig(cfg config.Config) builder.Config {
	return builder.Config{
		TransmitterName: cfg.TransmitterName,
		TransmitterTIN:  cfg.TransmitterTIN,
		TransmitterTCC:  cfg.TransmitterTCC,
		TransmitterAddress: models.Address{
			Country: "US",
		},
		TransmitterPhone: cfg.TransmitterPhone,
		ContactName:      cfg.ContactName,
		ContactPhone:     cfg.ContactPhone,
		ContactEmail:     cfg.ContactEmail,
		MinFilingDate:    cfg.MinFilingDate,
		Sandbox:          !cfg.IsProduction(),
	}
}

// New assembles the full pipeline. The report store is the in-memory
// implementation; production deployments adapt the owning system's report
// storage to ports.ReportStore at this seam.
func New(cfg config.Config, logger *slog.Logger, withMetrics bool) (*App, error) {
	app := &App{
		Reports:    report.NewMemory(),
		AuditStore: audit.NewMemoryStore(),
	}

	switch cfg.StoreBackend {
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("RERX_POSTGRES_DSN is required for the postgres store")
		}
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.db = db
		app.Submissions = submission.NewPostgres(db)
	case "memory":
		app.Submissions = submission.NewMemory()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	tc, err := NewTransport(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	docBuilder := builder.New(NewBuilderConfig(cfg), builder.WithLogger(logger))

	publisher := audit.NewChannelPublisher(0, logger)
	app.AuditWorker = audit.NewWorker(app.AuditStore, publisher.Inbox())

	if withMetrics {
		app.Metrics = metrics.New()
	}

	svc, err := service.New(
		service.Config{FilenameSegment: cfg.EffectiveTCC()},
		app.Submissions,
		app.Reports,
		tc,
		docBuilder,
		service.WithLogger(logger),
		service.WithMetrics(app.Metrics),
		service.WithAuditPublisher(publisher),
	)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Service = svc
	return app, nil
}
