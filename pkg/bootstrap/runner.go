package bootstrap

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/core-tools/hsu-bootstrap/pkg/envconfig"
	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
	"github.com/core-tools/hsu-bootstrap/pkg/monitoring"
	"github.com/core-tools/hsu-bootstrap/pkg/processfile"
	"github.com/core-tools/hsu-bootstrap/pkg/provision"
	"github.com/core-tools/hsu-bootstrap/pkg/renewal"
	"github.com/core-tools/hsu-bootstrap/pkg/shutdown"
	"github.com/core-tools/hsu-bootstrap/pkg/supervisor"
)

const statusStopTimeout = 5 * time.Second

// RunOptions carries the collaborators Run does not build itself
type RunOptions struct {
	// Output receives the auxiliary process output, os.Stdout if nil
	Output io.Writer

	// Metrics is created when nil
	Metrics *monitoring.Metrics

	// LookupEnv replaces os.LookupEnv for the environment layer
	LookupEnv envconfig.LookupEnvFunc
}

// Run executes the boot sequence: register the shutdown hook, resolve,
// provision, start and settle the auxiliary process, start the renewal loop,
// then block in host. Only invalid bootstrap options are fatal; any other
// failure before the auxiliary process runs is logged and the host still
// starts. The returned code is the host's.
func Run(ctx context.Context, config *Config, host HostFunc, options RunOptions, logger logging.Logger) (int, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := validateOptions(&config.Bootstrap); err != nil {
		return 1, errors.NewValidationError("invalid bootstrap configuration", err)
	}
	if host == nil {
		host = WaitHost()
	}
	if options.Output == nil {
		options.Output = os.Stdout
	}
	if options.Metrics == nil {
		options.Metrics = monitoring.NewMetrics()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	runner := &runner{
		config:  config,
		options: options,
		logger:  logger,
		flag:    shutdown.NewRunningFlag(),
	}
	return runner.run(ctx, host)
}

type runner struct {
	config  *Config
	options RunOptions
	logger  logging.Logger
	flag    *shutdown.RunningFlag

	supervisor *supervisor.Supervisor
}

func (r *runner) run(ctx context.Context, host HostFunc) (int, error) {
	settings := r.config.Bootstrap
	r.logger.Infof("Bootstrap starting, id: %s, variant: %s", settings.ID, settings.Variant)

	r.supervisor = supervisor.NewSupervisor(supervisor.Options{
		ID:       settings.ID,
		Output:   r.options.Output,
		PIDFiles: r.pidFiles(),
		Metrics:  r.options.Metrics,
	}, logging.ForModule(r.logger, "supervisor"))

	coordinator := shutdown.NewCoordinator(r.flag, shutdown.Options{
		GracePeriod: settings.GracePeriod,
		HookTimeout: settings.HookTimeout,
	}, logging.ForModule(r.logger, "shutdown"))

	scheduler := r.newScheduler()
	var stopper shutdown.Stopper
	if scheduler != nil {
		stopper = scheduler
	}

	if err := coordinator.Register(r.supervisor, stopper); err != nil {
		return 1, err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go func() {
		select {
		case <-coordinator.Done():
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	if err := r.startAuxiliary(runCtx); err != nil {
		r.logger.Errorf("Error initializing %s: %v", settings.ID, err)
	}

	if scheduler != nil && r.flag.IsRunning() {
		if err := scheduler.Start(runCtx, r.flag); err != nil {
			r.logger.Errorf("Failed to start renewal loop: %v", err)
		}
	}

	health := monitoring.NewHealthMonitor(r.config.Health, r.alivePID, r.options.Metrics,
		logging.ForModule(r.logger, "health"))
	if err := health.Start(runCtx); err != nil {
		r.logger.Errorf("Failed to start health monitor: %v", err)
	}
	defer health.Stop()

	if settings.StatusAddress != "" {
		status := monitoring.NewStatusServer(monitoring.StatusOptions{
			Address: settings.StatusAddress,
			Metrics: r.options.Metrics,
			Health:  health,
			Process: r,
			Running: r.flag,
		}, logging.ForModule(r.logger, "status"))
		if err := status.Start(); err != nil {
			r.logger.Errorf("Failed to start status endpoint: %v", err)
		} else {
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), statusStopTimeout)
				defer cancel()
				if err := status.Stop(stopCtx); err != nil {
					r.logger.Warnf("Status endpoint did not stop cleanly: %v", err)
				}
			}()
		}
	}

	var code int
	var hostErr error
	if r.flag.IsRunning() {
		r.logger.Infof("Starting host application")
		code, hostErr = host(runCtx)
		if hostErr != nil {
			r.logger.Errorf("Host application failed: %v", hostErr)
		} else {
			r.logger.Infof("Host application exited, code: %d", code)
		}
	} else {
		r.logger.Infof("Shutdown requested during startup, host application not started")
	}

	if err := coordinator.Fire("host exited"); err != nil {
		r.logger.Errorf("Shutdown finished with errors: %v", err)
	}

	return code, hostErr
}

// newScheduler returns nil when renewal is disabled or its settings are invalid
func (r *runner) newScheduler() *renewal.Scheduler {
	if !r.config.Renewal.Enabled {
		return nil
	}
	if err := renewal.ValidateTask(r.config.Renewal.Task); err != nil {
		r.logger.Errorf("Invalid renewal configuration, skipping renewal loop: %v", err)
		return nil
	}
	return renewal.NewScheduler(r.config.Renewal.Task, logging.ForModule(r.logger, "renewal")).
		WithMetrics(r.options.Metrics)
}

// startAuxiliary resolves configuration, provisions the artifact and starts
// the supervised process, then waits up to the settle timeout for an early
// exit. A shutdown fired meanwhile ends the wait.
func (r *runner) startAuxiliary(ctx context.Context) error {
	settings := r.config.Bootstrap

	variant, err := LookupVariant(settings.Variant, r.config.Variant)
	if err != nil {
		return err
	}

	resolver := envconfig.NewResolver(variant.Defaults, variant.AllowList, logging.ForModule(r.logger, "envconfig"))
	if r.options.LookupEnv != nil {
		resolver.WithLookupEnv(r.options.LookupEnv)
	}
	cfg, err := resolver.Resolve(settings.EnvFile)
	if err != nil {
		return err
	}
	CheckValues(cfg, r.logger)

	if err := provision.ValidateConfig(r.config.Provisioner); err != nil {
		return errors.NewValidationError("invalid provisioner configuration", err)
	}
	provisioner, err := provision.New(r.config.Provisioner, r.options.Output, logging.ForModule(r.logger, "provision"))
	if err != nil {
		return err
	}
	if provisioner == nil {
		r.logger.Infof("No provisioner configured, skipping auxiliary process")
		return nil
	}

	artifact, err := provisioner.Provision(ctx, cfg)
	if err != nil {
		r.options.Metrics.RecordProvisioningFailure(provisioner.Name())
		if !errors.IsProvisioningError(err) {
			err = errors.NewProvisioningError("provisioning failed", err).WithContext("provisioner", provisioner.Name())
		}
		return err
	}

	if !r.flag.IsRunning() {
		r.logger.Infof("Shutdown requested, not starting %s", settings.ID)
		return nil
	}
	p, err := r.supervisor.Start(ctx, artifact.Path, artifact.Args, artifact.WorkingDir, cfg)
	if err != nil {
		return err
	}

	// The hook may have looked for a process before this one was recorded
	if !r.flag.IsRunning() {
		return r.supervisor.Shutdown(p, settings.GracePeriod)
	}

	code, exited := r.supervisor.AwaitExit(p, settings.SettleTimeout)
	switch {
	case !r.flag.IsRunning():
		r.logger.Infof("Shutdown requested while %s was starting", settings.ID)
	case exited:
		r.logger.Warnf("%s exited during startup, exit code: %d", settings.ID, code)
	default:
		r.logger.Infof("%s is running", settings.ID)
	}
	return nil
}

func (r *runner) pidFiles() *processfile.ProcessFileManager {
	if r.config.Bootstrap.PIDDirectory == "" {
		return nil
	}
	return processfile.NewProcessFileManager(processfile.ProcessFileConfig{
		BaseDirectory: r.config.Bootstrap.PIDDirectory,
	}, logging.ForModule(r.logger, "processfile"))
}

func (r *runner) alivePID() int {
	p := r.supervisor.Current()
	if !p.IsAlive() {
		return 0
	}
	return p.PID()
}

// ProcessStatus reports the auxiliary process for the status endpoint
func (r *runner) ProcessStatus() monitoring.ProcessStatus {
	status := monitoring.ProcessStatus{ID: r.config.Bootstrap.ID}
	p := r.supervisor.Current()
	if p == nil {
		return status
	}
	status.PID = p.PID()
	status.Alive = p.IsAlive()
	if code, exited := p.ExitCode(); exited {
		status.ExitCode = &code
	}
	return status
}
