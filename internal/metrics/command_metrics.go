package metrics

import (
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/temirov/shellwire/internal/execshell"
)

const (
	namespaceConstant           = "shellwire"
	commandsTotalNameConstant   = "commands_total"
	commandsTotalHelpConstant   = "Commands executed by the driver, partitioned by outcome."
	commandDurationNameConstant = "command_duration_seconds"
	commandDurationHelpConstant = "Wall-clock time between sending a command and receiving its delimiter."
	sessionsStartedNameConstant = "sessions_started_total"
	sessionsStartedHelpConstant = "Shell sessions spawned by the driver."
	sessionsStoppedNameConstant = "sessions_stopped_total"
	sessionsStoppedHelpConstant = "Shell sessions terminated or reaped by the driver."
	activeSessionsNameConstant  = "active_session_pid"
	activeSessionsHelpConstant  = "Process identifier of the running shell session, zero when none is running."
	outcomeLabelConstant        = "outcome"
	exitStatusLabelConstant     = "exit_status"
	outcomeSuccessConstant      = "success"
	outcomeNonZeroConstant      = "non_zero"
	outcomeSessionEndedConstant = "session_ended"
	outcomeFailedConstant       = "failed"
	exitStatusNoneConstant      = "none"
)

// ErrRegistryNotConfigured indicates that WriteText was called on metrics without a registry.
var ErrRegistryNotConfigured = errors.New("metrics registry not configured")

// CommandMetrics records driver activity as Prometheus metrics.
// It implements execshell.CommandEventObserver and execshell.SessionEventObserver.
type CommandMetrics struct {
	registry        *prometheus.Registry
	commandsTotal   *prometheus.CounterVec
	commandDuration prometheus.Histogram
	sessionsStarted prometheus.Counter
	sessionsStopped prometheus.Counter
	activeSession   prometheus.Gauge

	mutex        sync.Mutex
	startedTimes map[string]time.Time
	clock        func() time.Time
}

// NewCommandMetrics creates the collectors and registers them with a private registry.
func NewCommandMetrics() *CommandMetrics {
	commandMetrics := &CommandMetrics{
		registry: prometheus.NewRegistry(),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceConstant,
			Name:      commandsTotalNameConstant,
			Help:      commandsTotalHelpConstant,
		}, []string{outcomeLabelConstant, exitStatusLabelConstant}),
		commandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceConstant,
			Name:      commandDurationNameConstant,
			Help:      commandDurationHelpConstant,
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceConstant,
			Name:      sessionsStartedNameConstant,
			Help:      sessionsStartedHelpConstant,
		}),
		sessionsStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceConstant,
			Name:      sessionsStoppedNameConstant,
			Help:      sessionsStoppedHelpConstant,
		}),
		activeSession: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceConstant,
			Name:      activeSessionsNameConstant,
			Help:      activeSessionsHelpConstant,
		}),
		startedTimes: make(map[string]time.Time),
		clock:        time.Now,
	}
	commandMetrics.registry.MustRegister(
		commandMetrics.commandsTotal,
		commandMetrics.commandDuration,
		commandMetrics.sessionsStarted,
		commandMetrics.sessionsStopped,
		commandMetrics.activeSession,
	)
	return commandMetrics
}

// Registry exposes the registry holding the driver collectors.
func (commandMetrics *CommandMetrics) Registry() *prometheus.Registry {
	return commandMetrics.registry
}

// CommandStarted remembers when the command began so completion can observe its duration.
func (commandMetrics *CommandMetrics) CommandStarted(command execshell.Command) {
	commandMetrics.mutex.Lock()
	defer commandMetrics.mutex.Unlock()
	commandMetrics.startedTimes[command.ID] = commandMetrics.clock()
}

// CommandCompleted counts the command under its outcome and records its duration.
func (commandMetrics *CommandMetrics) CommandCompleted(command execshell.Command, result execshell.Result) {
	outcome := outcomeSuccessConstant
	switch {
	case result.SessionEnded:
		outcome = outcomeSessionEndedConstant
	case result.ExitStatus != 0:
		outcome = outcomeNonZeroConstant
	}
	commandMetrics.commandsTotal.WithLabelValues(outcome, strconv.Itoa(result.ExitStatus)).Inc()
	commandMetrics.observeDuration(command)
}

// CommandExecutionFailed counts commands that produced no exit status.
func (commandMetrics *CommandMetrics) CommandExecutionFailed(command execshell.Command, _ error) {
	commandMetrics.commandsTotal.WithLabelValues(outcomeFailedConstant, exitStatusNoneConstant).Inc()
	commandMetrics.observeDuration(command)
}

// SessionStarted counts a spawned shell and records its process identifier.
func (commandMetrics *CommandMetrics) SessionStarted(processIdentifier int) {
	commandMetrics.sessionsStarted.Inc()
	commandMetrics.activeSession.Set(float64(processIdentifier))
}

// SessionStopped counts a terminated shell.
func (commandMetrics *CommandMetrics) SessionStopped(int) {
	commandMetrics.sessionsStopped.Inc()
	commandMetrics.activeSession.Set(0)
}

// WriteText renders every collected metric in the Prometheus text exposition format.
func (commandMetrics *CommandMetrics) WriteText(writer io.Writer) error {
	if commandMetrics == nil || commandMetrics.registry == nil {
		return ErrRegistryNotConfigured
	}
	metricFamilies, gatherError := commandMetrics.registry.Gather()
	if gatherError != nil {
		return gatherError
	}
	for _, metricFamily := range metricFamilies {
		if _, encodeError := expfmt.MetricFamilyToText(writer, metricFamily); encodeError != nil {
			return encodeError
		}
	}
	return nil
}

func (commandMetrics *CommandMetrics) observeDuration(command execshell.Command) {
	commandMetrics.mutex.Lock()
	startedAt, found := commandMetrics.startedTimes[command.ID]
	delete(commandMetrics.startedTimes, command.ID)
	now := commandMetrics.clock()
	commandMetrics.mutex.Unlock()
	if !found {
		return
	}
	commandMetrics.commandDuration.Observe(now.Sub(startedAt).Seconds())
}
