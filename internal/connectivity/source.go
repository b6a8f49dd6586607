package connectivity

import (
	"context"
	"net"
	"time"

	"github.com/angelmondragon/tillq/pkg/logger"
)

const defaultPollInterval = 3 * time.Second

// Check reports whether the platform currently has a usable network path.
type Check func() (bool, error)

// InterfaceCheck reports online when any non-loopback interface is up and has
// an address. It never contacts a remote endpoint.
func InterfaceCheck() (bool, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		return true, nil
	}
	return false, nil
}

// ReportFunc receives each check result. Monitor.Observe satisfies it.
type ReportFunc func(ctx context.Context, online bool)

// InterfaceSource polls a Check and forwards its answer to report.
type InterfaceSource struct {
	report   ReportFunc
	check    Check
	interval time.Duration
	logg     *logger.Logger
}

func NewInterfaceSource(report ReportFunc, check Check, interval time.Duration, logg *logger.Logger) *InterfaceSource {
	if check == nil {
		check = InterfaceCheck
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &InterfaceSource{report: report, check: check, interval: interval, logg: logg}
}

// Run polls until ctx is canceled.
func (s *InterfaceSource) Run(ctx context.Context) error {
	s.poll(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *InterfaceSource) poll(ctx context.Context) {
	online, err := s.check()
	if err != nil {
		// an unreadable interface table is treated as no connectivity
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "connectivity check failed")
		}
		online = false
	}
	s.report(ctx, online)
}
