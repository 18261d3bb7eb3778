//go:build !windows

/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command nxtvepgd is the teletext EPG acquisition and distribution
// daemon: it scans a database directory, optionally drives a capture
// card through the driver boundary, and serves CONNECT/FORWARD/BLOCK_IND
// sessions over a Unix socket and, optionally, TCP.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/tomzo/nxtvepgd/acquisition"
	"github.com/tomzo/nxtvepgd/config"
	"github.com/tomzo/nxtvepgd/dbcontext"
	"github.com/tomzo/nxtvepgd/driver"
	"github.com/tomzo/nxtvepgd/nettransport"
	"github.com/tomzo/nxtvepgd/server"
	"github.com/tomzo/nxtvepgd/tuner"
	"github.com/tomzo/nxtvepgd/wire"
)

// Exit codes, per the daemon's documented CLI contract.
const (
	exitOK          = 0
	exitBadCLI      = 1
	exitDriverError = 2
	exitRCFileError = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		daemonize  bool
		daemonStop bool
		acqPassive bool
		cardIdx    int
		dbDir      string
		demoFile   string
		rcFile     string
		tcpPort    int
		logLevel   string
	)
	home, _ := os.UserHomeDir()
	defaultRC := home + "/.nxtvepgrc"

	flag.BoolVar(&daemonize, "daemon", false, "run as a background service (logs a warning: this build expects a supervisor, e.g. systemd, instead of forking)")
	flag.BoolVar(&daemonStop, "daemonstop", false, "send CLOSE_IND to the running daemon and exit")
	flag.BoolVar(&acqPassive, "acqpassive", false, "force passive acquisition mode")
	flag.IntVar(&cardIdx, "card", 0, "capture card index")
	flag.StringVar(&dbDir, "dbdir", ".", "database directory")
	flag.StringVar(&demoFile, "demo", "", "run against a fixed EPG dump instead of live acquisition")
	flag.StringVar(&rcFile, "rcfile", defaultRC, "path to the rc-file")
	flag.IntVar(&tcpPort, "port", 0, "TCP port to additionally listen on (0 disables TCP)")
	flag.StringVar(&logLevel, "loglevel", "info", "log level: debug, info, warning, error")
	flag.Parse()

	switch logLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		fmt.Fprintf(os.Stderr, "unrecognized log level: %s\n", logLevel)
		return exitBadCLI
	}

	if daemonStop {
		if err := sendDaemonStop(tcpPort); err != nil {
			log.Errorf("daemonstop: %v", err)
			return exitBadCLI
		}
		return exitOK
	}
	if daemonize {
		log.Warning("-daemon requested but this build does not fork: run it under a supervisor instead")
	}

	cfg, err := config.Load(rcFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Errorf("rc-file %s: %v", rcFile, err)
			return exitRCFileError
		}
		log.Infof("no rc-file at %s, using defaults", rcFile)
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		log.Errorf("rc-file %s: %v", rcFile, err)
		return exitRCFileError
	}
	if acqPassive {
		cfg.Acquisition.AcqMode = config.AcqModePassive
	}

	reg := prometheus.NewRegistry()
	db := dbcontext.NewManager(dbDir)
	if err := db.ScanDir(); err != nil {
		log.Errorf("scanning %s: %v", dbDir, err)
		return exitDriverError
	}

	tun, dec, err := buildDriver(demoFile)
	if err != nil {
		log.Errorf("driver: %v", err)
		return exitDriverError
	}
	tc := tuner.NewController(tun, dec)
	acqMetrics := acquisition.NewMetrics(reg)
	acq := acquisition.NewManager(dec, aiBiCodec{}, db, acqMetrics, cfg.Acquisition.AcqMode)
	if cfg.Acquisition.AcqMode == config.AcqModeFollowMerged {
		mergeCfg, err := cfg.Database.MergeConfig()
		if err != nil {
			log.Errorf("rc-file %s: merge config: %v", rcFile, err)
			return exitRCFileError
		}
		acq.MergeCfg = &mergeCfg
	}
	if err := tc.Tune(cardIdx, driver.InputTuner, 0); err != nil {
		log.Warningf("tune: %v (continuing in passive mode)", err)
	}

	stats := newDaemonStats(acq, tc)
	srvMetrics := server.NewMetrics(reg)
	srv := server.NewServer(db, stats, srvMetrics)

	listenFds, err := listenAll(cfg, tcpPort)
	if err != nil {
		log.Errorf("listen: %v", err)
		return exitDriverError
	}
	defer func() {
		for _, fd := range listenFds {
			unix.Close(fd)
		}
	}()

	if err := sdNotifyReady(); err != nil {
		log.Warningf("sd_notify: %v", err)
	}
	log.Infof("nxtvepgd ready, dbdir=%s providers=%v", dbDir, db.GetProvList())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	lastDump := time.Now()

	running := true
	for running {
		pollFds := buildPollFds(listenFds, srv)
		n, err := unix.Poll(pollFds, 1000)
		if err != nil && err != unix.EINTR {
			log.Errorf("poll: %v", err)
			break
		}
		if n > 0 {
			dispatchPoll(pollFds, listenFds, srv)
		}

		select {
		case <-ticker.C:
			now := time.Now()
			srv.Idle(now)
			if overflow := acq.ProcessBlocks(); overflow {
				stats.recordBlock(0, 1)
			} else {
				stats.recordBlock(uint32(acq.Queue.Count()), 0)
			}
			if now.Sub(lastDump) >= acquisition.DumpInterval {
				for _, errDump := range db.DumpDirty() {
					log.Warningf("dump: %v", errDump)
				}
				lastDump = now
			}
		case sig := <-sigCh:
			log.Infof("received %v, shutting down", sig)
			running = false
		default:
		}
	}

	for _, errDump := range db.DumpDirty() {
		log.Warningf("final dump: %v", errDump)
	}
	return exitOK
}

// buildPollFds lists every fd the daemon wants readiness for: the
// listen sockets (always readable-interest) plus each session fd from
// the server's own read/write-interest accounting.
func buildPollFds(listenFds []int, srv *server.Server) []unix.PollFd {
	pfds := make([]unix.PollFd, 0, len(listenFds)+len(srv.Sessions()))
	for _, fd := range listenFds {
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	readFds, writeFds := srv.BuildFDSets()
	wantWrite := map[int]bool{}
	for _, fd := range writeFds {
		wantWrite[fd] = true
	}
	for _, fd := range readFds {
		ev := int16(unix.POLLIN)
		if wantWrite[fd] {
			ev |= unix.POLLOUT
		}
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: ev})
	}
	return pfds
}

func dispatchPoll(pfds []unix.PollFd, listenFds []int, srv *server.Server) {
	isListen := map[int32]bool{}
	for _, fd := range listenFds {
		isListen[int32(fd)] = true
	}
	for _, pfd := range pfds {
		if pfd.Revents == 0 {
			continue
		}
		if isListen[pfd.Fd] {
			conn, err := nettransport.Accept(int(pfd.Fd))
			if err != nil {
				log.Warningf("accept: %v", err)
				continue
			}
			srv.Accept(conn.Fd, conn.Peer)
			continue
		}
		readable := pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
		writable := pfd.Revents&unix.POLLOUT != 0
		srv.Pump(int(pfd.Fd), readable, writable)
	}
}

func listenAll(cfg config.Config, tcpPortFlag int) ([]int, error) {
	unixFd, err := nettransport.Listen(false, "", 0)
	if err != nil {
		return nil, fmt.Errorf("unix listen: %w", err)
	}
	fds := []int{unixFd}

	port := tcpPortFlag
	if port == 0 && cfg.ClientServer.DoTCPIP {
		if p, convErr := parsePort(cfg.ClientServer.Port); convErr == nil {
			port = p
		}
	}
	if port != 0 {
		tcpFd, err := nettransport.Listen(true, cfg.ClientServer.HostName, port)
		if err != nil {
			return fds, fmt.Errorf("tcp listen: %w", err)
		}
		fds = append(fds, tcpFd)
	}
	return fds, nil
}

func parsePort(s string) (int, error) {
	var p int
	_, err := fmt.Sscanf(s, "%d", &p)
	return p, err
}

// aiBiCodec adapts dbcontext's block codec to acquisition.BlockCodec.
type aiBiCodec struct{}

func (aiBiCodec) DecodeAI(payload []byte) (*dbcontext.AI, error) {
	return dbcontext.DecodeAIBlock(payload)
}

func (aiBiCodec) DecodeBI(payload []byte) (pageStart, pageStop int, err error) {
	if len(payload) < 4 {
		return 0, 0, fmt.Errorf("BI block too short (%d bytes)", len(payload))
	}
	pageStart = int(payload[0])<<8 | int(payload[1])
	pageStop = int(payload[2])<<8 | int(payload[3])
	return pageStart, pageStop, nil
}

func sdNotifyReady() error {
	supported, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if !supported && err != nil {
		return err
	} else if !supported {
		log.Debug("sd_notify not supported (NOTIFY_SOCKET unset)")
	}
	return nil
}

// sendDaemonStop connects to a running daemon and sends it a normal
// CLOSE_IND, the CLI's way of asking the daemon to exit.
func sendDaemonStop(tcpPort int) error {
	var (
		conn *nettransport.Conn
		err  error
	)
	if tcpPort != 0 {
		conn, err = nettransport.Connect("127.0.0.1", tcpPort, true)
	} else {
		conn, err = nettransport.Connect("", 0, false)
	}
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	pfd := []unix.PollFd{{Fd: int32(conn.Fd), Events: unix.POLLOUT}}
	if _, err := unix.Poll(pfd, 2000); err != nil {
		return fmt.Errorf("connect: poll: %w", err)
	}
	if pfd[0].Revents&unix.POLLOUT == 0 {
		return fmt.Errorf("timed out connecting")
	}
	if err := nettransport.ConnectComplete(conn.Fd); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	frame, err := wire.Build(wire.MsgCloseInd, wire.CloseInd{Reason: wire.CloseNormal}.Marshal())
	if err != nil {
		return err
	}
	if _, err := unix.Write(conn.Fd, frame); err != nil {
		return fmt.Errorf("write CLOSE_IND: %w", err)
	}
	return nil
}
