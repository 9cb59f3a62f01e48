// Package probe is the runtime library the rewriter's synthesized calls
// link against. GlobalInit loads the monitoring configuration once per
// process; LocalInit spawns a helper goroutine per instrumented goroutine
// and registers it so Instrument can reach it; Instrument signals the
// helper with one record per call site; CleanUp drains and joins it.
package probe

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/cwbudde/go-instrument/internal/config"
	"github.com/cwbudde/go-instrument/internal/instdata"
)

// StaticData and NewStaticData are re-exported under this package so every
// synthesized probe call only ever needs to import "probe", never
// internal/instdata directly.
type StaticData = instdata.StaticData

// NewStaticData constructs a StaticData value. Exported under this exact
// name and signature because the rewriter emits literal calls to it.
func NewStaticData(absolutePath, description string, astDepth uint64, sourceFile string, linesBegin, linesEnd uint64) StaticData {
	return instdata.NewStaticData(absolutePath, description, astDepth, sourceFile, linesBegin, linesEnd)
}

// Description constants name the phase of a rewritten call. The rewriter
// emits these as literal probe.DescriptionXxx selectors.
const (
	DescriptionGlobalBegin = "GLOBAL_BEGIN"
	DescriptionGlobalEnd   = "GLOBAL_END"
	DescriptionLocalBegin  = "LOCAL_BEGIN"
	DescriptionLocalEnd    = "LOCAL_END"
	DescriptionBegin       = "BEGIN"
	DescriptionEnd         = "END"
)

var (
	globalOnce sync.Once
	globalCfg  *config.Config
)

// GlobalInit reads the monitoring configuration once. A missing or
// malformed config file is logged and otherwise ignored here — by the time
// an instrumented binary runs, configuration errors are no longer the kind
// of fatal, pre-flight problem internal/pipeline reports; this call simply
// runs with instrumentation disabled (no collector connection) instead.
func GlobalInit() {
	globalOnce.Do(func() {
		path, err := config.DefaultPath()
		if err != nil {
			slog.Error("probe: unable to locate config file", "error", err)
			return
		}
		cfg, err := config.Load(path)
		if err != nil {
			slog.Error("probe: unable to load config", "error", err)
			return
		}
		globalCfg = cfg
		slog.Info("probe: global instrumentation initialized", "config", path)
	})
}

type message struct {
	data   StaticData
	finish bool
}

// Handle is the Go analogue of the reference implementation's JoinHandle:
// the helper goroutine's signal channel plus a WaitGroup that reports when
// the helper has drained and exited.
type Handle struct {
	ch  chan message
	wg  sync.WaitGroup
	tid uint64
}

// locals maps a goroutine's id (see goroutineID) to the Handle it
// registered with LocalInit, standing in for the thread-local storage the
// reference implementation uses and Go has no public equivalent of.
var locals sync.Map

// LocalInit spawns this goroutine's helper goroutine, opens its connection
// to the collector, and registers the resulting Handle under the calling
// goroutine's id so a bare Instrument call (no handle argument, matching
// the reference ABI) can find it again.
func LocalInit() *Handle {
	id := goroutineID()
	h := &Handle{ch: make(chan message, 1), tid: id}
	locals.Store(id, h)

	conn := dialCollector()
	dyn := instdata.DynData{
		Pid:      uint32(os.Getpid()),
		ThreadID: fmt.Sprintf("g-%d", id),
	}
	if globalCfg != nil {
		dyn.MachineID = globalCfg.MachineID
	}

	h.wg.Add(1)
	go runHelper(h, conn, dyn)
	return h
}

func runHelper(h *Handle, conn net.Conn, dyn instdata.DynData) {
	defer h.wg.Done()
	if conn != nil {
		defer conn.Close()
	}

	var counter uint64
	for msg := range h.ch {
		if msg.finish {
			return
		}
		counter++
		dyn.Counter = counter
		dyn.SystemTimeNs = uint64(time.Now().UnixNano())
		sendDatagram(conn, dyn, msg.data)
	}
}

func sendDatagram(conn net.Conn, dyn instdata.DynData, static StaticData) {
	if conn == nil {
		return
	}
	payload, err := instdata.Marshal(dyn, static)
	if err != nil {
		slog.Warn("probe: unable to encode instrumentation datagram", "error", err)
		return
	}
	if _, err := conn.Write(payload); err != nil {
		slog.Warn("probe: unable to send instrumentation datagram", "error", err)
	}
}

func dialCollector() net.Conn {
	if globalCfg == nil {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", globalCfg.CollectorIP, globalCfg.CollectorPort)
	conn, err := net.Dial("udp", addr)
	if err != nil {
		slog.Warn("probe: unable to reach collector", "address", addr, "error", err)
		return nil
	}
	return conn
}

// Instrument signals the calling goroutine's helper with one instrumentation
// record, stamping description onto it. Called immediately before and
// after every instrumented site, matching the general rewrite envelope.
func Instrument(data StaticData, description string) {
	data.Description = description

	v, ok := locals.Load(goroutineID())
	if !ok {
		slog.Warn("probe: Instrument called before LocalInit on this goroutine")
		return
	}
	handle := v.(*Handle)

	select {
	case handle.ch <- message{data: data}:
	default:
		slog.Warn("probe: dropping instrumentation record, helper is backed up")
	}
}

// CleanUp signals handle's helper to finish, waits for it to drain and
// exit, then forgets the goroutine's registration.
func CleanUp(handle *Handle) {
	if handle == nil {
		return
	}
	handle.ch <- message{finish: true}
	handle.wg.Wait()
	close(handle.ch)
	locals.Delete(handle.tid)
}

// goroutineID parses the running goroutine's numeric id out of a runtime
// stack trace — the same technique goroutine-local-storage libraries use,
// since runtime.Goid is not a public API. It is also what gets formatted
// into DynData.ThreadID, in place of the OS thread id the reference
// implementation captures.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if idx := bytes.IndexByte(buf, ' '); idx >= 0 {
		buf = buf[:idx]
	}
	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
