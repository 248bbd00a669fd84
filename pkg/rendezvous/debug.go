/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package rendezvous

import (
	"os"
	"strconv"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/srediag/shm-rendezvous/pkg/keys"
)

type logger struct {
	name string
	z    *zap.SugaredLogger
}

var (
	level          atomic.Int32
	internalLogger = newLogger("rendezvous", nil)
)

const (
	levelTrace = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
	levelNoPrint
)

func init() {
	level.Store(levelWarn)
	if v := os.Getenv(envPrefix + "_LOG_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= levelTrace && n <= levelNoPrint {
			level.Store(int32(n))
		}
	}
}

// SetLogLevel changes the level of every channel logger; the default is Warn
// (3). Levels run from Trace (0) to NoPrint (5). The SHM_RENDEZVOUS_LOG_LEVEL
// environment variable sets the initial level.
func SetLogLevel(l int) {
	if l >= levelTrace && l <= levelNoPrint {
		level.Store(int32(l))
	}
}

func defaultZapLogger() *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.TimeKey = "time"
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), zapcore.DebugLevel)
	return zap.New(core, zap.AddCaller())
}

// newLogger wraps base, or a console logger on stdout when base is nil.
// Filtering happens against the package level, so base should not drop
// debug entries.
func newLogger(name string, base *zap.Logger) *logger {
	if base == nil {
		base = defaultZapLogger()
	}
	return &logger{
		name: name,
		z:    base.Named(name).WithOptions(zap.AddCallerSkip(1)).Sugar(),
	}
}

func (l *logger) with(args ...interface{}) *logger {
	return &logger{name: l.name, z: l.z.With(args...)}
}

func (l *logger) errorf(format string, a ...interface{}) {
	if level.Load() > levelError {
		return
	}
	l.z.Errorf(format, a...)
}

func (l *logger) warnf(format string, a ...interface{}) {
	if level.Load() > levelWarn {
		return
	}
	l.z.Warnf(format, a...)
}

func (l *logger) infof(format string, a ...interface{}) {
	if level.Load() > levelInfo {
		return
	}
	l.z.Infof(format, a...)
}

func (l *logger) debugf(format string, a ...interface{}) {
	if level.Load() > levelDebug {
		return
	}
	l.z.Debugf(format, a...)
}

func (l *logger) tracef(format string, a ...interface{}) {
	if level.Load() > levelTrace {
		return
	}
	l.z.Debugf("trace: "+format, a...)
}

// Status is a snapshot of a channel's protocol state.
type Status struct {
	Keys        keys.Keys
	PoisonGuard int
	Available   int
	Taken       int
	// ReadersBlocked and WritersBlocked count processes waiting on
	// available and taken across the whole system.
	ReadersBlocked int
	WritersBlocked int
	// LastPID is the last process to post or take a message.
	LastPID  int
	State    string
	Poisoned bool
	Length   int
	Framing  string
	// CreatorPID and Attached come from the segment's kernel bookkeeping.
	CreatorPID int
	Attached   int
}

func (s Status) String() string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, _ = buf.WriteString(s.Keys.String())
	_, _ = buf.WriteString(" poison_guard: ")
	_, _ = buf.WriteString(strconv.Itoa(s.PoisonGuard))
	_, _ = buf.WriteString(" available: ")
	_, _ = buf.WriteString(strconv.Itoa(s.Available))
	_, _ = buf.WriteString(" taken: ")
	_, _ = buf.WriteString(strconv.Itoa(s.Taken))
	_, _ = buf.WriteString(" blocked(r/w): ")
	_, _ = buf.WriteString(strconv.Itoa(s.ReadersBlocked))
	_ = buf.WriteByte('/')
	_, _ = buf.WriteString(strconv.Itoa(s.WritersBlocked))
	_, _ = buf.WriteString(" last_pid: ")
	_, _ = buf.WriteString(strconv.Itoa(s.LastPID))
	_, _ = buf.WriteString(" state: ")
	_, _ = buf.WriteString(s.State)
	_, _ = buf.WriteString(" poisoned: ")
	_, _ = buf.WriteString(strconv.FormatBool(s.Poisoned))
	_, _ = buf.WriteString(" length: ")
	_, _ = buf.WriteString(strconv.Itoa(s.Length))
	_, _ = buf.WriteString(" framing: ")
	_, _ = buf.WriteString(s.Framing)
	_, _ = buf.WriteString(" creator: ")
	_, _ = buf.WriteString(strconv.Itoa(s.CreatorPID))
	_, _ = buf.WriteString(" attached: ")
	_, _ = buf.WriteString(strconv.Itoa(s.Attached))
	return buf.String()
}

// Status reads the semaphore values and flags without taking any lock, so
// the snapshot may be torn while the channel is in use.
func (c *Channel) Status() (Status, error) {
	if c.closed.Load() {
		return Status{}, ErrUseAfterClose
	}
	st := Status{
		Keys:     c.keys,
		State:    c.altState().String(),
		Poisoned: c.buf.Poisoned(),
		Length:   c.buf.Length(),
		Framing:  c.buf.Framing().String(),
	}
	var err error
	if st.PoisonGuard, err = c.poisonGuard.Value(); err != nil {
		return Status{}, ipcError("status", err)
	}
	if st.Available, err = c.available.Value(); err != nil {
		return Status{}, ipcError("status", err)
	}
	if st.Taken, err = c.taken.Value(); err != nil {
		return Status{}, ipcError("status", err)
	}
	if st.ReadersBlocked, err = c.available.Waiters(); err != nil {
		return Status{}, ipcError("status", err)
	}
	if st.WritersBlocked, err = c.taken.Waiters(); err != nil {
		return Status{}, ipcError("status", err)
	}
	if st.LastPID, err = c.available.LastPID(); err != nil {
		return Status{}, ipcError("status", err)
	}
	info, err := c.buf.Stat()
	if err != nil {
		return Status{}, ipcError("status", err)
	}
	st.CreatorPID = int(info.CreatorPID)
	st.Attached = info.Attached
	return st, nil
}
