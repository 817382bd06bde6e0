package gelf

import (
	"encoding/json"
	"net"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
)

// Writer sends GELF 1.1 messages over UDP.
type Writer struct {
	conn     net.Conn
	hostname string
	service  string
}

// New creates a GELF UDP writer connected to addr (e.g. "172.17.0.1:12201").
func New(addr, service string) (*Writer, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = service
	}

	return &Writer{conn: conn, hostname: hostname, service: service}, nil
}

func (w *Writer) Close() error {
	return w.conn.Close()
}

// send is fire-and-forget: a dropped datagram never fails the log call.
func (w *Writer) send(msg map[string]any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_, _ = w.conn.Write(payload)
}

// Core adapts a Writer to zapcore so it can be teed next to the console core.
type Core struct {
	zapcore.LevelEnabler
	w      *Writer
	fields []zapcore.Field
}

func NewCore(w *Writer, enab zapcore.LevelEnabler) *Core {
	return &Core{LevelEnabler: enab, w: w}
}

func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field(nil), c.fields...), fields...)
	return &clone
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	msg := map[string]any{
		"version":       "1.1",
		"host":          c.w.hostname,
		"short_message": ent.Message,
		"timestamp":     float64(ent.Time.UnixNano()) / float64(time.Second),
		"level":         syslogLevel(ent.Level),
		"_service":      c.w.service,
	}
	if ent.LoggerName != "" {
		msg["_logger"] = ent.LoggerName
	}
	if ent.Stack != "" {
		msg["full_message"] = ent.Stack
	}
	for k, v := range enc.Fields {
		// GELF reserves "_id".
		if k == "id" {
			k = "field_id"
		}
		msg["_"+k] = v
	}
	c.w.send(msg)
	return nil
}

func (c *Core) Sync() error { return nil }

func syslogLevel(l zapcore.Level) int {
	switch l {
	case zapcore.DebugLevel:
		return 7
	case zapcore.InfoLevel:
		return 6
	case zapcore.WarnLevel:
		return 4
	case zapcore.ErrorLevel:
		return 3
	case zapcore.DPanicLevel, zapcore.PanicLevel:
		return 2
	default:
		return 1
	}
}
