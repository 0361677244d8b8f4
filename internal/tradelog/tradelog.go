// Package tradelog is the append-only audit journal.
// Order outcomes go to <dir>/<IST date>.txt, evaluated decisions to
// <dir>/decisions/<IST date>.txt, one JSON object per line.
package tradelog

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/types"
)

var ist = time.FixedZone("IST", 19800)

const timeLayout = "2006-01-02 15:04:05"

type DecisionEntry struct {
	Time       string             `json:"time"`
	DecisionID string             `json:"decision_id,omitempty"`
	Symbol     string             `json:"symbol"`
	Action     types.Action       `json:"action"`
	Reason     string             `json:"reason"`
	Price      float64            `json:"price"`
	Indicators map[string]float64 `json:"indicators"`
	Sentiment  string             `json:"sentiment,omitempty"`
}

// Journal serializes appends and fsyncs each line before returning.
type Journal struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

var _ interfaces.AuditLog = (*Journal)(nil)

// New uses dir, falling back to TRADER_LOG_DIR and then "logs".
func New(dir string) *Journal {
	if dir == "" {
		dir = os.Getenv("TRADER_LOG_DIR")
	}
	if dir == "" {
		dir = "logs"
	}
	return &Journal{dir: dir, now: time.Now}
}

func (j *Journal) Dir() string { return j.dir }

// OrdersPath is the order journal file for t's IST date.
func (j *Journal) OrdersPath(t time.Time) string {
	return filepath.Join(j.dir, t.In(ist).Format("2006-01-02")+".txt")
}

func (j *Journal) decisionsPath(t time.Time) string {
	return filepath.Join(j.dir, "decisions", t.In(ist).Format("2006-01-02")+".txt")
}

// Append writes one order outcome. It is durable when it returns nil.
func (j *Journal) Append(e types.OrderLogEntry) error {
	if e.OrderID == "" {
		return errors.New("order log entry without order id")
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now().In(ist)
	if e.Time == "" {
		e.Time = now.Format(timeLayout)
	}
	return appendLine(j.OrdersPath(now), e)
}

// AppendDecision records an evaluated decision, including HOLDs.
func (j *Journal) AppendDecision(e DecisionEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now().In(ist)
	e.Time = now.Format(timeLayout)
	return appendLine(j.decisionsPath(now), e)
}

func appendLine(p string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, string(b)); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadOrders returns the order entries journaled on t's IST date.
// A missing file is an empty day.
func (j *Journal) ReadOrders(t time.Time) ([]types.OrderLogEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.OrdersPath(t))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []types.OrderLogEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e types.OrderLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// CompressOlder gzips journal files last modified more than retentionDays ago.
func (j *Journal) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := j.now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(j.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		// an earlier run may have left a complete archive, or a torn one
		if !sameContent(gz, p) {
			if err := gzipFile(p, gz); err != nil || !sameContent(gz, p) {
				return nil
			}
		}
		_ = os.Remove(p)
		return nil
	})
}

// sameContent reports whether gz decompresses cleanly to exactly the bytes of src.
func sameContent(gz, src string) bool {
	want, err := os.ReadFile(src)
	if err != nil {
		return false
	}
	f, err := os.Open(gz)
	if err != nil {
		return false
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		return false
	}
	defer gr.Close()
	got, err := io.ReadAll(gr)
	return err == nil && bytes.Equal(got, want)
}

// gzipFile writes through a temp file so dst is either absent or complete.
func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	_, err = io.Copy(gw, in)
	if cerr := gw.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, dst)
	}
	if err != nil {
		_ = os.Remove(tmp)
	}
	return err
}
