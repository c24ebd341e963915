package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jihun-01/scratcha-backend/internal/domain/model"
)

const (
	lineMeta  = "meta"
	lineEvent = "event"
	lineLabel = "label"
)

// EncodeJSONL writes one meta line followed by one line per event. Each line
// carries a "type" field; an event's own type is kept.
func EncodeJSONL(t *model.TelemetryInput) ([]byte, error) {
	var buf bytes.Buffer

	meta, err := tagged(t.Meta, lineMeta)
	if err != nil {
		return nil, fmt.Errorf("meta: %w", err)
	}
	buf.Write(meta)
	buf.WriteByte('\n')

	for i, ev := range t.Events {
		line, err := tagged(ev, lineEvent)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func tagged(raw json.RawMessage, kind string) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}
	if _, ok := fields["type"]; !ok {
		fields["type"] = json.RawMessage(`"` + kind + `"`)
	}
	return json.Marshal(fields)
}

// DecodeJSONL reads what EncodeJSONL wrote. Lines whose type is not "meta"
// are events; "label" lines added by offline annotation are skipped.
func DecodeJSONL(r io.Reader) (*model.TelemetryInput, error) {
	out := &model.TelemetryInput{}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		fields := map[string]json.RawMessage{}
		if err := json.Unmarshal(line, &fields); err != nil {
			return nil, fmt.Errorf("invalid line: %w", err)
		}
		var kind string
		_ = json.Unmarshal(fields["type"], &kind)

		if kind == lineMeta {
			delete(fields, "type")
			meta, err := json.Marshal(fields)
			if err != nil {
				return nil, err
			}
			out.Meta = meta
			continue
		}
		if kind == lineLabel {
			continue
		}
		if kind == lineEvent {
			delete(fields, "type")
		}
		ev, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		out.Events = append(out.Events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Compress gzips raw with a zero modification time so identical payloads
// produce identical objects.
func Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, 6)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ObjectKey returns <prefix>/<YYYYmmdd-HHMMSS>_<token>.json.gz
func ObjectKey(prefix, clientToken string, at time.Time) string {
	name := at.Format("20060102-150405") + "_" + clientToken + ".json.gz"
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
