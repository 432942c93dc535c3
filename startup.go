package esexec

import (
	"context"
	"io"
	"strconv"
	"strings"
)

// maxRecordLen bounds the cumulative length of one startup-script
// record's token buffer. A record that overruns this is rejected as
// "too long" and dropped at its next terminator, matching the original
// fixed-size line buffer.
const maxRecordLen = 256

// minRecordTokens is the minimum token count for a well-formed record:
// EntryType, FileName, EntryPoint, AppName, Priority, StackSize,
// <ignored>, ExceptionAction.
const minRecordTokens = 8

// StartupEntryKind distinguishes the two directive kinds a startup
// script can name.
type StartupEntryKind int

const (
	StartupEntryUnknown StartupEntryKind = iota
	StartupEntryApp
	StartupEntryLib
)

// StartupRecord is one parsed, not-yet-dispatched directive.
type StartupRecord struct {
	Kind            StartupEntryKind
	FileName        string
	EntryPoint      string
	Name            string
	Priority        uint32
	StackSize       uint32
	ExceptionAction ExceptionAction
}

// ParseStartupScript reads every record from r, dispatching CFE_APP
// records to create and CFE_LIB records to loadLib. Malformed records
// are logged and skipped; parsing continues to the next record.
// Dispatch errors are logged but do not stop the scan, matching the
// original's "best effort, log the rest" startup behavior.
func ParseStartupScript(
	ctx context.Context,
	r ScriptFile,
	logger Logger,
	create func(ctx context.Context, rec StartupRecord) error,
	loadLib func(ctx context.Context, rec StartupRecord) error,
) error {
	tok := newStartupTokenizer(r)
	for {
		record, tooLong, err := tok.nextRecord()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if tooLong {
			logger.Error("startup script record exceeded buffer capacity, dropped")
			continue
		}
		if record == nil {
			// An empty record (a bare ';') has nothing to dispatch.
			continue
		}

		rec, ok := parseRecord(record, logger)
		if !ok {
			continue
		}

		switch rec.Kind {
		case StartupEntryApp:
			if err := create(ctx, rec); err != nil {
				logger.Error("startup app create failed", "name", rec.Name, "error", err)
			}
		case StartupEntryLib:
			if err := loadLib(ctx, rec); err != nil {
				logger.Error("startup library load failed", "name", rec.Name, "error", err)
			}
		default:
			logger.Warn("startup script record has unrecognized entry type, skipped")
		}
	}
}

// startupTokenizer reads records terminated by ';' out of an
// otherwise unstructured byte stream, honoring the '!' EOF sentinel and
// the maxRecordLen overrun guard.
type startupTokenizer struct {
	r io.ByteReader
}

func newStartupTokenizer(r ScriptFile) *startupTokenizer {
	return &startupTokenizer{r: byteReaderAdapter{r}}
}

// byteReaderAdapter lets a ScriptFile satisfy io.ByteReader without
// exposing the rest of io.Reader's surface to this file.
type byteReaderAdapter struct{ f ScriptFile }

func (b byteReaderAdapter) ReadByte() (byte, error) { return b.f.ReadByte() }

// nextRecord reads bytes up to the next ';' or the '!' sentinel,
// skipping whitespace bytes (<= 0x20). Returns io.EOF at a clean end
// (sentinel or end of stream with an empty buffer) and record == nil
// for an empty record (a bare ';'). tooLong is true when the accumulated record exceeded
// maxRecordLen; in that case the partial bytes are discarded and the
// caller should continue to the next record.
func (t *startupTokenizer) nextRecord() (record []byte, tooLong bool, err error) {
	var buf []byte
	for {
		b, err := t.r.ReadByte()
		if err != nil {
			if err == io.EOF && len(buf) == 0 {
				return nil, false, io.EOF
			}
			if err == io.EOF {
				return buf, len(buf) > maxRecordLen, nil
			}
			return nil, false, err
		}
		if b == '!' {
			if len(buf) == 0 {
				return nil, false, io.EOF
			}
			return buf, len(buf) > maxRecordLen, nil
		}
		if b == ';' {
			return buf, len(buf) > maxRecordLen, nil
		}
		if isStartupWhitespace(rune(b)) {
			continue
		}
		buf = append(buf, b)
		if len(buf) > maxRecordLen {
			// keep consuming until the terminator so the stream stays
			// aligned, but mark the record as rejected.
			for {
				b, err := t.r.ReadByte()
				if err != nil {
					return buf, true, nil
				}
				if b == ';' || b == '!' {
					return buf, true, nil
				}
			}
		}
	}
}

// parseRecord tokenizes one record's bytes on ',' (ignoring whitespace
// bytes <= 0x20 everywhere) and validates the minimum token count.
func parseRecord(raw []byte, logger Logger) (StartupRecord, bool) {
	fields := strings.Split(string(raw), ",")
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, strings.TrimFunc(f, isStartupWhitespace))
	}
	if len(tokens) < minRecordTokens {
		logger.Error("startup script record has too few tokens, rejected", "tokens", len(tokens))
		return StartupRecord{}, false
	}

	rec := StartupRecord{
		FileName:   tokens[1],
		EntryPoint: tokens[2],
		Name:       tokens[3],
	}
	switch tokens[0] {
	case "CFE_APP":
		rec.Kind = StartupEntryApp
	case "CFE_LIB":
		rec.Kind = StartupEntryLib
	default:
		logger.Warn("startup script entry type not recognized, skipped", "entry_type", tokens[0])
		return StartupRecord{}, false
	}

	rec.Priority = parsePermissiveUint(tokens[4])
	rec.StackSize = parsePermissiveUint(tokens[5])
	action := ExceptionAction(parsePermissiveUint(tokens[7]))
	if action > ExceptionActionRestartApp {
		action = ExceptionActionProcRestart
	}
	rec.ExceptionAction = action
	return rec, true
}

func isStartupWhitespace(r rune) bool { return r <= 0x20 }

// parsePermissiveUint parses a numeric token with base auto-detection
// ("0x"/"0" prefixes), silently dropping trailing non-digit garbage
// rather than rejecting the whole token. A token with no leading
// digits at all parses as zero.
func parsePermissiveUint(tok string) uint32 {
	tok = strings.TrimSpace(tok)
	end := len(tok)
	base := 10
	start := 0
	switch {
	case strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X"):
		base, start = 16, 2
	case strings.HasPrefix(tok, "0") && len(tok) > 1:
		base, start = 8, 1
	}
	digitsEnd := start
	for digitsEnd < end && isBaseDigit(tok[digitsEnd], base) {
		digitsEnd++
	}
	if digitsEnd == start {
		return 0
	}
	v, err := strconv.ParseUint(tok[start:digitsEnd], base, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

func isBaseDigit(b byte, base int) bool {
	switch base {
	case 16:
		return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
	case 8:
		return b >= '0' && b <= '7'
	default:
		return b >= '0' && b <= '9'
	}
}
