// Package httpapi exposes a read-only query surface plus a narrow
// control-request ingress over the esexec registry, built on
// github.com/go-chi/chi/v5.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/golobby/cast"

	"github.com/oliverhamburger/esexec"
)

var errUnknownControlRequest = errors.New("unknown control request")

// AppQueryer is the narrow capability this router needs to answer
// AppInfo queries. esexec.Registry satisfies it.
type AppQueryer interface {
	AppInfo(name string) (esexec.AppInfo, error)
	AppInfoBySlot(slot int) (esexec.AppInfo, error)
	ListApps() []esexec.AppInfo
	Counters() esexec.Counters
}

// ControlRequester is the narrow capability this router needs to
// accept a control request. AppQueryer carries no mutation; callers wire
// a function that writes ControlReq under lock, such as
// esexec.Registry.SetControlRequest.
type ControlRequester func(slot int, req esexec.ControlRequest) error

// Router builds the chi router for the query and control-request API.
// Exceeding the known control-request enum is rejected here at the
// ingress boundary rather than coerced, per the Open Question decision
// this package's SPEC_FULL.md section 5.3 records.
func Router(apps AppQueryer, control ControlRequester) chi.Router {
	r := chi.NewRouter()

	r.Get("/apps", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apps.ListApps())
	})

	r.Get("/apps/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		info, err := apps.AppInfo(name)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	})

	r.Get("/apps/slot/{slot}", func(w http.ResponseWriter, r *http.Request) {
		slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		info, err := apps.AppInfoBySlot(slot)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	})

	r.Get("/counters", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apps.Counters())
	})

	r.Post("/apps/{name}/control", func(w http.ResponseWriter, r *http.Request) {
		handleControl(w, r, apps, control)
	})

	return r
}

// controlBody is the loosely-typed request body for a control-request
// submission: request may arrive as either a number or a name like
// "SYS_RESTART", so it is cast rather than strictly unmarshaled.
type controlBody struct {
	Request json.RawMessage `json:"request"`
}

var controlRequestNames = map[string]esexec.ControlRequest{
	"APP_RUN":       esexec.ControlRequestAppRun,
	"APP_EXIT":      esexec.ControlRequestAppExit,
	"APP_ERROR":     esexec.ControlRequestAppError,
	"SYS_DELETE":    esexec.ControlRequestSysDelete,
	"SYS_RESTART":   esexec.ControlRequestSysRestart,
	"SYS_RELOAD":    esexec.ControlRequestSysReload,
	"SYS_EXCEPTION": esexec.ControlRequestSysException,
}

func handleControl(w http.ResponseWriter, r *http.Request, apps AppQueryer, control ControlRequester) {
	var body controlBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	name := chi.URLParam(r, "name")
	info, err := apps.AppInfo(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	req, ok := parseControlRequest(body.Request)
	if !ok {
		writeError(w, http.StatusBadRequest, errUnknownControlRequest)
		return
	}

	if err := control(info.Slot, req); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// parseControlRequest accepts either a JSON number or a known name
// string, using github.com/golobby/cast to coerce the numeric form
// into ControlRequest's int32. Unknown values are rejected here rather than
// forwarded for the core to coerce, matching the stricter ingress
// policy this package's SPEC_FULL.md chose for the HTTP surface.
func parseControlRequest(raw json.RawMessage) (esexec.ControlRequest, bool) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if req, ok := controlRequestNames[asString]; ok {
			return req, true
		}
		return 0, false
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return 0, false
	}
	n, err := cast.FromType(strconv.FormatFloat(asNumber, 'f', -1, 64), reflect.TypeOf(int32(0)))
	if err != nil {
		return 0, false
	}
	req := esexec.ControlRequest(n.(int32))
	if req < esexec.ControlRequestAppRun || req > esexec.ControlRequestSysException {
		return 0, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
